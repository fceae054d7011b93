package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/models"
	"github.com/tutorhive/tutorhive-api/internal/schedule"
	"github.com/tutorhive/tutorhive-api/pkg/config"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
)

type slotAvailabilityReader interface {
	HasFullDayException(ctx context.Context, tutorID string, date time.Time) (bool, error)
	ListRulesForDay(ctx context.Context, tutorID string, dayOfWeek int) ([]models.WeeklyAvailabilityRule, error)
}

type slotLessonReader interface {
	ListActiveForDate(ctx context.Context, tutorID string, date time.Time) ([]models.Lesson, error)
}

// SlotService derives bookable time slots for a (tutor, date) pair. Slots are
// never persisted; generation is recomputed per call, with an optional
// TTL-bounded cache in front.
type SlotService struct {
	availability slotAvailabilityReader
	lessons      slotLessonReader
	cache        *CacheService
	metrics      *MetricsService
	window       schedule.TilingWindow
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewSlotService instantiates SlotService.
func NewSlotService(availability slotAvailabilityReader, lessons slotLessonReader, cache *CacheService, metrics *MetricsService, cfg config.BookingConfig, logger *zap.Logger) *SlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		availability: availability,
		lessons:      lessons,
		cache:        cache,
		metrics:      metrics,
		window: schedule.TilingWindow{
			StartMinute: cfg.DayStartMinute,
			EndMinute:   cfg.DayEndMinute,
			SlotWidth:   cfg.SlotDuration,
		},
		cacheTTL: cfg.SlotCacheTTL,
		logger:   logger,
	}
}

// GetAvailableSlots computes the ordered slot list for a tutor on a date. A
// full-day exception always wins and yields an empty list, as does a day with
// no available weekly rule.
func (s *SlotService) GetAvailableSlots(ctx context.Context, tutorID, dateStr string) ([]models.TimeSlot, error) {
	if tutorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tutor id is required")
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be formatted YYYY-MM-DD")
	}

	cacheKey := fmt.Sprintf("slots:%s:%s", tutorID, dateStr)
	var cached []models.TimeSlot
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	start := time.Now()
	slots, err := s.generate(ctx, tutorID, date)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSlotGeneration(time.Since(start))

	if err := s.cache.Set(ctx, cacheKey, slots, s.cacheTTL); err != nil {
		s.logger.Warn("slot cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
	return slots, nil
}

func (s *SlotService) generate(ctx context.Context, tutorID string, date time.Time) ([]models.TimeSlot, error) {
	blocked, err := s.availability.HasFullDayException(ctx, tutorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule exceptions")
	}
	if blocked {
		return []models.TimeSlot{}, nil
	}

	rules, err := s.availability.ListRulesForDay(ctx, tutorID, schedule.ISOWeekday(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability rules")
	}

	slots := schedule.Tile(date, rules, s.window)
	if len(slots) == 0 {
		return []models.TimeSlot{}, nil
	}

	lessons, err := s.lessons.ListActiveForDate(ctx, tutorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked lessons")
	}
	schedule.MarkBusy(slots, lessons)

	return slots, nil
}

// IntervalBookable reports whether [start, end) lies inside the tutor's
// availability for that date and does not touch an active lesson. It backs
// the booking path's validation; the ledger's transactional check remains the
// final word.
func (s *SlotService) IntervalBookable(ctx context.Context, tutorID string, start, end time.Time) error {
	blocked, err := s.availability.HasFullDayException(ctx, tutorID, start)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule exceptions")
	}
	if blocked {
		return appErrors.Clone(appErrors.ErrUnavailable, "tutor is unavailable on this date")
	}

	rules, err := s.availability.ListRulesForDay(ctx, tutorID, schedule.ISOWeekday(start))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability rules")
	}

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	startMin := int(start.Sub(day) / time.Minute)
	endMin := int(end.Sub(day) / time.Minute)

	covered := false
	for _, rule := range rules {
		if rule.IsAvailable && rule.StartMinute <= startMin && endMin <= rule.EndMinute {
			covered = true
			break
		}
	}
	if !covered {
		return appErrors.Clone(appErrors.ErrUnavailable, "no availability rule covers the requested time")
	}

	lessons, err := s.lessons.ListActiveForDate(ctx, tutorID, start)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked lessons")
	}
	for _, lesson := range lessons {
		if schedule.Overlaps(start, end, lesson.StartTime, lesson.EndTime) {
			return appErrors.Clone(appErrors.ErrConflict, "requested time overlaps an existing lesson")
		}
	}

	return nil
}
