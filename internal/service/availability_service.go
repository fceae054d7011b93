package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/models"
	"github.com/tutorhive/tutorhive-api/internal/schedule"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
)

type availabilityRepository interface {
	ListRules(ctx context.Context, tutorID string) ([]models.WeeklyAvailabilityRule, error)
	ListRulesForDay(ctx context.Context, tutorID string, dayOfWeek int) ([]models.WeeklyAvailabilityRule, error)
	FindRuleByID(ctx context.Context, id string) (*models.WeeklyAvailabilityRule, error)
	CreateRule(ctx context.Context, rule *models.WeeklyAvailabilityRule) error
	UpdateRule(ctx context.Context, rule *models.WeeklyAvailabilityRule) error
	DeleteRule(ctx context.Context, id string) error
	ListExceptions(ctx context.Context, tutorID string) ([]models.ScheduleException, error)
	FindExceptionByID(ctx context.Context, id string) (*models.ScheduleException, error)
	CreateException(ctx context.Context, exception *models.ScheduleException) error
	DeleteException(ctx context.Context, id string) error
}

// UpsertRuleRequest describes payload for creating or updating a weekly rule.
type UpsertRuleRequest struct {
	DayOfWeek   int  `json:"day_of_week" validate:"required,min=1,max=7"`
	StartMinute int  `json:"start_minute" validate:"min=0,max=1439"`
	EndMinute   int  `json:"end_minute" validate:"required,min=1,max=1440"`
	IsAvailable bool `json:"is_available"`
}

// CreateExceptionRequest describes payload for blocking a date.
type CreateExceptionRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	IsFullDay bool   `json:"is_full_day"`
}

// AvailabilityService manages tutor-owned weekly rules and exceptions.
type AvailabilityService struct {
	repo      availabilityRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService.
func NewAvailabilityService(repo availabilityRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// ListRules returns a tutor's weekly rules.
func (s *AvailabilityService) ListRules(ctx context.Context, tutorID string) ([]models.WeeklyAvailabilityRule, error) {
	rules, err := s.repo.ListRules(ctx, tutorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability rules")
	}
	return rules, nil
}

// CreateRule stores a new weekly rule after overlap validation against the
// tutor's existing rules for that day.
func (s *AvailabilityService) CreateRule(ctx context.Context, tutorID string, req UpsertRuleRequest) (*models.WeeklyAvailabilityRule, error) {
	if err := s.validateRule(req); err != nil {
		return nil, err
	}

	if err := s.ensureNoRuleOverlap(ctx, tutorID, req, ""); err != nil {
		return nil, err
	}

	rule := models.WeeklyAvailabilityRule{
		TutorID:     tutorID,
		DayOfWeek:   req.DayOfWeek,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		IsAvailable: req.IsAvailable,
	}
	if err := s.repo.CreateRule(ctx, &rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create availability rule")
	}

	s.invalidateSlots(ctx, tutorID)
	return &rule, nil
}

// UpdateRule modifies an existing rule owned by the tutor.
func (s *AvailabilityService) UpdateRule(ctx context.Context, tutorID, ruleID string, req UpsertRuleRequest) (*models.WeeklyAvailabilityRule, error) {
	if err := s.validateRule(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindRuleByID(ctx, ruleID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability rule")
	}
	if existing.TutorID != tutorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "rule belongs to another tutor")
	}

	if err := s.ensureNoRuleOverlap(ctx, tutorID, req, ruleID); err != nil {
		return nil, err
	}

	updated := models.WeeklyAvailabilityRule{
		ID:          existing.ID,
		TutorID:     tutorID,
		DayOfWeek:   req.DayOfWeek,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		IsAvailable: req.IsAvailable,
		CreatedAt:   existing.CreatedAt,
	}
	if err := s.repo.UpdateRule(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update availability rule")
	}

	s.invalidateSlots(ctx, tutorID)
	return &updated, nil
}

// DeleteRule removes a rule owned by the tutor.
func (s *AvailabilityService) DeleteRule(ctx context.Context, tutorID, ruleID string) error {
	existing, err := s.repo.FindRuleByID(ctx, ruleID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "availability rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability rule")
	}
	if existing.TutorID != tutorID {
		return appErrors.Clone(appErrors.ErrForbidden, "rule belongs to another tutor")
	}

	if err := s.repo.DeleteRule(ctx, ruleID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete availability rule")
	}

	s.invalidateSlots(ctx, tutorID)
	return nil
}

// ListExceptions returns a tutor's schedule exceptions.
func (s *AvailabilityService) ListExceptions(ctx context.Context, tutorID string) ([]models.ScheduleException, error) {
	exceptions, err := s.repo.ListExceptions(ctx, tutorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule exceptions")
	}
	return exceptions, nil
}

// CreateException blocks a date for the tutor.
func (s *AvailabilityService) CreateException(ctx context.Context, tutorID string, req CreateExceptionRequest) (*models.ScheduleException, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception date")
	}

	exception := models.ScheduleException{
		TutorID:   tutorID,
		Date:      date,
		IsFullDay: req.IsFullDay,
	}
	if err := s.repo.CreateException(ctx, &exception); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule exception")
	}

	s.invalidateSlots(ctx, tutorID)
	return &exception, nil
}

// DeleteException removes a schedule exception owned by the tutor.
func (s *AvailabilityService) DeleteException(ctx context.Context, tutorID, exceptionID string) error {
	existing, err := s.repo.FindExceptionByID(ctx, exceptionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule exception not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule exception")
	}
	if existing.TutorID != tutorID {
		return appErrors.Clone(appErrors.ErrForbidden, "exception belongs to another tutor")
	}

	if err := s.repo.DeleteException(ctx, exceptionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule exception")
	}

	s.invalidateSlots(ctx, tutorID)
	return nil
}

func (s *AvailabilityService) validateRule(req UpsertRuleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability rule payload")
	}
	if req.StartMinute >= req.EndMinute {
		return appErrors.Clone(appErrors.ErrValidation, "rule start must be before end")
	}
	return nil
}

func (s *AvailabilityService) ensureNoRuleOverlap(ctx context.Context, tutorID string, req UpsertRuleRequest, ignoreID string) error {
	existing, err := s.repo.ListRulesForDay(ctx, tutorID, req.DayOfWeek)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check rule overlap")
	}
	for _, rule := range existing {
		if rule.ID == ignoreID {
			continue
		}
		if schedule.OverlapsMinutes(req.StartMinute, req.EndMinute, rule.StartMinute, rule.EndMinute) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("rule overlaps existing window %d-%d", rule.StartMinute, rule.EndMinute))
		}
	}
	return nil
}

func (s *AvailabilityService) invalidateSlots(ctx context.Context, tutorID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("slots:%s:*", tutorID)); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("tutor_id", tutorID), zap.Error(err))
	}
}
