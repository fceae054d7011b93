package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/models"
	"github.com/tutorhive/tutorhive-api/internal/repository"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
	"github.com/tutorhive/tutorhive-api/pkg/export"
)

type lessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error)
	Reserve(ctx context.Context, lesson *models.Lesson) error
	UpdateStatus(ctx context.Context, id string, status models.LessonStatus) error
}

type relationshipWriter interface {
	Upsert(ctx context.Context, studentID, tutorID, subjectID string) error
	ListByTutor(ctx context.Context, tutorID string) ([]models.StudentTutorRelationship, error)
}

// ReserveLessonRequest describes payload for direct tutor scheduling.
type ReserveLessonRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	SubjectID string    `json:"subject_id" validate:"required"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

// LessonService owns the lesson ledger: reservation, lifecycle, the join
// window gate, and schedule export.
type LessonService struct {
	repo          lessonRepository
	relationships relationshipWriter
	cache         *CacheService
	metrics       *MetricsService
	notifications *NotificationService
	joinLeadTime  time.Duration
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewLessonService instantiates LessonService.
func NewLessonService(repo lessonRepository, relationships relationshipWriter, cache *CacheService, metrics *MetricsService, notifications *NotificationService, joinLeadTime time.Duration, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if joinLeadTime <= 0 {
		joinLeadTime = 15 * time.Minute
	}
	return &LessonService{
		repo:          repo,
		relationships: relationships,
		cache:         cache,
		metrics:       metrics,
		notifications: notifications,
		joinLeadTime:  joinLeadTime,
		validator:     validate,
		logger:        logger,
		now:           time.Now,
	}
}

// Reserve atomically books a lesson for the tutor. This is the single entry
// point that creates lessons; both direct scheduling and request confirmation
// go through it.
func (s *LessonService) Reserve(ctx context.Context, tutorID string, req ReserveLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reservation payload")
	}
	if tutorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tutor id is required")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	if req.StartTime.Before(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson cannot start in the past")
	}

	lesson := models.Lesson{
		TutorID:   tutorID,
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    models.LessonConfirmed,
	}

	if err := s.repo.Reserve(ctx, &lesson); err != nil {
		if errors.Is(err, repository.ErrLessonOverlap) {
			s.metrics.RecordBooking("conflict")
			return nil, appErrors.Clone(appErrors.ErrConflict, "the requested time is no longer available")
		}
		s.metrics.RecordBooking("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve lesson")
	}

	s.metrics.RecordBooking("confirmed")
	s.invalidateSlots(ctx, tutorID, lesson.StartTime)
	s.notifications.Publish(EventLessonReserved, lesson.StudentID, lesson.ID)

	return &lesson, nil
}

// Release cancels a lesson that was reserved on behalf of a request whose
// confirmation fell through, freeing the interval again. It bypasses the
// participant check because the caller is the workflow, not a user.
func (s *LessonService) Release(ctx context.Context, lessonID string) error {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, lessonID, models.LessonCancelled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release lesson")
	}
	s.invalidateSlots(ctx, lesson.TutorID, lesson.StartTime)
	return nil
}

// Get loads a single lesson visible to one of its participants.
func (s *LessonService) Get(ctx context.Context, lessonID, userID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.TutorID != userID && lesson.StudentID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this lesson")
	}
	return lesson, nil
}

// List returns lessons with pagination metadata.
func (s *LessonService) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, *models.Pagination, error) {
	lessons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return lessons, pagination, nil
}

// CanJoin decides whether a participant may enter the lesson session right
// now. The window opens joinLeadTime before the start and closes at the end
// boundary inclusive.
func (s *LessonService) CanJoin(ctx context.Context, lessonID, userID string) (*models.JoinDecision, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.TutorID != userID && lesson.StudentID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this lesson")
	}
	decision := s.joinDecision(s.now(), lesson)
	return &decision, nil
}

func (s *LessonService) joinDecision(now time.Time, lesson *models.Lesson) models.JoinDecision {
	if now.After(lesson.EndTime) {
		return models.JoinDecision{Allowed: false, Reason: "lesson has ended"}
	}
	untilStart := lesson.StartTime.Sub(now)
	if untilStart > s.joinLeadTime {
		minutes := int(untilStart / time.Minute)
		return models.JoinDecision{
			Allowed:           false,
			Reason:            fmt.Sprintf("lesson starts in %d minutes", minutes),
			MinutesUntilStart: minutes,
		}
	}
	return models.JoinDecision{Allowed: true}
}

// Cancel moves a pending or confirmed lesson to cancelled, freeing its
// interval. Either participant may cancel.
func (s *LessonService) Cancel(ctx context.Context, lessonID, userID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.TutorID != userID && lesson.StudentID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this lesson")
	}
	if lesson.Status != models.LessonPending && lesson.Status != models.LessonConfirmed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot cancel a %s lesson", lesson.Status))
	}

	if err := s.repo.UpdateStatus(ctx, lessonID, models.LessonCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel lesson")
	}
	lesson.Status = models.LessonCancelled

	s.invalidateSlots(ctx, lesson.TutorID, lesson.StartTime)
	recipient := lesson.StudentID
	if userID == lesson.StudentID {
		recipient = lesson.TutorID
	}
	s.notifications.Publish(EventLessonCancelled, recipient, lesson.ID)

	return lesson, nil
}

// Complete marks a confirmed lesson as completed once its end time has
// passed. Only the tutor may complete a lesson.
func (s *LessonService) Complete(ctx context.Context, lessonID, tutorID string) (*models.Lesson, error) {
	lesson, err := s.load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.TutorID != tutorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the tutor may complete a lesson")
	}
	if lesson.Status != models.LessonConfirmed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot complete a %s lesson", lesson.Status))
	}
	if s.now().Before(lesson.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson has not ended yet")
	}

	if err := s.repo.UpdateStatus(ctx, lessonID, models.LessonCompleted); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete lesson")
	}
	lesson.Status = models.LessonCompleted
	return lesson, nil
}

// ListStudents returns the tutor's ongoing student relationships.
func (s *LessonService) ListStudents(ctx context.Context, tutorID string) ([]models.StudentTutorRelationship, error) {
	relationships, err := s.relationships.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return relationships, nil
}

// ExportSchedule renders the tutor's upcoming lessons as CSV or PDF bytes.
func (s *LessonService) ExportSchedule(ctx context.Context, tutorID, format string) ([]byte, string, error) {
	from := s.now()
	lessons, _, err := s.repo.List(ctx, models.LessonFilter{TutorID: tutorID, From: &from, PageSize: 100})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	table := export.Table{
		Title:   "Upcoming lessons",
		Columns: []string{"Date", "Start", "End", "Student", "Subject", "Status"},
	}
	for _, lesson := range lessons {
		table.Rows = append(table.Rows, []string{
			lesson.StartTime.Format("2006-01-02"),
			lesson.StartTime.Format("15:04"),
			lesson.EndTime.Format("15:04"),
			lesson.StudentID,
			lesson.SubjectID,
			string(lesson.Status),
		})
	}

	switch format {
	case "csv", "":
		payload, err := export.CSV(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.PDF(table, s.now())
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *LessonService) load(ctx context.Context, lessonID string) (*models.Lesson, error) {
	lesson, err := s.repo.FindByID(ctx, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

func (s *LessonService) invalidateSlots(ctx context.Context, tutorID string, day time.Time) {
	key := fmt.Sprintf("slots:%s:%s", tutorID, day.Format("2006-01-02"))
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
