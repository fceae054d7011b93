package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/models"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
)

type requestRepository interface {
	Create(ctx context.Context, request *models.LessonRequest) error
	FindByID(ctx context.Context, id string) (*models.LessonRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.LessonRequest, int, error)
	UpdateStatus(ctx context.Context, request *models.LessonRequest, expected models.RequestStatus) (bool, error)
	ExpireProposed(ctx context.Context, cutoff time.Time) ([]string, error)
}

type intervalChecker interface {
	IntervalBookable(ctx context.Context, tutorID string, start, end time.Time) error
}

type lessonReserver interface {
	Reserve(ctx context.Context, tutorID string, req ReserveLessonRequest) (*models.Lesson, error)
	Release(ctx context.Context, lessonID string) error
}

// SubmitRequestPayload is the student's booking request body.
type SubmitRequestPayload struct {
	TutorID        string    `json:"tutor_id" validate:"required"`
	SubjectID      string    `json:"subject_id" validate:"required"`
	RequestedStart time.Time `json:"requested_start" validate:"required"`
	RequestedEnd   time.Time `json:"requested_end" validate:"required"`
	Message        string    `json:"message" validate:"max=1000"`
}

// ProposePayload carries alternative intervals a tutor offers instead of the
// requested one.
type ProposePayload struct {
	Slots    []models.ProposedSlot `json:"slots" validate:"required,min=1,max=5,dive"`
	Response string                `json:"response" validate:"max=1000"`
}

// BookingService drives the lesson-request workflow from submission through
// tutor response to the final reservation.
type BookingService struct {
	requests       requestRepository
	slots          intervalChecker
	lessons        lessonReserver
	relationships  relationshipWriter
	notifications  *NotificationService
	proposalExpiry time.Duration
	validator      *validator.Validate
	logger         *zap.Logger
	now            func() time.Time
}

// NewBookingService instantiates BookingService.
func NewBookingService(requests requestRepository, slots intervalChecker, lessons lessonReserver, relationships relationshipWriter, notifications *NotificationService, proposalExpiry time.Duration, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		requests:       requests,
		slots:          slots,
		lessons:        lessons,
		relationships:  relationships,
		notifications:  notifications,
		proposalExpiry: proposalExpiry,
		validator:      validate,
		logger:         logger,
		now:            time.Now,
	}
}

// Submit creates a pending lesson request after verifying the interval is
// inside the tutor's published availability and conflict free at submission
// time. The authoritative conflict check still happens at confirmation.
func (s *BookingService) Submit(ctx context.Context, studentID string, payload SubmitRequestPayload) (*models.LessonRequest, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if studentID == payload.TutorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot request a lesson with yourself")
	}
	if !payload.RequestedStart.Before(payload.RequestedEnd) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requested start must be before requested end")
	}
	if payload.RequestedStart.Before(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requested interval is in the past")
	}

	if err := s.slots.IntervalBookable(ctx, payload.TutorID, payload.RequestedStart, payload.RequestedEnd); err != nil {
		return nil, err
	}

	request := models.LessonRequest{
		StudentID:      studentID,
		TutorID:        payload.TutorID,
		SubjectID:      payload.SubjectID,
		RequestedStart: payload.RequestedStart,
		RequestedEnd:   payload.RequestedEnd,
		Message:        payload.Message,
		Status:         models.RequestPending,
	}
	if err := s.requests.Create(ctx, &request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson request")
	}

	s.notifications.Publish(EventRequestCreated, request.TutorID, request.ID)
	return &request, nil
}

// Get loads a request visible to one of its two parties.
func (s *BookingService) Get(ctx context.Context, requestID, userID string) (*models.LessonRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.StudentID != userID && request.TutorID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a party to this request")
	}
	return request, nil
}

// List returns lesson requests with pagination metadata.
func (s *BookingService) List(ctx context.Context, filter models.RequestFilter) ([]models.LessonRequest, *models.Pagination, error) {
	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lesson requests")
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
	return requests, pagination, nil
}

// Confirm is the tutor accepting a pending request. It reserves the lesson
// first; only when the ledger accepts the interval does the request flip to
// confirmed. A conflict leaves the request pending so the tutor can propose
// alternatives instead.
func (s *BookingService) Confirm(ctx context.Context, requestID, tutorID, response string) (*models.LessonRequest, *models.Lesson, error) {
	request, err := s.loadForTutor(ctx, requestID, tutorID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireStatus(request, models.RequestPending); err != nil {
		return nil, nil, err
	}

	lesson, err := s.lessons.Reserve(ctx, tutorID, ReserveLessonRequest{
		StudentID: request.StudentID,
		SubjectID: request.SubjectID,
		StartTime: request.RequestedStart,
		EndTime:   request.RequestedEnd,
	})
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	request.Status = models.RequestConfirmed
	request.TutorResponse = response
	request.RespondedAt = &now

	updated, err := s.requests.UpdateStatus(ctx, request, models.RequestPending)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm request")
	}
	if !updated {
		// Lost the status race after reserving. Undo the reservation so the
		// interval is not held for a request that moved on.
		s.logger.Warn("request status changed while confirming",
			zap.String("request_id", request.ID), zap.String("lesson_id", lesson.ID))
		if releaseErr := s.lessons.Release(ctx, lesson.ID); releaseErr != nil {
			s.logger.Error("failed to release lesson after lost confirm",
				zap.String("lesson_id", lesson.ID), zap.Error(releaseErr))
		}
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is no longer pending")
	}

	if err := s.relationships.Upsert(ctx, request.StudentID, request.TutorID, request.SubjectID); err != nil {
		s.logger.Warn("relationship upsert failed", zap.String("request_id", request.ID), zap.Error(err))
	}

	s.notifications.Publish(EventRequestConfirmed, request.StudentID, request.ID)
	return request, lesson, nil
}

// Reject is the tutor declining a pending or proposed request.
func (s *BookingService) Reject(ctx context.Context, requestID, tutorID, response string) (*models.LessonRequest, error) {
	request, err := s.loadForTutor(ctx, requestID, tutorID)
	if err != nil {
		return nil, err
	}
	if err := s.requireStatus(request, models.RequestPending, models.RequestProposed); err != nil {
		return nil, err
	}

	expected := request.Status
	now := s.now().UTC()
	request.Status = models.RequestRejected
	request.TutorResponse = response
	request.RespondedAt = &now

	if err := s.transition(ctx, request, expected); err != nil {
		return nil, err
	}
	s.notifications.Publish(EventRequestRejected, request.StudentID, request.ID)
	return request, nil
}

// ProposeAlternatives moves a pending request to time_slots_proposed with the
// tutor's counter-offer of intervals.
func (s *BookingService) ProposeAlternatives(ctx context.Context, requestID, tutorID string, payload ProposePayload) (*models.LessonRequest, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proposal payload")
	}
	for i, slot := range payload.Slots {
		if !slot.StartTime.Before(slot.EndTime) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("proposed slot %d has start after end", i+1))
		}
		if slot.StartTime.Before(s.now()) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("proposed slot %d is in the past", i+1))
		}
	}

	request, err := s.loadForTutor(ctx, requestID, tutorID)
	if err != nil {
		return nil, err
	}
	if err := s.requireStatus(request, models.RequestPending); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(payload.Slots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode proposed slots")
	}

	now := s.now().UTC()
	request.Status = models.RequestProposed
	request.TutorResponse = payload.Response
	request.ProposedSlots = encoded
	request.RespondedAt = &now

	if err := s.transition(ctx, request, models.RequestPending); err != nil {
		return nil, err
	}
	s.notifications.Publish(EventRequestProposed, request.StudentID, request.ID)
	return request, nil
}

// AcceptProposal is the student picking one of the tutor's proposed slots.
// The request returns to pending with the chosen interval as its requested
// one, awaiting the tutor's confirmation against the live ledger.
func (s *BookingService) AcceptProposal(ctx context.Context, requestID, studentID string, slotIndex int) (*models.LessonRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting student may accept a proposal")
	}
	if err := s.requireStatus(request, models.RequestProposed); err != nil {
		return nil, err
	}

	var slots []models.ProposedSlot
	if err := json.Unmarshal(request.ProposedSlots, &slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode proposed slots")
	}
	if slotIndex < 0 || slotIndex >= len(slots) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot index out of range")
	}
	chosen := slots[slotIndex]

	request.Status = models.RequestPending
	request.RequestedStart = chosen.StartTime
	request.RequestedEnd = chosen.EndTime
	request.ProposedSlots = []byte("[]")
	request.RespondedAt = nil

	if err := s.transition(ctx, request, models.RequestProposed); err != nil {
		return nil, err
	}
	s.notifications.Publish(EventRequestCreated, request.TutorID, request.ID)
	return request, nil
}

// Cancel is the student withdrawing a request before the tutor resolves it.
func (s *BookingService) Cancel(ctx context.Context, requestID, studentID string) (*models.LessonRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting student may cancel")
	}
	if err := s.requireStatus(request, models.RequestPending, models.RequestProposed); err != nil {
		return nil, err
	}

	expected := request.Status
	request.Status = models.RequestCancelled
	if err := s.transition(ctx, request, expected); err != nil {
		return nil, err
	}
	s.notifications.Publish(EventRequestCancelled, request.TutorID, request.ID)
	return request, nil
}

// RunProposalSweeper periodically cancels time_slots_proposed requests older
// than the configured expiry. Blocks until the context is done; no-op when
// expiry is disabled.
func (s *BookingService) RunProposalSweeper(ctx context.Context, interval time.Duration) {
	if s.proposalExpiry <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := s.now().Add(-s.proposalExpiry)
			ids, err := s.requests.ExpireProposed(ctx, cutoff)
			if err != nil {
				s.logger.Warn("proposal sweep failed", zap.Error(err))
				continue
			}
			for _, id := range ids {
				s.logger.Info("expired proposed request", zap.String("request_id", id))
			}
		}
	}
}

func (s *BookingService) load(ctx context.Context, requestID string) (*models.LessonRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson request")
	}
	return request, nil
}

func (s *BookingService) loadForTutor(ctx context.Context, requestID, tutorID string) (*models.LessonRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TutorID != tutorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is addressed to another tutor")
	}
	return request, nil
}

func (s *BookingService) requireStatus(request *models.LessonRequest, allowed ...models.RequestStatus) error {
	for _, status := range allowed {
		if request.Status == status {
			return nil
		}
	}
	if request.Status.IsTerminal() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is already %s", request.Status))
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is %s", request.Status))
}

func (s *BookingService) transition(ctx context.Context, request *models.LessonRequest, expected models.RequestStatus) error {
	updated, err := s.requests.UpdateStatus(ctx, request, expected)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "request status changed concurrently")
	}
	return nil
}
