package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/models"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
)

type mockRequestRepo struct {
	requests map[string]models.LessonRequest
	created  *models.LessonRequest
	expired  []string
}

func (m *mockRequestRepo) Create(ctx context.Context, request *models.LessonRequest) error {
	if request.ID == "" {
		request.ID = "new-request"
	}
	if request.Status == "" {
		request.Status = models.RequestPending
	}
	if m.requests == nil {
		m.requests = make(map[string]models.LessonRequest)
	}
	m.requests[request.ID] = *request
	m.created = request
	return nil
}

func (m *mockRequestRepo) FindByID(ctx context.Context, id string) (*models.LessonRequest, error) {
	if request, ok := m.requests[id]; ok {
		return &request, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRequestRepo) List(ctx context.Context, filter models.RequestFilter) ([]models.LessonRequest, int, error) {
	var list []models.LessonRequest
	for _, request := range m.requests {
		list = append(list, request)
	}
	return list, len(list), nil
}

func (m *mockRequestRepo) UpdateStatus(ctx context.Context, request *models.LessonRequest, expected models.RequestStatus) (bool, error) {
	stored, ok := m.requests[request.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	m.requests[request.ID] = *request
	return true, nil
}

func (m *mockRequestRepo) ExpireProposed(ctx context.Context, cutoff time.Time) ([]string, error) {
	return m.expired, nil
}

type mockIntervalChecker struct {
	err error
}

func (m *mockIntervalChecker) IntervalBookable(ctx context.Context, tutorID string, start, end time.Time) error {
	return m.err
}

type mockLessonReserver struct {
	err       error
	reserved  []ReserveLessonRequest
	released  []string
	onReserve func()
}

func (m *mockLessonReserver) Reserve(ctx context.Context, tutorID string, req ReserveLessonRequest) (*models.Lesson, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.reserved = append(m.reserved, req)
	if m.onReserve != nil {
		m.onReserve()
	}
	return &models.Lesson{
		ID:        "lesson-1",
		TutorID:   tutorID,
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    models.LessonConfirmed,
	}, nil
}

func (m *mockLessonReserver) Release(ctx context.Context, lessonID string) error {
	m.released = append(m.released, lessonID)
	return nil
}

func newBookingService(requests *mockRequestRepo, slots *mockIntervalChecker, lessons *mockLessonReserver) *BookingService {
	svc := NewBookingService(requests, slots, lessons, &mockRelationships{}, nil, 0, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func pendingRequest(id string) models.LessonRequest {
	return models.LessonRequest{
		ID:             id,
		StudentID:      "s1",
		TutorID:        "t1",
		SubjectID:      "math",
		RequestedStart: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		RequestedEnd:   time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		Status:         models.RequestPending,
		ProposedSlots:  []byte("[]"),
	}
}

func TestBookingServiceSubmit(t *testing.T) {
	requests := &mockRequestRepo{}
	svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

	request, err := svc.Submit(context.Background(), "s1", SubmitRequestPayload{
		TutorID:        "t1",
		SubjectID:      "math",
		RequestedStart: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		RequestedEnd:   time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, request.Status)
	assert.NotNil(t, requests.created)
}

func TestBookingServiceSubmitUnavailable(t *testing.T) {
	slots := &mockIntervalChecker{err: appErrors.Clone(appErrors.ErrUnavailable, "no availability rule covers the requested time")}
	svc := newBookingService(&mockRequestRepo{}, slots, &mockLessonReserver{})

	_, err := svc.Submit(context.Background(), "s1", SubmitRequestPayload{
		TutorID:        "t1",
		SubjectID:      "math",
		RequestedStart: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		RequestedEnd:   time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErr.Code)
}

func TestBookingServiceSubmitRejectsPast(t *testing.T) {
	svc := newBookingService(&mockRequestRepo{}, &mockIntervalChecker{}, &mockLessonReserver{})

	_, err := svc.Submit(context.Background(), "s1", SubmitRequestPayload{
		TutorID:        "t1",
		SubjectID:      "math",
		RequestedStart: time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
		RequestedEnd:   time.Date(2026, 2, 28, 11, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBookingServiceConfirm(t *testing.T) {
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": pendingRequest("r1")}}
	reserver := &mockLessonReserver{}
	relationships := &mockRelationships{}
	svc := NewBookingService(requests, &mockIntervalChecker{}, reserver, relationships, nil, 0, nil, zap.NewNop())

	request, lesson, err := svc.Confirm(context.Background(), "r1", "t1", "see you then")
	require.NoError(t, err)
	assert.Equal(t, models.RequestConfirmed, request.Status)
	assert.Equal(t, "see you then", request.TutorResponse)
	require.NotNil(t, lesson)
	assert.Equal(t, models.LessonConfirmed, lesson.Status)
	require.Len(t, relationships.upserts, 1)
	assert.Equal(t, [3]string{"s1", "t1", "math"}, relationships.upserts[0])
}

func TestBookingServiceConfirmConflictKeepsPending(t *testing.T) {
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": pendingRequest("r1")}}
	reserver := &mockLessonReserver{err: appErrors.Clone(appErrors.ErrConflict, "the requested time is no longer available")}
	svc := newBookingService(requests, &mockIntervalChecker{}, reserver)

	_, _, err := svc.Confirm(context.Background(), "r1", "t1", "")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, models.RequestPending, requests.requests["r1"].Status)
}

func TestBookingServiceConfirmLostRaceReleasesLesson(t *testing.T) {
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": pendingRequest("r1")}}
	reserver := &mockLessonReserver{}
	// The student cancels between the tutor loading the request and the
	// status update landing.
	reserver.onReserve = func() {
		cancelled := requests.requests["r1"]
		cancelled.Status = models.RequestCancelled
		requests.requests["r1"] = cancelled
	}
	svc := newBookingService(requests, &mockIntervalChecker{}, reserver)

	_, _, err := svc.Confirm(context.Background(), "r1", "t1", "")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

	// the reservation must not outlive the lost confirmation
	require.Len(t, reserver.reserved, 1)
	assert.Equal(t, []string{"lesson-1"}, reserver.released)
	assert.Equal(t, models.RequestCancelled, requests.requests["r1"].Status)
}

func TestBookingServiceConfirmWrongTutor(t *testing.T) {
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": pendingRequest("r1")}}
	svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

	_, _, err := svc.Confirm(context.Background(), "r1", "t2", "")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestBookingServiceTerminalRequestsAreImmutable(t *testing.T) {
	for _, status := range []models.RequestStatus{models.RequestConfirmed, models.RequestRejected, models.RequestCancelled} {
		t.Run(string(status), func(t *testing.T) {
			request := pendingRequest("r1")
			request.Status = status
			requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": request}}
			svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

			_, _, err := svc.Confirm(context.Background(), "r1", "t1", "")
			require.Error(t, err)
			appErr, ok := err.(*appErrors.Error)
			require.True(t, ok)
			assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

			_, err = svc.Reject(context.Background(), "r1", "t1", "")
			require.Error(t, err)

			_, err = svc.Cancel(context.Background(), "r1", "s1")
			require.Error(t, err)
		})
	}
}

func TestBookingServiceReject(t *testing.T) {
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": pendingRequest("r1")}}
	svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

	request, err := svc.Reject(context.Background(), "r1", "t1", "fully booked that week")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, request.Status)
	assert.Equal(t, "fully booked that week", request.TutorResponse)
	assert.NotNil(t, request.RespondedAt)
}

func TestBookingServiceProposeAndAccept(t *testing.T) {
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": pendingRequest("r1")}}
	svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

	alt := models.ProposedSlot{
		StartTime: time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC),
	}
	request, err := svc.ProposeAlternatives(context.Background(), "r1", "t1", ProposePayload{
		Slots:    []models.ProposedSlot{alt},
		Response: "how about Tuesday",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestProposed, request.Status)

	var stored []models.ProposedSlot
	require.NoError(t, json.Unmarshal(request.ProposedSlots, &stored))
	require.Len(t, stored, 1)
	assert.True(t, stored[0].StartTime.Equal(alt.StartTime))

	accepted, err := svc.AcceptProposal(context.Background(), "r1", "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, accepted.Status)
	assert.True(t, accepted.RequestedStart.Equal(alt.StartTime))
	assert.True(t, accepted.RequestedEnd.Equal(alt.EndTime))
}

func TestBookingServiceAcceptProposalBadIndex(t *testing.T) {
	request := pendingRequest("r1")
	request.Status = models.RequestProposed
	request.ProposedSlots = []byte(`[{"start_time":"2026-03-03T14:00:00Z","end_time":"2026-03-03T15:00:00Z"}]`)
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": request}}
	svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

	_, err := svc.AcceptProposal(context.Background(), "r1", "s1", 3)
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBookingServiceAcceptProposalWrongStudent(t *testing.T) {
	request := pendingRequest("r1")
	request.Status = models.RequestProposed
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": request}}
	svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

	_, err := svc.AcceptProposal(context.Background(), "r1", "s2", 0)
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestBookingServiceCancel(t *testing.T) {
	requests := &mockRequestRepo{requests: map[string]models.LessonRequest{"r1": pendingRequest("r1")}}
	svc := newBookingService(requests, &mockIntervalChecker{}, &mockLessonReserver{})

	request, err := svc.Cancel(context.Background(), "r1", "s1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, request.Status)
}
