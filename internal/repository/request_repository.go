package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/tutorhive-api/internal/models"
)

const requestColumns = `id, student_id, tutor_id, subject_id, requested_start, requested_end, message, status, tutor_response, proposed_slots, created_at, responded_at`

// RequestRepository persists lesson requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new lesson request.
func (r *RequestRepository) Create(ctx context.Context, request *models.LessonRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if len(request.ProposedSlots) == 0 {
		request.ProposedSlots = []byte("[]")
	}

	const query = `INSERT INTO lesson_requests
	(id, student_id, tutor_id, subject_id, requested_start, requested_end, message, status, tutor_response, proposed_slots, created_at, responded_at)
	VALUES (:id, :student_id, :tutor_id, :subject_id, :requested_start, :requested_end, :message, :status, :tutor_response, :proposed_slots, :created_at, :responded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create lesson request: %w", err)
	}
	return nil
}

// FindByID fetches a lesson request by identifier.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.LessonRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM lesson_requests WHERE id = $1`, requestColumns)
	var request models.LessonRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns lesson requests matching the filter, latest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.LessonRequest, int, error) {
	base := "FROM lesson_requests WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", requestColumns, base, size, offset)
	var requests []models.LessonRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lesson requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lesson requests: %w", err)
	}

	return requests, total, nil
}

// UpdateStatus transitions a request to a new status, guarded by the expected
// current status so concurrent responders cannot both win.
func (r *RequestRepository) UpdateStatus(ctx context.Context, request *models.LessonRequest, expected models.RequestStatus) (bool, error) {
	const query = `UPDATE lesson_requests
	SET status = :status, tutor_response = :tutor_response, proposed_slots = :proposed_slots,
	    requested_start = :requested_start, requested_end = :requested_end, responded_at = :responded_at
	WHERE id = :id AND status = :expected_status`

	if len(request.ProposedSlots) == 0 {
		request.ProposedSlots = []byte("[]")
	}

	arg := map[string]interface{}{
		"id":              request.ID,
		"status":          request.Status,
		"tutor_response":  request.TutorResponse,
		"proposed_slots":  request.ProposedSlots,
		"requested_start": request.RequestedStart,
		"requested_end":   request.RequestedEnd,
		"responded_at":    request.RespondedAt,
		"expected_status": expected,
	}

	result, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return false, fmt.Errorf("update lesson request status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update lesson request status: %w", err)
	}
	return affected == 1, nil
}

// ExpireProposed cancels time_slots_proposed requests whose proposal is older
// than the cutoff. Returns the ids of the requests it cancelled.
func (r *RequestRepository) ExpireProposed(ctx context.Context, cutoff time.Time) ([]string, error) {
	const query = `UPDATE lesson_requests SET status = 'cancelled'
	WHERE status = 'time_slots_proposed' AND responded_at IS NOT NULL AND responded_at < $1
	RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, cutoff); err != nil {
		return nil, fmt.Errorf("expire proposed requests: %w", err)
	}
	return ids, nil
}
