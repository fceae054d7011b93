package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tutorhive/tutorhive-api/internal/models"
)

// ErrLessonOverlap is returned when a reservation loses the race for an
// interval already held by a pending or confirmed lesson.
var ErrLessonOverlap = errors.New("interval overlaps an existing lesson")

const lessonColumns = `id, tutor_id, student_id, subject_id, start_time, end_time, status, created_at, updated_at`

// LessonRepository is the authoritative store of lessons. Reserve is the only
// code path that inserts a lesson row.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID loads a lesson by id.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE id = $1`, lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListActiveForDate returns the tutor's pending and confirmed lessons whose
// interval falls on the given date. Feeds busy-slot marking.
func (r *LessonRepository) ListActiveForDate(ctx context.Context, tutorID string, date time.Time) ([]models.Lesson, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	query := fmt.Sprintf(`SELECT %s FROM lessons
	WHERE tutor_id = $1 AND status IN ('pending', 'confirmed') AND start_time < $3 AND end_time > $2
	ORDER BY start_time ASC`, lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, tutorID, dayStart, dayEnd); err != nil {
		return nil, fmt.Errorf("list active lessons for date: %w", err)
	}
	return lessons, nil
}

// List returns lessons matching the filter with pagination.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	base := "FROM lessons WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("end_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_time ASC LIMIT %d OFFSET %d", lessonColumns, base, size, offset)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lessons: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lessons: %w", err)
	}

	return lessons, total, nil
}

// Reserve atomically checks the tutor's calendar and inserts the lesson. The
// overlap check and the insert run inside one transaction serialised per tutor
// by a Postgres advisory lock, closing the check-then-insert race. A store
// exclusion or unique violation is also reported as ErrLessonOverlap so a
// range constraint on the table can back-stop the lock.
func (r *LessonRepository) Reserve(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lesson.TutorID); err != nil {
		return fmt.Errorf("acquire tutor lock: %w", err)
	}

	var count int
	err = tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM lessons WHERE tutor_id = $1 AND status IN ('pending', 'confirmed') AND start_time < $3 AND end_time > $2`,
		lesson.TutorID, lesson.StartTime, lesson.EndTime)
	if err != nil {
		return fmt.Errorf("check lesson overlap: %w", err)
	}
	if count > 0 {
		err = ErrLessonOverlap
		return err
	}

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO lessons (id, tutor_id, student_id, subject_id, start_time, end_time, status, created_at, updated_at)
		VALUES (:id, :tutor_id, :student_id, :subject_id, :start_time, :end_time, :status, :created_at, :updated_at)`,
		lesson)
	if err != nil {
		if isOverlapViolation(err) {
			err = ErrLessonOverlap
			return err
		}
		return fmt.Errorf("insert lesson: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}
	return nil
}

// UpdateStatus moves a lesson to a new status.
func (r *LessonRepository) UpdateStatus(ctx context.Context, id string, status models.LessonStatus) error {
	const query = `UPDATE lessons SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("lesson %s not found", id)
	}
	return nil
}

func isOverlapViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23P01 exclusion_violation, 23505 unique_violation
		return pqErr.Code == "23P01" || pqErr.Code == "23505"
	}
	return false
}
