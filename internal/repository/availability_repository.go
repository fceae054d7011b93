package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/tutorhive-api/internal/models"
)

// AvailabilityRepository persists weekly availability rules and full-day
// schedule exceptions per tutor.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListRules returns all rules for a tutor ordered by day and start time.
func (r *AvailabilityRepository) ListRules(ctx context.Context, tutorID string) ([]models.WeeklyAvailabilityRule, error) {
	const query = `SELECT id, tutor_id, day_of_week, start_minute, end_minute, is_available, created_at, updated_at
	FROM weekly_availability_rules WHERE tutor_id = $1 ORDER BY day_of_week ASC, start_minute ASC`
	var rules []models.WeeklyAvailabilityRule
	if err := r.db.SelectContext(ctx, &rules, query, tutorID); err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	return rules, nil
}

// ListRulesForDay returns the rules covering one ISO weekday.
func (r *AvailabilityRepository) ListRulesForDay(ctx context.Context, tutorID string, dayOfWeek int) ([]models.WeeklyAvailabilityRule, error) {
	const query = `SELECT id, tutor_id, day_of_week, start_minute, end_minute, is_available, created_at, updated_at
	FROM weekly_availability_rules WHERE tutor_id = $1 AND day_of_week = $2 ORDER BY start_minute ASC`
	var rules []models.WeeklyAvailabilityRule
	if err := r.db.SelectContext(ctx, &rules, query, tutorID, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list availability rules for day: %w", err)
	}
	return rules, nil
}

// FindRuleByID loads a single rule.
func (r *AvailabilityRepository) FindRuleByID(ctx context.Context, id string) (*models.WeeklyAvailabilityRule, error) {
	const query = `SELECT id, tutor_id, day_of_week, start_minute, end_minute, is_available, created_at, updated_at
	FROM weekly_availability_rules WHERE id = $1`
	var rule models.WeeklyAvailabilityRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule stores a new weekly rule.
func (r *AvailabilityRepository) CreateRule(ctx context.Context, rule *models.WeeklyAvailabilityRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	const query = `INSERT INTO weekly_availability_rules (id, tutor_id, day_of_week, start_minute, end_minute, is_available, created_at, updated_at)
	VALUES (:id, :tutor_id, :day_of_week, :start_minute, :end_minute, :is_available, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create availability rule: %w", err)
	}
	return nil
}

// UpdateRule modifies an existing weekly rule.
func (r *AvailabilityRepository) UpdateRule(ctx context.Context, rule *models.WeeklyAvailabilityRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE weekly_availability_rules
	SET day_of_week = :day_of_week, start_minute = :start_minute, end_minute = :end_minute, is_available = :is_available, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("update availability rule: %w", err)
	}
	return nil
}

// DeleteRule removes a weekly rule.
func (r *AvailabilityRepository) DeleteRule(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM weekly_availability_rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete availability rule: %w", err)
	}
	return nil
}

// ListExceptions returns a tutor's schedule exceptions ordered by date.
func (r *AvailabilityRepository) ListExceptions(ctx context.Context, tutorID string) ([]models.ScheduleException, error) {
	const query = `SELECT id, tutor_id, date, is_full_day, created_at FROM schedule_exceptions WHERE tutor_id = $1 ORDER BY date ASC`
	var exceptions []models.ScheduleException
	if err := r.db.SelectContext(ctx, &exceptions, query, tutorID); err != nil {
		return nil, fmt.Errorf("list schedule exceptions: %w", err)
	}
	return exceptions, nil
}

// FindExceptionByID loads a single exception.
func (r *AvailabilityRepository) FindExceptionByID(ctx context.Context, id string) (*models.ScheduleException, error) {
	const query = `SELECT id, tutor_id, date, is_full_day, created_at FROM schedule_exceptions WHERE id = $1`
	var exception models.ScheduleException
	if err := r.db.GetContext(ctx, &exception, query, id); err != nil {
		return nil, err
	}
	return &exception, nil
}

// HasFullDayException reports whether the date is fully blocked for the tutor.
func (r *AvailabilityRepository) HasFullDayException(ctx context.Context, tutorID string, date time.Time) (bool, error) {
	const query = `SELECT COUNT(*) FROM schedule_exceptions WHERE tutor_id = $1 AND date = $2 AND is_full_day = true`
	var count int
	if err := r.db.GetContext(ctx, &count, query, tutorID, date.Format("2006-01-02")); err != nil {
		return false, fmt.Errorf("check full-day exception: %w", err)
	}
	return count > 0, nil
}

// CreateException stores a new schedule exception.
func (r *AvailabilityRepository) CreateException(ctx context.Context, exception *models.ScheduleException) error {
	if exception.ID == "" {
		exception.ID = uuid.NewString()
	}
	if exception.CreatedAt.IsZero() {
		exception.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO schedule_exceptions (id, tutor_id, date, is_full_day, created_at)
	VALUES (:id, :tutor_id, :date, :is_full_day, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exception); err != nil {
		return fmt.Errorf("create schedule exception: %w", err)
	}
	return nil
}

// DeleteException removes a schedule exception.
func (r *AvailabilityRepository) DeleteException(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedule_exceptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule exception: %w", err)
	}
	return nil
}
