package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/models"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
)

type mockAvailabilityRepo struct {
	rules      map[string]models.WeeklyAvailabilityRule
	exceptions map[string]models.ScheduleException
	deleted    []string
}

func (m *mockAvailabilityRepo) ListRules(ctx context.Context, tutorID string) ([]models.WeeklyAvailabilityRule, error) {
	var list []models.WeeklyAvailabilityRule
	for _, rule := range m.rules {
		if rule.TutorID == tutorID {
			list = append(list, rule)
		}
	}
	return list, nil
}

func (m *mockAvailabilityRepo) ListRulesForDay(ctx context.Context, tutorID string, dayOfWeek int) ([]models.WeeklyAvailabilityRule, error) {
	var list []models.WeeklyAvailabilityRule
	for _, rule := range m.rules {
		if rule.TutorID == tutorID && rule.DayOfWeek == dayOfWeek {
			list = append(list, rule)
		}
	}
	return list, nil
}

func (m *mockAvailabilityRepo) FindRuleByID(ctx context.Context, id string) (*models.WeeklyAvailabilityRule, error) {
	if rule, ok := m.rules[id]; ok {
		return &rule, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAvailabilityRepo) CreateRule(ctx context.Context, rule *models.WeeklyAvailabilityRule) error {
	if rule.ID == "" {
		rule.ID = "new-rule"
	}
	if m.rules == nil {
		m.rules = make(map[string]models.WeeklyAvailabilityRule)
	}
	m.rules[rule.ID] = *rule
	return nil
}

func (m *mockAvailabilityRepo) UpdateRule(ctx context.Context, rule *models.WeeklyAvailabilityRule) error {
	m.rules[rule.ID] = *rule
	return nil
}

func (m *mockAvailabilityRepo) DeleteRule(ctx context.Context, id string) error {
	delete(m.rules, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAvailabilityRepo) ListExceptions(ctx context.Context, tutorID string) ([]models.ScheduleException, error) {
	var list []models.ScheduleException
	for _, exception := range m.exceptions {
		if exception.TutorID == tutorID {
			list = append(list, exception)
		}
	}
	return list, nil
}

func (m *mockAvailabilityRepo) FindExceptionByID(ctx context.Context, id string) (*models.ScheduleException, error) {
	if exception, ok := m.exceptions[id]; ok {
		return &exception, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAvailabilityRepo) CreateException(ctx context.Context, exception *models.ScheduleException) error {
	if exception.ID == "" {
		exception.ID = "new-exception"
	}
	if m.exceptions == nil {
		m.exceptions = make(map[string]models.ScheduleException)
	}
	m.exceptions[exception.ID] = *exception
	return nil
}

func (m *mockAvailabilityRepo) DeleteException(ctx context.Context, id string) error {
	delete(m.exceptions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestAvailabilityServiceCreateRule(t *testing.T) {
	repo := &mockAvailabilityRepo{}
	svc := NewAvailabilityService(repo, nil, nil, zap.NewNop())

	rule, err := svc.CreateRule(context.Background(), "t1", UpsertRuleRequest{
		DayOfWeek:   1,
		StartMinute: 9 * 60,
		EndMinute:   12 * 60,
		IsAvailable: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", rule.TutorID)
	assert.Len(t, repo.rules, 1)
}

func TestAvailabilityServiceCreateRuleRejectsInvertedWindow(t *testing.T) {
	svc := NewAvailabilityService(&mockAvailabilityRepo{}, nil, nil, zap.NewNop())

	_, err := svc.CreateRule(context.Background(), "t1", UpsertRuleRequest{
		DayOfWeek:   1,
		StartMinute: 12 * 60,
		EndMinute:   9 * 60,
		IsAvailable: true,
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAvailabilityServiceCreateRuleOverlapConflicts(t *testing.T) {
	repo := &mockAvailabilityRepo{rules: map[string]models.WeeklyAvailabilityRule{
		"r1": {ID: "r1", TutorID: "t1", DayOfWeek: 1, StartMinute: 9 * 60, EndMinute: 12 * 60, IsAvailable: true},
	}}
	svc := NewAvailabilityService(repo, nil, nil, zap.NewNop())

	_, err := svc.CreateRule(context.Background(), "t1", UpsertRuleRequest{
		DayOfWeek:   1,
		StartMinute: 11 * 60,
		EndMinute:   14 * 60,
		IsAvailable: true,
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAvailabilityServiceCreateRuleTouchingWindowsAllowed(t *testing.T) {
	repo := &mockAvailabilityRepo{rules: map[string]models.WeeklyAvailabilityRule{
		"r1": {ID: "r1", TutorID: "t1", DayOfWeek: 1, StartMinute: 9 * 60, EndMinute: 12 * 60, IsAvailable: true},
	}}
	svc := NewAvailabilityService(repo, nil, nil, zap.NewNop())

	_, err := svc.CreateRule(context.Background(), "t1", UpsertRuleRequest{
		DayOfWeek:   1,
		StartMinute: 12 * 60,
		EndMinute:   14 * 60,
		IsAvailable: true,
	})
	assert.NoError(t, err)
}

func TestAvailabilityServiceUpdateRuleOwnership(t *testing.T) {
	repo := &mockAvailabilityRepo{rules: map[string]models.WeeklyAvailabilityRule{
		"r1": {ID: "r1", TutorID: "t1", DayOfWeek: 1, StartMinute: 9 * 60, EndMinute: 12 * 60, IsAvailable: true},
	}}
	svc := NewAvailabilityService(repo, nil, nil, zap.NewNop())

	_, err := svc.UpdateRule(context.Background(), "t2", "r1", UpsertRuleRequest{
		DayOfWeek:   1,
		StartMinute: 9 * 60,
		EndMinute:   12 * 60,
		IsAvailable: true,
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAvailabilityServiceDeleteRule(t *testing.T) {
	repo := &mockAvailabilityRepo{rules: map[string]models.WeeklyAvailabilityRule{
		"r1": {ID: "r1", TutorID: "t1", DayOfWeek: 1, StartMinute: 9 * 60, EndMinute: 12 * 60, IsAvailable: true},
	}}
	svc := NewAvailabilityService(repo, nil, nil, zap.NewNop())

	require.NoError(t, svc.DeleteRule(context.Background(), "t1", "r1"))
	assert.Contains(t, repo.deleted, "r1")
}

func TestAvailabilityServiceCreateException(t *testing.T) {
	repo := &mockAvailabilityRepo{}
	svc := NewAvailabilityService(repo, nil, nil, zap.NewNop())

	exception, err := svc.CreateException(context.Background(), "t1", CreateExceptionRequest{
		Date:      "2026-03-02",
		IsFullDay: true,
	})
	require.NoError(t, err)
	assert.True(t, exception.IsFullDay)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), exception.Date)
}

func TestAvailabilityServiceCreateExceptionBadDate(t *testing.T) {
	svc := NewAvailabilityService(&mockAvailabilityRepo{}, nil, nil, zap.NewNop())

	_, err := svc.CreateException(context.Background(), "t1", CreateExceptionRequest{Date: "March 2nd"})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
