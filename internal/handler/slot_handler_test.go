package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/models"
	"github.com/tutorhive/tutorhive-api/internal/service"
	"github.com/tutorhive/tutorhive-api/pkg/config"
)

type availabilityStub struct {
	rules []models.WeeklyAvailabilityRule
}

func (s *availabilityStub) HasFullDayException(ctx context.Context, tutorID string, date time.Time) (bool, error) {
	return false, nil
}

func (s *availabilityStub) ListRulesForDay(ctx context.Context, tutorID string, dayOfWeek int) ([]models.WeeklyAvailabilityRule, error) {
	return s.rules, nil
}

type activeLessonStub struct{}

func (activeLessonStub) ListActiveForDate(ctx context.Context, tutorID string, date time.Time) ([]models.Lesson, error) {
	return nil, nil
}

func newSlotHandler(rules []models.WeeklyAvailabilityRule) *SlotHandler {
	cfg := config.BookingConfig{
		SlotDuration:   time.Hour,
		DayStartMinute: 9 * 60,
		DayEndMinute:   20 * 60,
	}
	svc := service.NewSlotService(&availabilityStub{rules: rules}, activeLessonStub{}, nil, nil, cfg, zap.NewNop())
	return NewSlotHandler(svc)
}

func TestSlotHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSlotHandler([]models.WeeklyAvailabilityRule{
		{TutorID: "t1", DayOfWeek: 1, StartMinute: 9 * 60, EndMinute: 11 * 60, IsAvailable: true},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/tutors/t1/slots?date=2026-03-02", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "tutorID", Value: "t1"}}

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "slot_id")
}

func TestSlotHandlerListBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSlotHandler(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/tutors/t1/slots?date=tomorrow", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "tutorID", Value: "t1"}}

	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
