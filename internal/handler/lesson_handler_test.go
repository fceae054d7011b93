package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorhive/tutorhive-api/internal/middleware"
	"github.com/tutorhive/tutorhive-api/internal/models"
	"github.com/tutorhive/tutorhive-api/internal/service"
)

type lessonRepoStub struct {
	lessons map[string]models.Lesson
}

func (s *lessonRepoStub) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if lesson, ok := s.lessons[id]; ok {
		return &lesson, nil
	}
	return nil, sql.ErrNoRows
}

func (s *lessonRepoStub) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	var list []models.Lesson
	for _, lesson := range s.lessons {
		list = append(list, lesson)
	}
	return list, len(list), nil
}

func (s *lessonRepoStub) Reserve(ctx context.Context, lesson *models.Lesson) error {
	lesson.ID = "l-new"
	return nil
}

func (s *lessonRepoStub) UpdateStatus(ctx context.Context, id string, status models.LessonStatus) error {
	return nil
}

type relationshipStub struct{}

func (relationshipStub) Upsert(ctx context.Context, studentID, tutorID, subjectID string) error {
	return nil
}

func (relationshipStub) ListByTutor(ctx context.Context, tutorID string) ([]models.StudentTutorRelationship, error) {
	return nil, nil
}

func newLessonHandler(repo *lessonRepoStub) *LessonHandler {
	svc := service.NewLessonService(repo, relationshipStub{}, nil, nil, nil, 15*time.Minute, nil, zap.NewNop())
	return NewLessonHandler(svc)
}

func TestLessonHandlerCanJoin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &lessonRepoStub{lessons: map[string]models.Lesson{"l1": {
		ID:        "l1",
		TutorID:   "t1",
		StudentID: "s1",
		StartTime: time.Now().Add(5 * time.Minute),
		EndTime:   time.Now().Add(65 * time.Minute),
		Status:    models.LessonConfirmed,
	}}}
	handler := newLessonHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/lessons/l1/can-join", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	handler.CanJoin(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":true`)
}

func TestLessonHandlerCanJoinRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newLessonHandler(&lessonRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/lessons/l1/can-join", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "l1"}}

	handler.CanJoin(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLessonHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newLessonHandler(&lessonRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/lessons/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLessonHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newLessonHandler(&lessonRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/lessons", http.NoBody)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTutor})

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
