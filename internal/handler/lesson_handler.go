package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tutorhive/tutorhive-api/internal/models"
	"github.com/tutorhive/tutorhive-api/internal/service"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
	"github.com/tutorhive/tutorhive-api/pkg/response"
)

// LessonHandler exposes lesson ledger endpoints.
type LessonHandler struct {
	lessons *service.LessonService
}

// NewLessonHandler constructs LessonHandler.
func NewLessonHandler(lessons *service.LessonService) *LessonHandler {
	return &LessonHandler{lessons: lessons}
}

// Create godoc
// @Summary Reserve a lesson directly
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body service.ReserveLessonRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ReserveLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.lessons.Reserve(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// List godoc
// @Summary List the caller's lessons
// @Tags Lessons
// @Produce json
// @Param status query string false "Filter by status"
// @Param from query string false "Earliest start (RFC 3339)"
// @Param to query string false "Latest start (RFC 3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.LessonFilter
	switch claims.Role {
	case models.RoleTutor:
		filter.TutorID = claims.UserID
	case models.RoleStudent:
		filter.StudentID = claims.UserID
	}
	filter.Status = models.LessonStatus(c.Query("status"))
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &ts
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	lessons, pagination, err := h.lessons.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, pagination)
}

// Get godoc
// @Summary Get a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.lessons.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// CanJoin godoc
// @Summary Check whether the caller may join the lesson session now
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/can-join [get]
func (h *LessonHandler) CanJoin(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	decision, err := h.lessons.CanJoin(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Cancel godoc
// @Summary Cancel a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/cancel [post]
func (h *LessonHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.lessons.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Complete godoc
// @Summary Mark a lesson completed
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *LessonHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lesson, err := h.lessons.Complete(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// ListStudents godoc
// @Summary List the caller's student relationships
// @Tags Lessons
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /relationships [get]
func (h *LessonHandler) ListStudents(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	relationships, err := h.lessons.ListStudents(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, relationships, nil)
}

// ExportSchedule godoc
// @Summary Export the caller's upcoming schedule
// @Tags Lessons
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /lessons/export [get]
func (h *LessonHandler) ExportSchedule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.lessons.ExportSchedule(c.Request.Context(), claims.UserID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("schedule-%s.%s", time.Now().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
