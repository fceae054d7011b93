package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorhive/tutorhive-api/internal/service"
	"github.com/tutorhive/tutorhive-api/pkg/response"
)

// SlotHandler exposes bookable-slot lookup endpoints.
type SlotHandler struct {
	slots *service.SlotService
}

// NewSlotHandler constructs SlotHandler.
func NewSlotHandler(slots *service.SlotService) *SlotHandler {
	return &SlotHandler{slots: slots}
}

// List godoc
// @Summary List bookable slots for a tutor on a date
// @Tags Slots
// @Produce json
// @Param tutorID path string true "Tutor ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /tutors/{tutorID}/slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	slots, err := h.slots.GetAvailableSlots(c.Request.Context(), c.Param("tutorID"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
