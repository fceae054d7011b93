package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorhive/tutorhive-api/internal/service"
	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
	"github.com/tutorhive/tutorhive-api/pkg/response"
)

// AvailabilityHandler exposes tutor availability endpoints.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

// NewAvailabilityHandler constructs AvailabilityHandler.
func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// ListRules godoc
// @Summary List the caller's weekly availability rules
// @Tags Availability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /availability/rules [get]
func (h *AvailabilityHandler) ListRules(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rules, err := h.availability.ListRules(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// CreateRule godoc
// @Summary Add a weekly availability rule
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.UpsertRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /availability/rules [post]
func (h *AvailabilityHandler) CreateRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rule, err := h.availability.CreateRule(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// UpdateRule godoc
// @Summary Update a weekly availability rule
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body service.UpsertRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Router /availability/rules/{id} [put]
func (h *AvailabilityHandler) UpdateRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rule, err := h.availability.UpdateRule(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// DeleteRule godoc
// @Summary Remove a weekly availability rule
// @Tags Availability
// @Produce json
// @Param id path string true "Rule ID"
// @Success 204
// @Router /availability/rules/{id} [delete]
func (h *AvailabilityHandler) DeleteRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.availability.DeleteRule(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListExceptions godoc
// @Summary List the caller's schedule exceptions
// @Tags Availability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /availability/exceptions [get]
func (h *AvailabilityHandler) ListExceptions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	exceptions, err := h.availability.ListExceptions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exceptions, nil)
}

// CreateException godoc
// @Summary Block a date
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.CreateExceptionRequest true "Exception payload"
// @Success 201 {object} response.Envelope
// @Router /availability/exceptions [post]
func (h *AvailabilityHandler) CreateException(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exception, err := h.availability.CreateException(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exception)
}

// DeleteException godoc
// @Summary Unblock a date
// @Tags Availability
// @Produce json
// @Param id path string true "Exception ID"
// @Success 204
// @Router /availability/exceptions/{id} [delete]
func (h *AvailabilityHandler) DeleteException(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.availability.DeleteException(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
