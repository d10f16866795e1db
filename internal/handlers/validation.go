package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/services"
)

type ValidationHandler struct {
	log               *logger.Logger
	validationService services.ValidationService
}

func NewValidationHandler(log *logger.Logger, validationService services.ValidationService) *ValidationHandler {
	return &ValidationHandler{
		log:               log.With("handler", "ValidationHandler"),
		validationService: validationService,
	}
}

type validateRequest struct {
	GateID   uuid.UUID `json:"gate_id" binding:"required"`
	Category string    `json:"category" binding:"required"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
}

func (h *ValidationHandler) Validate(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.validationService.Validate(c.Request.Context(), sessionID, req.GateID, req.Category, req.Lat, req.Lon)
	if err != nil {
		RespondServiceError(c, "validate_failed", err)
		return
	}
	RespondOK(c, result)
}
