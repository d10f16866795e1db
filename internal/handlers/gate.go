package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/services"
)

type GateHandler struct {
	log         *logger.Logger
	gateService services.GateService
}

func NewGateHandler(log *logger.Logger, gateService services.GateService) *GateHandler {
	return &GateHandler{
		log:         log.With("handler", "GateHandler"),
		gateService: gateService,
	}
}

func (h *GateHandler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	gates, err := h.gateService.ListWithBindings(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error("List gates failed", "error", err, "session_id", sessionID)
		RespondServiceError(c, "load_gates_failed", err)
		return
	}
	RespondOK(c, gin.H{"gates": gates})
}

func (h *GateHandler) CreateManual(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req services.ManualGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.SessionID = sessionID
	gate, err := h.gateService.CreateManual(c.Request.Context(), req)
	if err != nil {
		RespondServiceError(c, "create_gate_failed", err)
		return
	}
	RespondOK(c, gin.H{"gate": gate})
}

type renameGateRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *GateHandler) Rename(c *gin.Context) {
	gateID, err := uuid.Parse(c.Param("gate_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_gate_id", err)
		return
	}
	var req renameGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	gate, err := h.gateService.Rename(c.Request.Context(), gateID, req.Name)
	if err != nil {
		RespondServiceError(c, "rename_gate_failed", err)
		return
	}
	RespondOK(c, gin.H{"gate": gate})
}

type setGateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *GateHandler) SetStatus(c *gin.Context) {
	gateID, err := uuid.Parse(c.Param("gate_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_gate_id", err)
		return
	}
	var req setGateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	gate, err := h.gateService.SetStatus(c.Request.Context(), gateID, req.Status)
	if err != nil {
		RespondServiceError(c, "update_gate_failed", err)
		return
	}
	RespondOK(c, gin.H{"gate": gate})
}

type resetBindingRequest struct {
	Category string `json:"category" binding:"required"`
}

func (h *GateHandler) ResetBinding(c *gin.Context) {
	gateID, err := uuid.Parse(c.Param("gate_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_gate_id", err)
		return
	}
	var req resetBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.gateService.ResetBinding(c.Request.Context(), gateID, req.Category); err != nil {
		RespondServiceError(c, "reset_binding_failed", err)
		return
	}
	RespondOK(c, gin.H{"reset": true})
}
