package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/services"
)

type SessionHandler struct {
	log            *logger.Logger
	sessionService services.EventSessionService
}

func NewSessionHandler(log *logger.Logger, sessionService services.EventSessionService) *SessionHandler {
	return &SessionHandler{
		log:            log.With("handler", "SessionHandler"),
		sessionService: sessionService,
	}
}

type createSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	session, err := h.sessionService.Create(c.Request.Context(), req.Name)
	if err != nil {
		h.log.Error("Create session failed", "error", err)
		RespondServiceError(c, "create_session_failed", err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

func (h *SessionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	session, err := h.sessionService.Get(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "load_session_failed", err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

func (h *SessionHandler) ListActive(c *gin.Context) {
	sessions, err := h.sessionService.ListActive(c.Request.Context())
	if err != nil {
		h.log.Error("ListActive sessions failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "load_sessions_failed", err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}

type setSessionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *SessionHandler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req setSessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	session, err := h.sessionService.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		RespondServiceError(c, "update_session_failed", err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}
