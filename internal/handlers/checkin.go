package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/services"
)

type CheckinHandler struct {
	log              *logger.Logger
	ingestionService services.IngestionService
}

func NewCheckinHandler(log *logger.Logger, ingestionService services.IngestionService) *CheckinHandler {
	return &CheckinHandler{
		log:              log.With("handler", "CheckinHandler"),
		ingestionService: ingestionService,
	}
}

func (h *CheckinHandler) Ingest(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req services.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.SessionID = sessionID
	event, err := h.ingestionService.Ingest(c.Request.Context(), req)
	if err != nil {
		h.log.Error("Ingest failed", "error", err, "session_id", sessionID)
		RespondServiceError(c, "ingest_failed", err)
		return
	}
	RespondOK(c, gin.H{"event": event})
}
