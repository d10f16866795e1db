package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/middleware"
	"github.com/attendlab/gatesight-backend/internal/services"
)

type MergeHandler struct {
	log          *logger.Logger
	mergeService services.MergeService
}

func NewMergeHandler(log *logger.Logger, mergeService services.MergeService) *MergeHandler {
	return &MergeHandler{
		log:          log.With("handler", "MergeHandler"),
		mergeService: mergeService,
	}
}

func (h *MergeHandler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	suggestions, err := h.mergeService.ListBySession(c.Request.Context(), sessionID, c.Query("status"))
	if err != nil {
		h.log.Error("List merge suggestions failed", "error", err, "session_id", sessionID)
		RespondServiceError(c, "load_suggestions_failed", err)
		return
	}
	RespondOK(c, gin.H{"suggestions": suggestions})
}

type reviewMergeRequest struct {
	Reason string `json:"reason"`
}

func (h *MergeHandler) Approve(c *gin.Context) {
	suggestionID, err := uuid.Parse(c.Param("suggestion_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_suggestion_id", err)
		return
	}
	var req reviewMergeRequest
	_ = c.ShouldBindJSON(&req)
	suggestion, err := h.mergeService.Approve(c.Request.Context(), suggestionID, middleware.OperatorID(c), req.Reason)
	if err != nil {
		RespondServiceError(c, "approve_merge_failed", err)
		return
	}
	RespondOK(c, gin.H{"suggestion": suggestion})
}

func (h *MergeHandler) Reject(c *gin.Context) {
	suggestionID, err := uuid.Parse(c.Param("suggestion_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_suggestion_id", err)
		return
	}
	var req reviewMergeRequest
	_ = c.ShouldBindJSON(&req)
	suggestion, err := h.mergeService.Reject(c.Request.Context(), suggestionID, middleware.OperatorID(c), req.Reason)
	if err != nil {
		RespondServiceError(c, "reject_merge_failed", err)
		return
	}
	RespondOK(c, gin.H{"suggestion": suggestion})
}
