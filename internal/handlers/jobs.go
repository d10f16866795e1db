package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

// JobsHandler lets operators trigger cycles out of band and inspect runs.
// Triggers only enqueue; the worker picks jobs up on its own cadence.
type JobsHandler struct {
	log     *logger.Logger
	jobRepo repos.JobRunRepo
}

func NewJobsHandler(log *logger.Logger, jobRepo repos.JobRunRepo) *JobsHandler {
	return &JobsHandler{
		log:     log.With("handler", "JobsHandler"),
		jobRepo: jobRepo,
	}
}

func (h *JobsHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobRepo.GetByID(c.Request.Context(), nil, jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "load_job_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

func (h *JobsHandler) TriggerDiscovery(c *gin.Context) {
	h.trigger(c, types.JobTypeDiscoveryCycle)
}

func (h *JobsHandler) TriggerEnforcement(c *gin.Context) {
	h.trigger(c, types.JobTypeEnforcementCycle)
}

func (h *JobsHandler) TriggerDuplicateScan(c *gin.Context) {
	h.trigger(c, types.JobTypeDuplicateScan)
}

func (h *JobsHandler) trigger(c *gin.Context, jobType string) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	job, err := h.jobRepo.Enqueue(c.Request.Context(), nil, &types.JobRun{
		SessionID: sessionID,
		JobType:   jobType,
	})
	if err != nil {
		h.log.Error("Enqueue job failed", "error", err, "session_id", sessionID, "job_type", jobType)
		RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}
