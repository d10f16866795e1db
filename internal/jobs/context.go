package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

// Context is the execution handle for one claimed job run. Handlers report
// lifecycle transitions through it instead of touching the job_run row
// directly, so the status invariants live in one place.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	payload map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo) *Context {
	c := &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
	}
	_ = c.decodePayload()
	return c
}

// decodePayload is tolerant: a malformed payload yields an empty map and the
// handler decides whether a missing field fails the job.
func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// Progress records the current stage and refreshes the heartbeat so the
// stale-running reclaim never steals a live job.
func (c *Context) Progress(stage string) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	_ = c.Repo.UpdateFields(c.Ctx, nil, c.Job.ID, map[string]interface{}{
		"stage":        stage,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	c.Job.Stage = &stage
	c.Job.HeartbeatAt = &now
}

func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = c.Repo.UpdateFields(c.Ctx, nil, c.Job.ID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         stage,
		"last_error":    msg,
		"last_error_at": now,
		"finished_at":   now,
		"updated_at":    now,
	})
	c.Job.Status = types.JobStatusFailed
	c.Job.Stage = &stage
	c.Job.LastError = &msg
	c.Job.LastErrorAt = &now
	c.Job.FinishedAt = &now
}

func (c *Context) Succeed(finalStage string) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	_ = c.Repo.UpdateFields(c.Ctx, nil, c.Job.ID, map[string]interface{}{
		"status":      types.JobStatusSucceeded,
		"stage":       finalStage,
		"last_error":  nil,
		"finished_at": now,
		"updated_at":  now,
	})
	c.Job.Status = types.JobStatusSucceeded
	c.Job.Stage = &finalStage
	c.Job.LastError = nil
	c.Job.FinishedAt = &now
}
