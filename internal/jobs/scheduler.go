package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

// Scheduler enqueues periodic cycles for every active session: enforcement
// runs keep bindings current between scan milestones, duplicate scans catch
// split gates. Enqueue dedupes, so overlapping ticks are harmless.
type Scheduler struct {
	db          *gorm.DB
	log         *logger.Logger
	sessionRepo repos.EventSessionRepo
	jobRepo     repos.JobRunRepo

	enforcementEvery time.Duration
	duplicateEvery   time.Duration
}

func NewScheduler(db *gorm.DB, baseLog *logger.Logger, sessionRepo repos.EventSessionRepo, jobRepo repos.JobRunRepo, enforcementEvery, duplicateEvery time.Duration) *Scheduler {
	if enforcementEvery <= 0 {
		enforcementEvery = 5 * time.Minute
	}
	if duplicateEvery <= 0 {
		duplicateEvery = 15 * time.Minute
	}
	return &Scheduler{
		db:               db,
		log:              baseLog.With("component", "JobScheduler"),
		sessionRepo:      sessionRepo,
		jobRepo:          jobRepo,
		enforcementEvery: enforcementEvery,
		duplicateEvery:   duplicateEvery,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.enforcementEvery, types.JobTypeEnforcementCycle)
	go s.loop(ctx, s.duplicateEvery, types.JobTypeDuplicateScan)
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, jobType string) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueForActiveSessions(ctx, jobType)
		}
	}
}

func (s *Scheduler) enqueueForActiveSessions(ctx context.Context, jobType string) {
	sessions, err := s.sessionRepo.ListActive(ctx, nil)
	if err != nil {
		s.log.Warn("Could not list active sessions", "error", err)
		return
	}
	for _, session := range sessions {
		if _, err := s.jobRepo.Enqueue(ctx, nil, &types.JobRun{
			SessionID: session.ID,
			JobType:   jobType,
		}); err != nil {
			s.log.Warn("Could not enqueue periodic job", "session_id", session.ID, "job_type", jobType, "error", err)
		}
	}
}
