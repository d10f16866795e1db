package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	goredis "github.com/attendlab/gatesight-backend/internal/clients/redis"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

const (
	discoveryLockTTL = 2 * time.Minute
	// Bounded work per cycle; leftovers are picked up from the checkpoint on
	// the next run.
	clusterWindowLimit = 1000
	learnerBatchLimit  = 500
	orphanBatchLimit   = 500
)

// DiscoveryService orchestrates one background cycle for a session:
// clustering, gate materialization, orphan backfill, then binding learning
// from the checkpoint. Cycles for the same session serialize on a redis
// lock; cycles for different sessions are independent.
type DiscoveryService interface {
	RunDiscoveryCycle(ctx context.Context, sessionID uuid.UUID) error
	// RunEnforcementCycle skips the spatial stages and only backfills
	// orphans and advances the binding learner.
	RunEnforcementCycle(ctx context.Context, sessionID uuid.UUID) error
}

type discoveryService struct {
	db             *gorm.DB
	log            *logger.Logger
	redisClient    goredis.Client
	sessionRepo    repos.EventSessionRepo
	eventRepo      repos.CheckinEventRepo
	checkpointRepo repos.DiscoveryCheckpointRepo
	configSvc      ThresholdConfigService
	clusterer      ClusteringService
	materializer   GateMaterializer
	orphanSvc      OrphanAssignmentService
	learner        BindingLearner
}

func NewDiscoveryService(db *gorm.DB, baseLog *logger.Logger, redisClient goredis.Client, sessionRepo repos.EventSessionRepo, eventRepo repos.CheckinEventRepo, checkpointRepo repos.DiscoveryCheckpointRepo, configSvc ThresholdConfigService, clusterer ClusteringService, materializer GateMaterializer, orphanSvc OrphanAssignmentService, learner BindingLearner) DiscoveryService {
	return &discoveryService{
		db:             db,
		log:            baseLog.With("service", "DiscoveryService"),
		redisClient:    redisClient,
		sessionRepo:    sessionRepo,
		eventRepo:      eventRepo,
		checkpointRepo: checkpointRepo,
		configSvc:      configSvc,
		clusterer:      clusterer,
		materializer:   materializer,
		orphanSvc:      orphanSvc,
		learner:        learner,
	}
}

func (s *discoveryService) RunDiscoveryCycle(ctx context.Context, sessionID uuid.UUID) error {
	return s.runCycle(ctx, sessionID, true)
}

func (s *discoveryService) RunEnforcementCycle(ctx context.Context, sessionID uuid.UUID) error {
	return s.runCycle(ctx, sessionID, false)
}

func (s *discoveryService) runCycle(ctx context.Context, sessionID uuid.UUID, withClustering bool) error {
	if sessionID == uuid.Nil {
		return nil
	}
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.Status != types.SessionStatusActive {
		s.log.Debug("Skipping cycle for missing/inactive session", "session_id", sessionID)
		return nil
	}

	lockKey := fmt.Sprintf("cycle:%s", sessionID)
	token, acquired, err := s.redisClient.AcquireLock(ctx, lockKey, discoveryLockTTL)
	if err != nil {
		return fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !acquired {
		s.log.Debug("Cycle already in flight for session", "session_id", sessionID)
		return nil
	}
	defer func() {
		if err := s.redisClient.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("Cycle lock release failed", "session_id", sessionID, "error", err)
		}
	}()

	cfg, err := s.configSvc.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if withClustering {
		if err := s.discoverGates(ctx, sessionID, cfg); err != nil {
			return err
		}
	}
	backfilled, err := s.orphanSvc.Assign(ctx, sessionID, cfg.OrphanMaxDistanceM, orphanBatchLimit)
	if err != nil {
		return err
	}
	return s.advanceLearner(ctx, sessionID, cfg, backfilled)
}

func (s *discoveryService) discoverGates(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig) error {
	accepted, err := s.eventRepo.ListQualityAccepted(ctx, nil, sessionID, cfg.MinQualityWeight, clusterWindowLimit)
	if err != nil {
		return fmt.Errorf("list clustering input: %w", err)
	}
	if len(accepted) < cfg.MinGateSamples {
		s.log.Debug("Not enough accepted scans to cluster", "session_id", sessionID, "accepted", len(accepted))
		return nil
	}
	points := make([]ScanPoint, 0, len(accepted))
	for _, e := range accepted {
		points = append(points, ScanPoint{ID: e.ID, Lat: *e.Lat, Lon: *e.Lon, ScannedAt: e.ScannedAt})
	}
	clusters := s.clusterer.Cluster(points, cfg.ClusterEpsilonM, cfg.MinGateSamples)
	if len(clusters) == 0 {
		// Insufficient density is a no-op, not an error; the next milestone
		// retries with more data.
		s.log.Debug("No clusters found", "session_id", sessionID, "points", len(points))
		return nil
	}
	touched, err := s.materializer.Reconcile(ctx, sessionID, cfg, clusters)
	if err != nil {
		return fmt.Errorf("materialize clusters: %w", err)
	}
	s.log.Info("Discovery pass reconciled gates", "session_id", sessionID, "clusters", len(clusters), "gates_touched", len(touched))
	return nil
}

func (s *discoveryService) advanceLearner(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig, backfilled []*types.CheckinEvent) error {
	checkpoint, err := s.checkpointRepo.GetBySession(ctx, nil, sessionID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	afterAt := time.Time{}
	afterID := uuid.Nil
	if checkpoint != nil {
		afterAt = checkpoint.LastEventCreatedAt
		afterID = checkpoint.LastEventID
	}

	// Orphan backfill sets gate_id on rows whose created_at can already sit
	// behind the cursor; the cursor scan below would never return those, so
	// feed them to the learner directly. Rows still ahead of the cursor are
	// left to the scan to avoid double counting.
	missed := eventsBehindCursor(backfilled, afterAt, afterID)
	if len(missed) > 0 {
		if err := s.learner.ProcessEvents(ctx, sessionID, cfg, missed); err != nil {
			return fmt.Errorf("process backfilled events: %w", err)
		}
	}

	events, err := s.eventRepo.ListSuccessfulGatedAfter(ctx, nil, sessionID, afterAt, afterID, learnerBatchLimit)
	if err != nil {
		return fmt.Errorf("list learner input: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	if err := s.learner.ProcessEvents(ctx, sessionID, cfg, events); err != nil {
		return fmt.Errorf("process binding events: %w", err)
	}
	last := events[len(events)-1]
	if err := s.checkpointRepo.Advance(ctx, nil, sessionID, last.CreatedAt, last.ID); err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	s.log.Info("Binding learner advanced", "session_id", sessionID, "events", len(events))
	return nil
}

// eventsBehindCursor keeps the successful, gate-resolved events whose
// (created_at, id) position is at or before the checkpoint cursor. These are
// invisible to the cursor scan and must be learned out of band.
func eventsBehindCursor(events []*types.CheckinEvent, afterAt time.Time, afterID uuid.UUID) []*types.CheckinEvent {
	var missed []*types.CheckinEvent
	for _, e := range events {
		if e == nil || e.GateID == nil || e.Outcome != types.OutcomeSuccess {
			continue
		}
		if behindCursor(e.CreatedAt, e.ID, afterAt, afterID) {
			missed = append(missed, e)
		}
	}
	return missed
}

// behindCursor mirrors the repo's tuple comparison: postgres orders uuids
// bytewise, so ties on created_at break on the raw id bytes.
func behindCursor(createdAt time.Time, id uuid.UUID, afterAt time.Time, afterID uuid.UUID) bool {
	if createdAt.Before(afterAt) {
		return true
	}
	if createdAt.Equal(afterAt) {
		return bytes.Compare(id[:], afterID[:]) <= 0
	}
	return false
}
