package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	goredis "github.com/attendlab/gatesight-backend/internal/clients/redis"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/pkg/errors"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

const dedupeTTL = 24 * time.Hour

type IngestRequest struct {
	SessionID     uuid.UUID `json:"session_id"`
	WristbandID   string    `json:"wristband_id"`
	Category      string    `json:"category"`
	ScannedAt     time.Time `json:"scanned_at"`
	Lat           *float64  `json:"lat,omitempty"`
	Lon           *float64  `json:"lon,omitempty"`
	AccuracyM     *float64  `json:"accuracy_m,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	ClientEventID *string   `json:"client_event_id,omitempty"`
}

type IngestionService interface {
	// Ingest stores a scan, stamps its GPS quality weight, resolves a gate
	// immediately when one is in range, and enqueues a discovery cycle when
	// the session crosses a scan-count milestone. Duplicate deliveries
	// (same client event id) return the originally stored event.
	Ingest(ctx context.Context, req IngestRequest) (*types.CheckinEvent, error)
}

type ingestionService struct {
	db          *gorm.DB
	log         *logger.Logger
	redisClient goredis.Client
	eventRepo   repos.CheckinEventRepo
	gateRepo    repos.GateRepo
	sessionRepo repos.EventSessionRepo
	jobRepo     repos.JobRunRepo
	configSvc   ThresholdConfigService
}

func NewIngestionService(db *gorm.DB, baseLog *logger.Logger, redisClient goredis.Client, eventRepo repos.CheckinEventRepo, gateRepo repos.GateRepo, sessionRepo repos.EventSessionRepo, jobRepo repos.JobRunRepo, configSvc ThresholdConfigService) IngestionService {
	return &ingestionService{
		db:          db,
		log:         baseLog.With("service", "IngestionService"),
		redisClient: redisClient,
		eventRepo:   eventRepo,
		gateRepo:    gateRepo,
		sessionRepo: sessionRepo,
		jobRepo:     jobRepo,
		configSvc:   configSvc,
	}
}

func (s *ingestionService) Ingest(ctx context.Context, req IngestRequest) (*types.CheckinEvent, error) {
	if req.SessionID == uuid.Nil || req.WristbandID == "" || req.Category == "" {
		return nil, fmt.Errorf("session, wristband and category required: %w", errors.ErrInvalidArgument)
	}
	session, err := s.sessionRepo.GetByID(ctx, nil, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, errors.ErrNotFound)
	}

	if req.ClientEventID != nil && *req.ClientEventID != "" {
		key := fmt.Sprintf("ingest:%s:%s", req.SessionID, *req.ClientEventID)
		fresh, err := s.redisClient.SetIfAbsent(ctx, key, "1", dedupeTTL)
		if err != nil {
			// Redis being down must not drop scans; the unique index is the
			// backstop.
			s.log.Warn("Ingestion dedupe check failed, relying on index", "error", err)
		} else if !fresh {
			existing, err := s.eventRepo.GetByClientEventID(ctx, nil, req.SessionID, *req.ClientEventID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return existing, nil
			}
		}
	}

	cfg, err := s.configSvc.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	scannedAt := req.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}
	outcome := req.Outcome
	if outcome == "" {
		outcome = types.OutcomeSuccess
	}

	event := &types.CheckinEvent{
		SessionID:     req.SessionID,
		WristbandID:   req.WristbandID,
		Category:      req.Category,
		ScannedAt:     scannedAt,
		Lat:           req.Lat,
		Lon:           req.Lon,
		AccuracyM:     req.AccuracyM,
		QualityWeight: QualityWeightFor(req.Lat, req.Lon, req.AccuracyM),
		Outcome:       outcome,
		ClientEventID: req.ClientEventID,
	}

	// Resolve a gate inline when the scan lands near one; everything else
	// stays orphaned for the backfill pass.
	if event.HasLocation() && event.QualityWeight > 0 {
		gates, err := s.gateRepo.ListActiveBySession(ctx, nil, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("list gates: %w", err)
		}
		if gate := nearestGate(gates, *event.Lat, *event.Lon, cfg.OrphanMaxDistanceM); gate != nil {
			event.GateID = &gate.ID
		}
	}

	stored, err := s.eventRepo.Create(ctx, nil, []*types.CheckinEvent{event})
	if err != nil {
		if isUniqueViolation(err) && event.ClientEventID != nil {
			existing, getErr := s.eventRepo.GetByClientEventID(ctx, nil, req.SessionID, *event.ClientEventID)
			if getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("store check-in: %w", err)
	}

	s.maybeTriggerDiscovery(ctx, req.SessionID, cfg, event.QualityWeight)
	return stored[0], nil
}

// maybeTriggerDiscovery counts quality-accepted scans per session in redis
// and enqueues a discovery cycle at the configured milestones. Best effort:
// a failed counter or enqueue only delays discovery until the next
// milestone or the periodic scheduler.
func (s *ingestionService) maybeTriggerDiscovery(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig, qualityWeight float64) {
	if qualityWeight < cfg.MinQualityWeight {
		return
	}
	count, err := s.redisClient.Incr(ctx, fmt.Sprintf("scans:accepted:%s", sessionID))
	if err != nil {
		s.log.Warn("Milestone counter failed", "session_id", sessionID, "error", err)
		return
	}
	if !milestoneReached(count, int64(cfg.FirstRunAtScans), int64(cfg.RefreshEveryScans)) {
		return
	}
	if _, err := s.jobRepo.Enqueue(ctx, nil, &types.JobRun{
		SessionID: sessionID,
		JobType:   types.JobTypeDiscoveryCycle,
	}); err != nil {
		s.log.Warn("Could not enqueue discovery cycle", "session_id", sessionID, "error", err)
		return
	}
	s.log.Info("Discovery cycle enqueued at scan milestone", "session_id", sessionID, "accepted_scans", count)
}

func milestoneReached(count, firstRunAt, refreshEvery int64) bool {
	if firstRunAt <= 0 {
		return false
	}
	if count == firstRunAt {
		return true
	}
	if refreshEvery <= 0 {
		return false
	}
	return count > firstRunAt && (count-firstRunAt)%refreshEvery == 0
}
