package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/geo"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

type OrphanAssignmentService interface {
	// Assign backfills gate references for check-ins that had no gate at
	// scan time. Only active gates within maxDistanceM qualify; events with
	// no gate in range stay orphaned and are retried next cycle. Never
	// creates gates. Returns the events it assigned, gate reference set, so
	// the caller can hand them to the binding learner: their created_at may
	// already sit behind the learner checkpoint, in which case the cursor
	// scan would never see them.
	Assign(ctx context.Context, sessionID uuid.UUID, maxDistanceM float64, limit int) ([]*types.CheckinEvent, error)
}

type orphanAssignmentService struct {
	db        *gorm.DB
	log       *logger.Logger
	eventRepo repos.CheckinEventRepo
	gateRepo  repos.GateRepo
}

func NewOrphanAssignmentService(db *gorm.DB, baseLog *logger.Logger, eventRepo repos.CheckinEventRepo, gateRepo repos.GateRepo) OrphanAssignmentService {
	return &orphanAssignmentService{
		db:        db,
		log:       baseLog.With("service", "OrphanAssignmentService"),
		eventRepo: eventRepo,
		gateRepo:  gateRepo,
	}
}

func (s *orphanAssignmentService) Assign(ctx context.Context, sessionID uuid.UUID, maxDistanceM float64, limit int) ([]*types.CheckinEvent, error) {
	if sessionID == uuid.Nil || maxDistanceM <= 0 {
		return nil, nil
	}
	orphans, err := s.eventRepo.ListOrphansWithLocation(ctx, nil, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil, nil
	}
	gates, err := s.gateRepo.ListActiveBySession(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list active gates: %w", err)
	}
	if len(gates) == 0 {
		return nil, nil
	}

	var assigned []*types.CheckinEvent
	for _, event := range orphans {
		gate := nearestGate(gates, *event.Lat, *event.Lon, maxDistanceM)
		if gate == nil {
			continue
		}
		ok, err := s.eventRepo.AssignGate(ctx, nil, event.ID, gate.ID)
		if err != nil {
			return assigned, fmt.Errorf("assign gate: %w", err)
		}
		if ok {
			gateID := gate.ID
			event.GateID = &gateID
			assigned = append(assigned, event)
		}
	}
	if len(assigned) > 0 {
		s.log.Info("Backfilled orphan check-ins", "session_id", sessionID, "assigned", len(assigned), "scanned", len(orphans))
	}
	return assigned, nil
}

// nearestGateDistance is a test seam over the same matching rule Assign uses.
func nearestGateDistance(gates []*types.Gate, lat, lon, maxDistanceM float64) (*types.Gate, float64) {
	best := nearestGate(gates, lat, lon, maxDistanceM)
	if best == nil {
		return nil, 0
	}
	return best, geo.DistanceMeters(lat, lon, *best.Lat, *best.Lon)
}
