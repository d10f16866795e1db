package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/geo"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/pkg/errors"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

type ManualGateRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Name      string    `json:"name"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
}

type GateService interface {
	Get(ctx context.Context, id uuid.UUID) (*types.Gate, error)
	// ListWithBindings returns every gate for a session (including inactive
	// ones) with its category bindings preloaded, best health first.
	ListWithBindings(ctx context.Context, sessionID uuid.UUID) ([]*types.Gate, error)
	// CreateManual registers an operator-defined gate. Manual gates join the
	// same matching, orphan-backfill and learning paths as clustered gates
	// but never carry the premature-creation health penalty.
	CreateManual(ctx context.Context, req ManualGateRequest) (*types.Gate, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (*types.Gate, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*types.Gate, error)
	// ResetBinding returns an unbound (gate, category) binding to probation.
	ResetBinding(ctx context.Context, gateID uuid.UUID, category string) error
}

type gateService struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    repos.GateRepo
	learner BindingLearner
}

func NewGateService(db *gorm.DB, baseLog *logger.Logger, repo repos.GateRepo, learner BindingLearner) GateService {
	return &gateService{
		db:      db,
		log:     baseLog.With("service", "GateService"),
		repo:    repo,
		learner: learner,
	}
}

func (s *gateService) Get(ctx context.Context, id uuid.UUID) (*types.Gate, error) {
	gate, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, fmt.Errorf("gate %s: %w", id, errors.ErrNotFound)
	}
	return gate, nil
}

func (s *gateService) ListWithBindings(ctx context.Context, sessionID uuid.UUID) ([]*types.Gate, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("session id required: %w", errors.ErrInvalidArgument)
	}
	return s.repo.ListBySessionWithBindings(ctx, nil, sessionID)
}

func (s *gateService) CreateManual(ctx context.Context, req ManualGateRequest) (*types.Gate, error) {
	if req.SessionID == uuid.Nil || req.Name == "" {
		return nil, fmt.Errorf("session id and name required: %w", errors.ErrInvalidArgument)
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		return nil, fmt.Errorf("lat and lon must be given together: %w", errors.ErrInvalidArgument)
	}
	now := time.Now()
	gate := &types.Gate{
		SessionID:        req.SessionID,
		Name:             req.Name,
		Lat:              req.Lat,
		Lon:              req.Lon,
		DerivationMethod: types.GateDerivedFromManual,
		Status:           types.GateStatusActive,
		FirstSeenAt:      now,
		LastActivityAt:   now,
	}
	if gate.HasLocation() {
		gate.GeoKey = geo.Key(*gate.Lat, *gate.Lon)
	} else {
		// A manual gate without coordinates still needs a unique slot in the
		// (session, geo_key) index.
		gate.GeoKey = "manual:" + uuid.NewString()
	}
	gate.HealthScore = healthScore(0, gate.HasLocation(), now, now, false, 1)

	created, err := s.repo.Create(ctx, nil, gate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("a gate already exists at %s: %w", gate.GeoKey, errors.ErrConflict)
		}
		return nil, fmt.Errorf("create gate: %w", err)
	}
	s.log.Info("Manual gate created", "session_id", req.SessionID, "gate_id", created.ID, "name", req.Name)
	return created, nil
}

func (s *gateService) Rename(ctx context.Context, id uuid.UUID, name string) (*types.Gate, error) {
	if name == "" {
		return nil, fmt.Errorf("gate name required: %w", errors.ErrInvalidArgument)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFields(ctx, nil, id, map[string]interface{}{
		"name":       name,
		"updated_at": time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("rename gate: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *gateService) SetStatus(ctx context.Context, id uuid.UUID, status string) (*types.Gate, error) {
	switch status {
	case types.GateStatusActive, types.GateStatusInactive, types.GateStatusMaintenance:
	default:
		return nil, fmt.Errorf("unknown gate status %q: %w", status, errors.ErrInvalidArgument)
	}
	gate, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if gate.Status == status {
		return gate, nil
	}
	if err := s.repo.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("update gate status: %w", err)
	}
	s.log.Info("Gate status changed", "gate_id", id, "from", gate.Status, "to", status)
	return s.Get(ctx, id)
}

func (s *gateService) ResetBinding(ctx context.Context, gateID uuid.UUID, category string) error {
	if category == "" {
		return fmt.Errorf("category required: %w", errors.ErrInvalidArgument)
	}
	if _, err := s.Get(ctx, gateID); err != nil {
		return err
	}
	return s.learner.ResetBinding(ctx, gateID, category)
}
