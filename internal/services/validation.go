package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/geo"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/pkg/errors"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

const (
	DecisionAllow          = "allow"
	DecisionFlagMismatch   = "flag_mismatch"
	DecisionDenyOutOfRange = "deny_out_of_range"

	// minAcceptedRadiusM floors the accepted radius so a brand-new gate with
	// near-zero variance does not reject everything around it.
	minAcceptedRadiusM = 50.0
	// denyMarginFactor is the "wide margin" multiplier on the accepted
	// radius before a located scan is denied outright.
	denyMarginFactor = 3.0
)

type ValidationResult struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
}

// ValidationService is the only synchronous hot-path component: one read of
// the gate and its bindings, then a pure decision. It never touches the
// clustering or learning machinery.
type ValidationService interface {
	Validate(ctx context.Context, sessionID, gateID uuid.UUID, category string, lat, lon *float64) (*ValidationResult, error)
}

type validationService struct {
	db          *gorm.DB
	log         *logger.Logger
	gateRepo    repos.GateRepo
	bindingRepo repos.CategoryBindingRepo
}

func NewValidationService(db *gorm.DB, baseLog *logger.Logger, gateRepo repos.GateRepo, bindingRepo repos.CategoryBindingRepo) ValidationService {
	return &validationService{
		db:          db,
		log:         baseLog.With("service", "ValidationService"),
		gateRepo:    gateRepo,
		bindingRepo: bindingRepo,
	}
}

func (s *validationService) Validate(ctx context.Context, sessionID, gateID uuid.UUID, category string, lat, lon *float64) (*ValidationResult, error) {
	ctx, span := otel.Tracer("gatesight").Start(ctx, "validation.validate")
	defer span.End()

	if sessionID == uuid.Nil || gateID == uuid.Nil || category == "" {
		return nil, fmt.Errorf("session, gate and category required: %w", errors.ErrInvalidArgument)
	}

	gate, err := s.gateRepo.GetByID(ctx, nil, gateID)
	if err != nil {
		return nil, fmt.Errorf("load gate: %w", err)
	}
	if gate == nil || gate.SessionID != sessionID {
		return nil, fmt.Errorf("gate %s: %w", gateID, errors.ErrNotFound)
	}
	bindings, err := s.bindingRepo.ListByGateID(ctx, nil, gateID)
	if err != nil {
		return nil, fmt.Errorf("load bindings: %w", err)
	}

	var distanceM *float64
	if lat != nil && lon != nil && gate.HasLocation() {
		d := geo.DistanceMeters(*lat, *lon, *gate.Lat, *gate.Lon)
		distanceM = &d
	}

	decision, confidence := decideCheckin(gate.Status, bindings, category, distanceM, acceptedRadiusM(gate.SpatialVarianceM2))
	span.SetAttributes(
		attribute.String("gate.id", gateID.String()),
		attribute.String("decision", decision),
	)
	return &ValidationResult{Decision: decision, Confidence: confidence}, nil
}

// acceptedRadiusM derives the gate's accepted radius from its spatial spread.
func acceptedRadiusM(varianceM2 float64) float64 {
	r := 3 * math.Sqrt(varianceM2)
	if r < minAcceptedRadiusM {
		r = minAcceptedRadiusM
	}
	return r
}

// decideCheckin is the whole synchronous decision, pure over a snapshot of
// the gate and its bindings so repeated calls with the same inputs return
// the same decision.
//
// Order: unusable gate denies; a location far outside the accepted radius
// denies; an enforced binding for the category allows; enforced bindings for
// other categories only flag-mismatch; no enforcement evidence at all allows.
func decideCheckin(gateStatus string, bindings []*types.CategoryBinding, category string, distanceM *float64, acceptedRadius float64) (string, float64) {
	if gateStatus != types.GateStatusActive {
		return DecisionDenyOutOfRange, 0
	}

	var own *types.CategoryBinding
	hasOtherEnforced := false
	for _, b := range bindings {
		if b.Category == category {
			own = b
			continue
		}
		if b.Status == types.BindingStatusEnforced {
			hasOtherEnforced = true
		}
	}

	confidence := 0.0
	if own != nil {
		confidence = own.Confidence
	}

	if own != nil && own.Status == types.BindingStatusUnbound {
		return DecisionDenyOutOfRange, confidence
	}
	if distanceM != nil && *distanceM > denyMarginFactor*acceptedRadius {
		return DecisionDenyOutOfRange, confidence
	}
	if own != nil && own.Status == types.BindingStatusEnforced {
		return DecisionAllow, confidence
	}
	// No enforced binding for this category: flag only when the gate
	// actively enforces a different category; otherwise there is not enough
	// evidence to do anything but allow.
	if hasOtherEnforced {
		return DecisionFlagMismatch, confidence
	}
	return DecisionAllow, confidence
}
