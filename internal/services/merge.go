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

type MergeService interface {
	// Approve applies a pending suggestion as one transaction: every
	// CheckinEvent and CategoryBinding is re-pointed from source to target,
	// the target centroid/health are recomputed, the source gate is
	// deactivated, and the suggestion goes terminal. A suggestion or gate
	// that is no longer in the expected state yields ErrStaleState.
	Approve(ctx context.Context, suggestionID uuid.UUID, reviewer, reason string) (*types.MergeSuggestion, error)
	Reject(ctx context.Context, suggestionID uuid.UUID, reviewer, reason string) (*types.MergeSuggestion, error)
	// AutoApply is Approve for detector-applied merges; it stamps the
	// auto_applied status instead of approved.
	AutoApply(ctx context.Context, suggestionID uuid.UUID) (*types.MergeSuggestion, error)
	// ListBySession returns suggestions for review, optionally filtered by
	// status.
	ListBySession(ctx context.Context, sessionID uuid.UUID, status string) ([]*types.MergeSuggestion, error)
}

type mergeService struct {
	db             *gorm.DB
	log            *logger.Logger
	suggestionRepo repos.MergeSuggestionRepo
	gateRepo       repos.GateRepo
	eventRepo      repos.CheckinEventRepo
	bindingRepo    repos.CategoryBindingRepo
}

func NewMergeService(db *gorm.DB, baseLog *logger.Logger, suggestionRepo repos.MergeSuggestionRepo, gateRepo repos.GateRepo, eventRepo repos.CheckinEventRepo, bindingRepo repos.CategoryBindingRepo) MergeService {
	return &mergeService{
		db:             db,
		log:            baseLog.With("service", "MergeService"),
		suggestionRepo: suggestionRepo,
		gateRepo:       gateRepo,
		eventRepo:      eventRepo,
		bindingRepo:    bindingRepo,
	}
}

func (s *mergeService) Approve(ctx context.Context, suggestionID uuid.UUID, reviewer, reason string) (*types.MergeSuggestion, error) {
	return s.apply(ctx, suggestionID, types.MergeStatusApproved, reviewer, reason)
}

func (s *mergeService) AutoApply(ctx context.Context, suggestionID uuid.UUID) (*types.MergeSuggestion, error) {
	return s.apply(ctx, suggestionID, types.MergeStatusAutoApplied, "duplicate-detector", "confidence above auto-apply threshold")
}

func (s *mergeService) ListBySession(ctx context.Context, sessionID uuid.UUID, status string) ([]*types.MergeSuggestion, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("session id required: %w", errors.ErrInvalidArgument)
	}
	return s.suggestionRepo.ListBySession(ctx, nil, sessionID, status)
}

func (s *mergeService) Reject(ctx context.Context, suggestionID uuid.UUID, reviewer, reason string) (*types.MergeSuggestion, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, nil, suggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion == nil {
		return nil, fmt.Errorf("merge suggestion %s: %w", suggestionID, errors.ErrNotFound)
	}
	now := time.Now()
	ok, err := s.suggestionRepo.UpdateStatusIfPending(ctx, nil, suggestionID, map[string]interface{}{
		"status":        types.MergeStatusRejected,
		"reviewed_by":   reviewer,
		"reviewed_at":   now,
		"review_reason": reason,
		"updated_at":    now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("merge suggestion %s already %s: %w", suggestionID, suggestion.Status, errors.ErrStaleState)
	}
	return s.suggestionRepo.GetByID(ctx, nil, suggestionID)
}

func (s *mergeService) apply(ctx context.Context, suggestionID uuid.UUID, terminalStatus, reviewer, reason string) (*types.MergeSuggestion, error) {
	var applied *types.MergeSuggestion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		applied, err = s.applyTx(ctx, tx, suggestionID, terminalStatus, reviewer, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Merged gates", "suggestion_id", suggestionID, "status", terminalStatus)
	return applied, nil
}

func (s *mergeService) applyTx(ctx context.Context, tx *gorm.DB, suggestionID uuid.UUID, terminalStatus, reviewer, reason string) (*types.MergeSuggestion, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, tx, suggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion == nil {
		return nil, fmt.Errorf("merge suggestion %s: %w", suggestionID, errors.ErrNotFound)
	}
	if suggestion.Terminal() {
		return nil, fmt.Errorf("merge suggestion %s already %s: %w", suggestionID, suggestion.Status, errors.ErrStaleState)
	}

	source, err := s.gateRepo.GetByID(ctx, tx, suggestion.SourceGateID)
	if err != nil {
		return nil, err
	}
	target, err := s.gateRepo.GetByID(ctx, tx, suggestion.TargetGateID)
	if err != nil {
		return nil, err
	}
	if source == nil || target == nil {
		return nil, fmt.Errorf("merge gates missing: %w", errors.ErrStaleState)
	}
	if source.Status != types.GateStatusActive || target.Status != types.GateStatusActive {
		return nil, fmt.Errorf("merge gate no longer active: %w", errors.ErrStaleState)
	}

	if _, err := s.eventRepo.RepointGate(ctx, tx, source.ID, target.ID); err != nil {
		return nil, fmt.Errorf("repoint events: %w", err)
	}
	if err := s.mergeBindings(ctx, tx, source.ID, target.ID); err != nil {
		return nil, err
	}
	if err := s.absorbIntoTarget(ctx, tx, source, target); err != nil {
		return nil, err
	}

	now := time.Now()
	// Soft-deactivate: the row stays for audit and history.
	if err := s.gateRepo.UpdateFields(ctx, tx, source.ID, map[string]interface{}{
		"status":     types.GateStatusInactive,
		"updated_at": now,
	}); err != nil {
		return nil, fmt.Errorf("deactivate source gate: %w", err)
	}

	ok, err := s.suggestionRepo.UpdateStatusIfPending(ctx, tx, suggestionID, map[string]interface{}{
		"status":        terminalStatus,
		"reviewed_by":   reviewer,
		"reviewed_at":   now,
		"review_reason": reason,
		"updated_at":    now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("merge suggestion %s raced to terminal state: %w", suggestionID, errors.ErrStaleState)
	}
	return s.suggestionRepo.GetByID(ctx, tx, suggestionID)
}

// mergeBindings folds the source gate's bindings into the target. Same
// category on both sides: sample counts combine and the target keeps its own
// status (merging must not promote past what the learner proved). Source-only
// categories are re-pointed wholesale.
func (s *mergeService) mergeBindings(ctx context.Context, tx *gorm.DB, sourceID, targetID uuid.UUID) error {
	sourceBindings, err := s.bindingRepo.ListByGateID(ctx, tx, sourceID)
	if err != nil {
		return fmt.Errorf("list source bindings: %w", err)
	}
	for _, sb := range sourceBindings {
		tb, err := s.bindingRepo.GetByGateAndCategory(ctx, tx, targetID, sb.Category)
		if err != nil {
			return err
		}
		if tb == nil {
			if err := s.bindingRepo.RepointGate(ctx, tx, sb.ID, targetID); err != nil {
				return fmt.Errorf("repoint binding: %w", err)
			}
			continue
		}
		confidence := tb.Confidence
		if sb.Confidence > confidence {
			confidence = sb.Confidence
		}
		if err := s.bindingRepo.UpdateFields(ctx, tx, tb.ID, map[string]interface{}{
			"sample_count":    tb.SampleCount + sb.SampleCount,
			"confidence":      confidence,
			"violation_count": tb.ViolationCount + sb.ViolationCount,
			"updated_at":      time.Now(),
		}); err != nil {
			return fmt.Errorf("merge binding: %w", err)
		}
		if err := s.bindingRepo.DeleteByID(ctx, tx, sb.ID); err != nil {
			return fmt.Errorf("delete source binding: %w", err)
		}
	}
	return nil
}

func (s *mergeService) absorbIntoTarget(ctx context.Context, tx *gorm.DB, source, target *types.Gate) error {
	updates := map[string]interface{}{
		"sample_count": target.SampleCount + source.SampleCount,
		"updated_at":   time.Now(),
	}
	if source.HasLocation() && target.HasLocation() && source.SampleCount+target.SampleCount > 0 {
		total := float64(source.SampleCount + target.SampleCount)
		newLat := (*target.Lat*float64(target.SampleCount) + *source.Lat*float64(source.SampleCount)) / total
		newLon := (*target.Lon*float64(target.SampleCount) + *source.Lon*float64(source.SampleCount)) / total
		updates["lat"] = newLat
		updates["lon"] = newLon
		updates["geo_key"] = geo.Key(newLat, newLon)
	}
	firstSeen := target.FirstSeenAt
	if source.FirstSeenAt.Before(firstSeen) {
		firstSeen = source.FirstSeenAt
		updates["first_seen_at"] = firstSeen
	}
	lastActivity := target.LastActivityAt
	if source.LastActivityAt.After(lastActivity) {
		lastActivity = source.LastActivityAt
		updates["last_activity_at"] = lastActivity
	}
	updates["health_score"] = healthScore(
		target.SampleCount+source.SampleCount,
		target.HasLocation() || source.HasLocation(),
		firstSeen,
		lastActivity,
		target.DerivationMethod == types.GateDerivedFromClustering,
		1, // a merged gate is past the premature-creation penalty
	)
	return s.gateRepo.UpdateFields(ctx, tx, target.ID, updates)
}
