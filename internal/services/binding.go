package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/pkg/errors"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

// confidencePrior is the pseudocount added to a category's session-wide
// sample total. It keeps a binding's confidence share below 1.0 until real
// volume accumulates and suppresses one-scan flukes.
const confidencePrior = 2.0

type BindingLearner interface {
	// ProcessEvents folds a batch of successful, gate-resolved check-ins
	// into the (gate, category) bindings. The caller feeds each event
	// exactly once (checkpoint cursor), which is what keeps confidence
	// updates idempotent under at-least-once delivery.
	ProcessEvents(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig, events []*types.CheckinEvent) error
	// ResetBinding is the operator override that returns an unbound binding
	// to probation.
	ResetBinding(ctx context.Context, gateID uuid.UUID, category string) error
}

type bindingLearner struct {
	db          *gorm.DB
	log         *logger.Logger
	bindingRepo repos.CategoryBindingRepo
}

func NewBindingLearner(db *gorm.DB, baseLog *logger.Logger, bindingRepo repos.CategoryBindingRepo) BindingLearner {
	return &bindingLearner{
		db:          db,
		log:         baseLog.With("service", "BindingLearner"),
		bindingRepo: bindingRepo,
	}
}

func (l *bindingLearner) ProcessEvents(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig, events []*types.CheckinEvent) error {
	if sessionID == uuid.Nil || cfg == nil || len(events) == 0 {
		return nil
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.processEventsTx(ctx, tx, sessionID, cfg, events)
	})
}

func (l *bindingLearner) processEventsTx(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, cfg *types.ThresholdConfig, events []*types.CheckinEvent) error {
	totals, err := l.bindingRepo.SumSamplesByCategory(ctx, tx, sessionID)
	if err != nil {
		return fmt.Errorf("sum samples by category: %w", err)
	}

	// (gate, category) -> binding, loaded or created lazily.
	bindings := map[string]*types.CategoryBinding{}
	gateBindings := map[uuid.UUID][]*types.CategoryBinding{}
	touchedCategories := map[string]bool{}
	demotedThisBatch := map[string]bool{}

	loadGate := func(gateID uuid.UUID) ([]*types.CategoryBinding, error) {
		if cached, ok := gateBindings[gateID]; ok {
			return cached, nil
		}
		list, err := l.bindingRepo.ListByGateID(ctx, tx, gateID)
		if err != nil {
			return nil, err
		}
		gateBindings[gateID] = list
		for _, b := range list {
			bindings[bindingKey(b.GateID, b.Category)] = b
		}
		return list, nil
	}

	for _, event := range events {
		if event.GateID == nil || event.Outcome != types.OutcomeSuccess {
			continue
		}
		gateID := *event.GateID
		if _, err := loadGate(gateID); err != nil {
			return fmt.Errorf("load gate bindings: %w", err)
		}

		key := bindingKey(gateID, event.Category)
		binding := bindings[key]
		isNewObservation := binding == nil || binding.Status == types.BindingStatusUnbound

		if binding == nil {
			binding = &types.CategoryBinding{
				GateID:   gateID,
				Category: event.Category,
				Status:   types.BindingStatusProbation,
			}
			created, err := l.bindingRepo.Create(ctx, tx, binding)
			if err != nil {
				return fmt.Errorf("create binding: %w", err)
			}
			binding = created
			bindings[key] = binding
			gateBindings[gateID] = append(gateBindings[gateID], binding)
		}

		// An unknown category showing up at a gate that already enforces
		// another category is a mismatch signal against the gate's
		// strongest enforced binding.
		if isNewObservation {
			demoted, err := l.recordViolation(ctx, tx, gateBindings[gateID], binding, cfg)
			if err != nil {
				return err
			}
			if demoted != nil {
				demotedThisBatch[bindingKey(demoted.GateID, demoted.Category)] = true
			}
		}

		binding.SampleCount++
		totals[event.Category]++
		touchedCategories[event.Category] = true
	}

	// Recompute confidence shares for every touched category across the
	// session, then apply promotions.
	for category := range touchedCategories {
		sessionBindings, err := l.bindingRepo.ListBySessionAndCategory(ctx, tx, sessionID, category)
		if err != nil {
			return fmt.Errorf("list session bindings: %w", err)
		}
		for _, b := range sessionBindings {
			// Prefer the in-memory copy; it carries this batch's counts.
			if cached, ok := bindings[bindingKey(b.GateID, b.Category)]; ok {
				b = cached
			}
			// A binding demoted in this batch keeps its capped confidence
			// and probation status until the next cycle; recomputing its
			// share here would undo the demotion immediately.
			if demotedThisBatch[bindingKey(b.GateID, b.Category)] {
				if err := l.bindingRepo.UpdateFields(ctx, tx, b.ID, map[string]interface{}{
					"sample_count": b.SampleCount,
					"updated_at":   time.Now(),
				}); err != nil {
					return fmt.Errorf("update binding: %w", err)
				}
				continue
			}
			b.Confidence = confidenceShare(b.SampleCount, totals[category])
			b.Status = promoteBinding(b.Status, b.Confidence, b.SampleCount, cfg.HardConfidence, cfg.MinEffectiveSamples)
			if err := l.bindingRepo.UpdateFields(ctx, tx, b.ID, map[string]interface{}{
				"sample_count": b.SampleCount,
				"confidence":   b.Confidence,
				"status":       b.Status,
				"updated_at":   time.Now(),
			}); err != nil {
				return fmt.Errorf("update binding: %w", err)
			}
		}
	}
	return nil
}

// recordViolation returns the binding it demoted, if any, so the caller can
// shield it from re-promotion within the same batch.
func (l *bindingLearner) recordViolation(ctx context.Context, tx *gorm.DB, gateList []*types.CategoryBinding, offender *types.CategoryBinding, cfg *types.ThresholdConfig) (*types.CategoryBinding, error) {
	strongest := strongestEnforced(gateList, offender)
	if strongest == nil {
		return nil, nil
	}
	now := time.Now()
	strongest.ViolationCount++
	strongest.LastViolationAt = &now
	newStatus := demoteOnViolations(strongest.Status, strongest.ViolationCount, cfg.ViolationDemoteThreshold)
	demoted := newStatus != strongest.Status
	updates := map[string]interface{}{
		"violation_count":   strongest.ViolationCount,
		"last_violation_at": now,
		"updated_at":        now,
	}
	if demoted {
		l.log.Warn("Demoting binding after sustained violations",
			"gate_id", strongest.GateID,
			"category", strongest.Category,
			"from", strongest.Status,
			"to", newStatus,
			"violations", strongest.ViolationCount)
		strongest.Status = newStatus
		updates["status"] = newStatus
		if newStatus == types.BindingStatusProbation && strongest.Confidence > cfg.SoftConfidence {
			strongest.Confidence = cfg.SoftConfidence
			updates["confidence"] = cfg.SoftConfidence
		}
	}
	if err := l.bindingRepo.UpdateFields(ctx, tx, strongest.ID, updates); err != nil {
		return nil, fmt.Errorf("record violation: %w", err)
	}
	if demoted {
		return strongest, nil
	}
	return nil, nil
}

func (l *bindingLearner) ResetBinding(ctx context.Context, gateID uuid.UUID, category string) error {
	binding, err := l.bindingRepo.GetByGateAndCategory(ctx, nil, gateID, category)
	if err != nil {
		return err
	}
	if binding == nil {
		return fmt.Errorf("binding %s at gate %s: %w", category, gateID, errors.ErrNotFound)
	}
	if binding.Status != types.BindingStatusUnbound {
		return fmt.Errorf("binding %s at gate %s is %s: %w", category, gateID, binding.Status, errors.ErrInvalidArgument)
	}
	return l.bindingRepo.UpdateFields(ctx, nil, binding.ID, map[string]interface{}{
		"status":          types.BindingStatusProbation,
		"violation_count": 0,
		"updated_at":      time.Now(),
	})
}

func bindingKey(gateID uuid.UUID, category string) string {
	return gateID.String() + "|" + category
}

// confidenceShare is the learned confidence: this gate's share of the
// category's session-wide samples, damped by a pseudocount prior. A category
// seen only at one gate converges toward 1.0; one split across gates is
// suppressed at each.
func confidenceShare(samples, categoryTotal int) float64 {
	if samples <= 0 || categoryTotal <= 0 {
		return 0
	}
	return float64(samples) / (float64(categoryTotal) + confidencePrior)
}

// promoteBinding only ever moves probation -> enforced; demotion is driven
// exclusively by violations, so an enforced binding whose share dips is not
// silently demoted here.
func promoteBinding(status string, confidence float64, samples int, hardThreshold float64, minEffectiveSamples int) string {
	if status != types.BindingStatusProbation {
		return status
	}
	if confidence >= hardThreshold && samples >= minEffectiveSamples {
		return types.BindingStatusEnforced
	}
	return status
}

// demoteOnViolations moves an enforced binding back to probation at the
// violation threshold; a binding that re-promotes and keeps violating is
// forced unbound at twice the threshold. Violation counts are deliberately
// not reset on demotion so the unbound escalation has memory.
func demoteOnViolations(status string, violations, threshold int) string {
	if status != types.BindingStatusEnforced || threshold <= 0 {
		return status
	}
	if violations >= 2*threshold {
		return types.BindingStatusUnbound
	}
	if violations >= threshold {
		return types.BindingStatusProbation
	}
	return status
}

// strongestEnforced picks the gate's highest-confidence enforced binding,
// excluding the offender itself.
func strongestEnforced(gateList []*types.CategoryBinding, offender *types.CategoryBinding) *types.CategoryBinding {
	var best *types.CategoryBinding
	for _, b := range gateList {
		if b.Status != types.BindingStatusEnforced {
			continue
		}
		if offender != nil && b.GateID == offender.GateID && b.Category == offender.Category {
			continue
		}
		if best == nil || b.Confidence > best.Confidence {
			best = b
		}
	}
	return best
}
