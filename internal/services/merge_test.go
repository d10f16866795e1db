package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/attendlab/gatesight-backend/internal/pkg/errors"
	"github.com/attendlab/gatesight-backend/internal/types"
)

type mergeFixture struct {
	svc         *mergeService
	sessionID   uuid.UUID
	source      *types.Gate
	target      *types.Gate
	suggestion  *types.MergeSuggestion
	gates       *fakeGateRepo
	events      *fakeEventRepo
	bindings    *fakeBindingRepo
	suggestions *fakeSuggestionRepo
}

func newMergeFixture(t *testing.T) *mergeFixture {
	t.Helper()
	sessionID := uuid.New()
	now := time.Now()

	source := gateAt(baseLat, baseLon)
	source.ID = uuid.New()
	source.SessionID = sessionID
	source.SampleCount = 40
	source.FirstSeenAt = now.Add(-3 * time.Hour)
	source.LastActivityAt = now.Add(-10 * time.Minute)

	target := gateAt(baseLat+degPerM, baseLon)
	target.ID = uuid.New()
	target.SessionID = sessionID
	target.SampleCount = 100
	target.FirstSeenAt = now.Add(-2 * time.Hour)
	target.LastActivityAt = now

	suggestion := &types.MergeSuggestion{
		ID:           uuid.New(),
		SessionID:    sessionID,
		SourceGateID: source.ID,
		TargetGateID: target.ID,
		Status:       types.MergeStatusPending,
	}

	bindings := &fakeBindingRepo{bindings: []*types.CategoryBinding{
		{ID: uuid.New(), GateID: source.ID, Category: "vip", Status: types.BindingStatusEnforced, SampleCount: 30, Confidence: 0.8, ViolationCount: 2},
		{ID: uuid.New(), GateID: source.ID, Category: "press", Status: types.BindingStatusProbation, SampleCount: 5, Confidence: 0.3},
		{ID: uuid.New(), GateID: target.ID, Category: "vip", Status: types.BindingStatusProbation, SampleCount: 50, Confidence: 0.7, ViolationCount: 1},
	}}

	gates := newFakeGateRepo(source, target)
	events := &fakeEventRepo{}
	suggestions := newFakeSuggestionRepo(suggestion)

	svc := &mergeService{
		log:            testLog(t),
		suggestionRepo: suggestions,
		gateRepo:       gates,
		eventRepo:      events,
		bindingRepo:    bindings,
	}
	return &mergeFixture{
		svc:         svc,
		sessionID:   sessionID,
		source:      source,
		target:      target,
		suggestion:  suggestion,
		gates:       gates,
		events:      events,
		bindings:    bindings,
		suggestions: suggestions,
	}
}

func TestMergeApplyConsolidatesSourceIntoTarget(t *testing.T) {
	f := newMergeFixture(t)

	applied, err := f.svc.applyTx(context.Background(), nil, f.suggestion.ID, types.MergeStatusApproved, "lead", "same entrance")
	if err != nil {
		t.Fatalf("applyTx: %v", err)
	}
	if applied.Status != types.MergeStatusApproved {
		t.Fatalf("suggestion status = %s, want approved", applied.Status)
	}
	if applied.ReviewedBy == nil || *applied.ReviewedBy != "lead" {
		t.Fatalf("reviewer not recorded: %v", applied.ReviewedBy)
	}

	if len(f.events.repointed) != 1 || f.events.repointed[0] != [2]uuid.UUID{f.source.ID, f.target.ID} {
		t.Fatalf("events not repointed source -> target: %v", f.events.repointed)
	}

	// Shared category folds into the target binding; source-only category is
	// repointed wholesale.
	if len(f.bindings.bindings) != 2 {
		t.Fatalf("binding count = %d, want 2 (source vip deleted)", len(f.bindings.bindings))
	}
	vip, _ := f.bindings.GetByGateAndCategory(context.Background(), nil, f.target.ID, "vip")
	if vip == nil {
		t.Fatalf("target vip binding missing after merge")
	}
	if vip.SampleCount != 80 {
		t.Fatalf("folded vip samples = %d, want 80", vip.SampleCount)
	}
	if vip.Status != types.BindingStatusProbation {
		t.Fatalf("folded vip status = %s, want target's probation kept", vip.Status)
	}
	if vip.Confidence != 0.8 {
		t.Fatalf("folded vip confidence = %f, want max of both sides", vip.Confidence)
	}
	if vip.ViolationCount != 3 {
		t.Fatalf("folded vip violations = %d, want 3", vip.ViolationCount)
	}
	press, _ := f.bindings.GetByGateAndCategory(context.Background(), nil, f.target.ID, "press")
	if press == nil {
		t.Fatalf("source-only press binding not repointed to target")
	}

	if f.source.Status != types.GateStatusInactive {
		t.Fatalf("source gate status = %s, want inactive", f.source.Status)
	}
	if f.target.SampleCount != 140 {
		t.Fatalf("target sample count = %d, want 140", f.target.SampleCount)
	}
}

func TestMergeApplyStaleWhenTerminal(t *testing.T) {
	f := newMergeFixture(t)
	f.suggestion.Status = types.MergeStatusRejected

	_, err := f.svc.applyTx(context.Background(), nil, f.suggestion.ID, types.MergeStatusApproved, "lead", "")
	if !errors.Is(err, pkgerrors.ErrStaleState) {
		t.Fatalf("terminal suggestion: err = %v, want ErrStaleState", err)
	}
	if len(f.events.repointed) != 0 {
		t.Fatalf("events repointed despite terminal suggestion")
	}
}

func TestMergeApplyStaleWhenGateInactive(t *testing.T) {
	f := newMergeFixture(t)
	f.source.Status = types.GateStatusInactive

	_, err := f.svc.applyTx(context.Background(), nil, f.suggestion.ID, types.MergeStatusApproved, "lead", "")
	if !errors.Is(err, pkgerrors.ErrStaleState) {
		t.Fatalf("inactive source gate: err = %v, want ErrStaleState", err)
	}
	if len(f.events.repointed) != 0 {
		t.Fatalf("events repointed despite inactive source gate")
	}
}

func TestMergeApplyStaleWhenStatusRaces(t *testing.T) {
	f := newMergeFixture(t)
	f.suggestions.forceStaleUpdate = true

	_, err := f.svc.applyTx(context.Background(), nil, f.suggestion.ID, types.MergeStatusApproved, "lead", "")
	if !errors.Is(err, pkgerrors.ErrStaleState) {
		t.Fatalf("lost status race: err = %v, want ErrStaleState", err)
	}
}

func TestMergeRejectIsTerminal(t *testing.T) {
	f := newMergeFixture(t)

	rejected, err := f.svc.Reject(context.Background(), f.suggestion.ID, "lead", "distinct gates")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != types.MergeStatusRejected {
		t.Fatalf("status after reject = %s", rejected.Status)
	}

	if _, err := f.svc.Reject(context.Background(), f.suggestion.ID, "lead", "again"); !errors.Is(err, pkgerrors.ErrStaleState) {
		t.Fatalf("second reject: err = %v, want ErrStaleState", err)
	}
	if _, err := f.svc.applyTx(context.Background(), nil, f.suggestion.ID, types.MergeStatusApproved, "lead", ""); !errors.Is(err, pkgerrors.ErrStaleState) {
		t.Fatalf("approve after reject: err = %v, want ErrStaleState", err)
	}
}
