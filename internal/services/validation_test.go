package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/attendlab/gatesight-backend/internal/types"
)

func binding(category, status string, confidence float64) *types.CategoryBinding {
	return &types.CategoryBinding{
		GateID:     uuid.New(),
		Category:   category,
		Status:     status,
		Confidence: confidence,
	}
}

func TestAcceptedRadiusFloor(t *testing.T) {
	if r := acceptedRadiusM(0); r != 50 {
		t.Fatalf("radius for zero variance = %f, want floor 50", r)
	}
	if r := acceptedRadiusM(100); r != 50 {
		t.Fatalf("radius for small variance = %f, want floor 50", r)
	}
}

func TestAcceptedRadiusScalesWithSpread(t *testing.T) {
	// variance 400 m^2 -> stddev 20m -> radius 60m.
	if r := acceptedRadiusM(400); r != 60 {
		t.Fatalf("radius = %f, want 60", r)
	}
}

func TestDecideCheckinInactiveGateDenies(t *testing.T) {
	d, _ := decideCheckin(types.GateStatusInactive, nil, "ga", nil, 50)
	if d != DecisionDenyOutOfRange {
		t.Fatalf("inactive gate decision = %s, want deny", d)
	}
	d, _ = decideCheckin(types.GateStatusMaintenance, nil, "ga", nil, 50)
	if d != DecisionDenyOutOfRange {
		t.Fatalf("maintenance gate decision = %s, want deny", d)
	}
}

func TestDecideCheckinUnboundCategoryDenies(t *testing.T) {
	bindings := []*types.CategoryBinding{binding("ga", types.BindingStatusUnbound, 0.2)}
	d, _ := decideCheckin(types.GateStatusActive, bindings, "ga", nil, 50)
	if d != DecisionDenyOutOfRange {
		t.Fatalf("unbound binding decision = %s, want deny", d)
	}
}

func TestDecideCheckinFarOutsideRadiusDenies(t *testing.T) {
	bindings := []*types.CategoryBinding{binding("ga", types.BindingStatusEnforced, 0.9)}
	dist := 200.0 // radius 50, margin 3x -> anything past 150 denies
	d, _ := decideCheckin(types.GateStatusActive, bindings, "ga", &dist, 50)
	if d != DecisionDenyOutOfRange {
		t.Fatalf("far-out decision = %s, want deny", d)
	}
}

func TestDecideCheckinInsideMarginAllowed(t *testing.T) {
	bindings := []*types.CategoryBinding{binding("ga", types.BindingStatusEnforced, 0.9)}
	dist := 140.0 // inside 3x50
	d, conf := decideCheckin(types.GateStatusActive, bindings, "ga", &dist, 50)
	if d != DecisionAllow {
		t.Fatalf("in-margin enforced decision = %s, want allow", d)
	}
	if conf != 0.9 {
		t.Fatalf("confidence = %f, want 0.9", conf)
	}
}

func TestDecideCheckinMismatchAgainstEnforcedGate(t *testing.T) {
	bindings := []*types.CategoryBinding{binding("vip", types.BindingStatusEnforced, 0.9)}
	d, _ := decideCheckin(types.GateStatusActive, bindings, "ga", nil, 50)
	if d != DecisionFlagMismatch {
		t.Fatalf("mismatch decision = %s, want flag_mismatch", d)
	}
}

func TestDecideCheckinNoEvidenceAllows(t *testing.T) {
	// No bindings at all: allow.
	d, conf := decideCheckin(types.GateStatusActive, nil, "ga", nil, 50)
	if d != DecisionAllow || conf != 0 {
		t.Fatalf("no-evidence decision = (%s, %f), want (allow, 0)", d, conf)
	}
	// Only probation bindings for other categories: still allow.
	bindings := []*types.CategoryBinding{binding("vip", types.BindingStatusProbation, 0.5)}
	d, _ = decideCheckin(types.GateStatusActive, bindings, "ga", nil, 50)
	if d != DecisionAllow {
		t.Fatalf("probation-only decision = %s, want allow", d)
	}
}

func TestDecideCheckinMissingLocationNeverDeniedForRange(t *testing.T) {
	bindings := []*types.CategoryBinding{binding("ga", types.BindingStatusProbation, 0.5)}
	d, _ := decideCheckin(types.GateStatusActive, bindings, "ga", nil, 50)
	if d != DecisionAllow {
		t.Fatalf("no-location decision = %s, want allow", d)
	}
}

func TestDecideCheckinDeterministic(t *testing.T) {
	bindings := []*types.CategoryBinding{
		binding("vip", types.BindingStatusEnforced, 0.9),
		binding("ga", types.BindingStatusProbation, 0.4),
	}
	dist := 30.0
	d1, c1 := decideCheckin(types.GateStatusActive, bindings, "ga", &dist, 50)
	for i := 0; i < 10; i++ {
		d2, c2 := decideCheckin(types.GateStatusActive, bindings, "ga", &dist, 50)
		if d1 != d2 || c1 != c2 {
			t.Fatalf("decision changed across identical calls: (%s,%f) vs (%s,%f)", d1, c1, d2, c2)
		}
	}
}
