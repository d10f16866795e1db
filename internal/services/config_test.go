package services

import (
	"testing"

	"github.com/attendlab/gatesight-backend/internal/types"
)

func validConfig() *types.ThresholdConfig {
	return &types.ThresholdConfig{
		MinGateSamples:           20,
		MaxSpatialVarianceM2:     2500,
		SoftConfidence:           0.70,
		HardConfidence:           0.80,
		MinEffectiveSamples:      20,
		MergeDistanceM:           15,
		ClusterEpsilonM:          25,
		OrphanMaxDistanceM:       75,
		MinQualityWeight:         0.6,
		ViolationDemoteThreshold: 10,
		FirstRunAtScans:          50,
		RefreshEveryScans:        100,
		AutoApplyConfidence:      0.9,
	}
}

func TestValidateThresholdsAcceptsDefaults(t *testing.T) {
	if err := ValidateThresholds(validConfig()); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
}

func TestValidateThresholdsSoftMustBeBelowHard(t *testing.T) {
	cfg := validConfig()
	cfg.SoftConfidence = 0.85
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("soft >= hard accepted")
	}
	cfg.SoftConfidence = cfg.HardConfidence
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("soft == hard accepted")
	}
}

func TestValidateThresholdsConfidenceRanges(t *testing.T) {
	cfg := validConfig()
	cfg.HardConfidence = 1.5
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("hard confidence above 1 accepted")
	}
	cfg = validConfig()
	cfg.SoftConfidence = 0
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("zero soft confidence accepted")
	}
}

func TestValidateThresholdsPositiveDistances(t *testing.T) {
	cfg := validConfig()
	cfg.ClusterEpsilonM = 0
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("zero epsilon accepted")
	}
	cfg = validConfig()
	cfg.OrphanMaxDistanceM = -1
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("negative orphan distance accepted")
	}
	cfg = validConfig()
	cfg.MergeDistanceM = 0
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("zero merge distance accepted")
	}
}

func TestValidateThresholdsAutoApplyBand(t *testing.T) {
	cfg := validConfig()
	cfg.AutoApplyConfidence = 0.75 // below hard
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("auto-apply confidence below hard accepted")
	}
	cfg = validConfig()
	cfg.AutoApplyConfidence = 1.0
	if err := ValidateThresholds(cfg); err != nil {
		t.Fatalf("auto-apply confidence of 1.0 rejected: %v", err)
	}
}

func TestValidateThresholdsQualityWeightRange(t *testing.T) {
	cfg := validConfig()
	cfg.MinQualityWeight = 1.5
	if err := ValidateThresholds(cfg); err == nil {
		t.Fatalf("quality weight above 1 accepted")
	}
}
