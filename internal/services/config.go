package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/pkg/errors"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

// thresholdDefaults are the process-wide fallbacks applied when a session
// has no ThresholdConfig row. They can be overridden once at startup from a
// YAML file; they are deliberately not a database singleton.
type thresholdDefaults struct {
	MinGateSamples           int     `yaml:"min_gate_samples"`
	MaxSpatialVarianceM2     float64 `yaml:"max_spatial_variance_m2"`
	SoftConfidence           float64 `yaml:"soft_confidence"`
	HardConfidence           float64 `yaml:"hard_confidence"`
	MinEffectiveSamples      int     `yaml:"min_effective_samples"`
	MergeDistanceM           float64 `yaml:"merge_distance_m"`
	ClusterEpsilonM          float64 `yaml:"cluster_epsilon_m"`
	OrphanMaxDistanceM       float64 `yaml:"orphan_max_distance_m"`
	MinQualityWeight         float64 `yaml:"min_quality_weight"`
	ViolationDemoteThreshold int     `yaml:"violation_demote_threshold"`
	FirstRunAtScans          int     `yaml:"first_run_at_scans"`
	RefreshEveryScans        int     `yaml:"refresh_every_scans"`
	AutoApplyMerges          bool    `yaml:"auto_apply_merges"`
	AutoApplyConfidence      float64 `yaml:"auto_apply_confidence"`
}

var builtinDefaults = thresholdDefaults{
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
	AutoApplyMerges:          false,
	AutoApplyConfidence:      0.9,
}

type ThresholdConfigService interface {
	// Get returns the session's config, or the process defaults when unset.
	Get(ctx context.Context, sessionID uuid.UUID) (*types.ThresholdConfig, error)
	// Update validates and upserts; an invalid config leaves the stored row
	// untouched.
	Update(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig) (*types.ThresholdConfig, error)
}

type thresholdConfigService struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.ThresholdConfigRepo
	defaults thresholdDefaults
}

func NewThresholdConfigService(db *gorm.DB, baseLog *logger.Logger, repo repos.ThresholdConfigRepo, defaultsPath string) ThresholdConfigService {
	log := baseLog.With("service", "ThresholdConfigService")
	defaults := builtinDefaults
	if defaultsPath != "" {
		raw, err := os.ReadFile(defaultsPath)
		if err != nil {
			log.Warn("Could not read threshold defaults file, using builtins", "path", defaultsPath, "error", err)
		} else if err := yaml.Unmarshal(raw, &defaults); err != nil {
			log.Warn("Could not parse threshold defaults file, using builtins", "path", defaultsPath, "error", err)
			defaults = builtinDefaults
		} else {
			log.Info("Loaded threshold defaults", "path", defaultsPath)
		}
	}
	return &thresholdConfigService{db: db, log: log, repo: repo, defaults: defaults}
}

func (s *thresholdConfigService) Get(ctx context.Context, sessionID uuid.UUID) (*types.ThresholdConfig, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("session id required: %w", errors.ErrInvalidArgument)
	}
	stored, err := s.repo.GetBySession(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}
	return s.defaultConfig(sessionID), nil
}

func (s *thresholdConfigService) Update(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig) (*types.ThresholdConfig, error) {
	if sessionID == uuid.Nil || cfg == nil {
		return nil, fmt.Errorf("session id and config required: %w", errors.ErrInvalidArgument)
	}
	cfg.SessionID = sessionID
	if err := ValidateThresholds(cfg); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = time.Now()
	return s.repo.Upsert(ctx, nil, cfg)
}

func (s *thresholdConfigService) defaultConfig(sessionID uuid.UUID) *types.ThresholdConfig {
	d := s.defaults
	return &types.ThresholdConfig{
		SessionID:                sessionID,
		MinGateSamples:           d.MinGateSamples,
		MaxSpatialVarianceM2:     d.MaxSpatialVarianceM2,
		SoftConfidence:           d.SoftConfidence,
		HardConfidence:           d.HardConfidence,
		MinEffectiveSamples:      d.MinEffectiveSamples,
		MergeDistanceM:           d.MergeDistanceM,
		ClusterEpsilonM:          d.ClusterEpsilonM,
		OrphanMaxDistanceM:       d.OrphanMaxDistanceM,
		MinQualityWeight:         d.MinQualityWeight,
		ViolationDemoteThreshold: d.ViolationDemoteThreshold,
		FirstRunAtScans:          d.FirstRunAtScans,
		RefreshEveryScans:        d.RefreshEveryScans,
		AutoApplyMerges:          d.AutoApplyMerges,
		AutoApplyConfidence:      d.AutoApplyConfidence,
	}
}

// ValidateThresholds rejects configs that would wedge the state machine.
func ValidateThresholds(cfg *types.ThresholdConfig) error {
	if cfg.SoftConfidence <= 0 || cfg.SoftConfidence > 1 {
		return fmt.Errorf("soft confidence must be in (0,1]: %w", errors.ErrInvalidArgument)
	}
	if cfg.HardConfidence <= 0 || cfg.HardConfidence > 1 {
		return fmt.Errorf("hard confidence must be in (0,1]: %w", errors.ErrInvalidArgument)
	}
	if cfg.SoftConfidence >= cfg.HardConfidence {
		return fmt.Errorf("soft confidence %.2f must be below hard confidence %.2f: %w", cfg.SoftConfidence, cfg.HardConfidence, errors.ErrInvalidArgument)
	}
	if cfg.MinGateSamples < 1 {
		return fmt.Errorf("min gate samples must be positive: %w", errors.ErrInvalidArgument)
	}
	if cfg.MinEffectiveSamples < 1 {
		return fmt.Errorf("min effective samples must be positive: %w", errors.ErrInvalidArgument)
	}
	if cfg.ClusterEpsilonM <= 0 {
		return fmt.Errorf("cluster epsilon must be positive: %w", errors.ErrInvalidArgument)
	}
	if cfg.OrphanMaxDistanceM <= 0 {
		return fmt.Errorf("orphan max distance must be positive: %w", errors.ErrInvalidArgument)
	}
	if cfg.MergeDistanceM <= 0 {
		return fmt.Errorf("merge distance must be positive: %w", errors.ErrInvalidArgument)
	}
	if cfg.MinQualityWeight < 0 || cfg.MinQualityWeight > 1 {
		return fmt.Errorf("min quality weight must be in [0,1]: %w", errors.ErrInvalidArgument)
	}
	if cfg.AutoApplyConfidence < cfg.HardConfidence || cfg.AutoApplyConfidence > 1 {
		return fmt.Errorf("auto apply confidence must be in [hard,1]: %w", errors.ErrInvalidArgument)
	}
	return nil
}
