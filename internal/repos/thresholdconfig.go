package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/types"
)

type ThresholdConfigRepo interface {
  GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.ThresholdConfig, error)
  Upsert(ctx context.Context, tx *gorm.DB, cfg *types.ThresholdConfig) (*types.ThresholdConfig, error)
}

type thresholdConfigRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewThresholdConfigRepo(db *gorm.DB, baseLog *logger.Logger) ThresholdConfigRepo {
  repoLog := baseLog.With("repo", "ThresholdConfigRepo")
  return &thresholdConfigRepo{db: db, log: repoLog}
}

func (r *thresholdConfigRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.ThresholdConfig, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sessionID == uuid.Nil {
    return nil, nil
  }
  var cfg types.ThresholdConfig
  err := transaction.WithContext(ctx).
    Where("session_id = ?", sessionID).
    First(&cfg).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &cfg, nil
}

func (r *thresholdConfigRepo) Upsert(ctx context.Context, tx *gorm.DB, cfg *types.ThresholdConfig) (*types.ThresholdConfig, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if cfg == nil || cfg.SessionID == uuid.Nil {
    return nil, nil
  }
  err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{{Name: "session_id"}},
      DoUpdates: clause.AssignmentColumns([]string{
        "min_gate_samples",
        "max_spatial_variance_m2",
        "soft_confidence",
        "hard_confidence",
        "min_effective_samples",
        "merge_distance_m",
        "cluster_epsilon_m",
        "orphan_max_distance_m",
        "min_quality_weight",
        "violation_demote_threshold",
        "first_run_at_scans",
        "refresh_every_scans",
        "auto_apply_merges",
        "auto_apply_confidence",
        "updated_at",
      }),
    }).
    Create(cfg).Error
  if err != nil {
    return nil, err
  }
  return cfg, nil
}
