package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/types"
)

type GateRepo interface {
  Create(ctx context.Context, tx *gorm.DB, gate *types.Gate) (*types.Gate, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Gate, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Gate, error)
  GetBySessionAndGeoKey(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, geoKey string) (*types.Gate, error)
  ListActiveBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Gate, error)
  ListBySessionWithBindings(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Gate, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  CountByNamePrefix(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, prefix string) (int64, error)
}

type gateRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewGateRepo(db *gorm.DB, baseLog *logger.Logger) GateRepo {
  repoLog := baseLog.With("repo", "GateRepo")
  return &gateRepo{db: db, log: repoLog}
}

func (r *gateRepo) Create(ctx context.Context, tx *gorm.DB, gate *types.Gate) (*types.Gate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if gate == nil {
    return nil, nil
  }
  if err := transaction.WithContext(ctx).Create(gate).Error; err != nil {
    return nil, err
  }
  return gate, nil
}

func (r *gateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Gate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, nil
  }
  var gate types.Gate
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&gate).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &gate, nil
}

func (r *gateRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Gate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Gate
  if len(ids) == 0 {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("id IN ?", ids).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *gateRepo) GetBySessionAndGeoKey(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, geoKey string) (*types.Gate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sessionID == uuid.Nil || geoKey == "" {
    return nil, nil
  }
  var gate types.Gate
  err := transaction.WithContext(ctx).
    Where("session_id = ? AND geo_key = ?", sessionID, geoKey).
    First(&gate).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &gate, nil
}

func (r *gateRepo) ListActiveBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Gate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Gate
  if sessionID == uuid.Nil {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("session_id = ? AND status = ?", sessionID, types.GateStatusActive).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *gateRepo) ListBySessionWithBindings(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Gate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Gate
  if sessionID == uuid.Nil {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Preload("Bindings").
    Where("session_id = ?", sessionID).
    Order("health_score DESC, created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *gateRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.Gate{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *gateRepo) CountByNamePrefix(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, prefix string) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  if sessionID == uuid.Nil {
    return 0, nil
  }
  err := transaction.WithContext(ctx).
    Model(&types.Gate{}).
    Where("session_id = ? AND name LIKE ?", sessionID, prefix+"%").
    Count(&count).Error
  return count, err
}
