package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/types"
)

type EventSessionRepo interface {
  Create(ctx context.Context, tx *gorm.DB, session *types.EventSession) (*types.EventSession, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.EventSession, error)
  ListActive(ctx context.Context, tx *gorm.DB) ([]*types.EventSession, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type eventSessionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewEventSessionRepo(db *gorm.DB, baseLog *logger.Logger) EventSessionRepo {
  repoLog := baseLog.With("repo", "EventSessionRepo")
  return &eventSessionRepo{db: db, log: repoLog}
}

func (r *eventSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.EventSession) (*types.EventSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if session == nil {
    return nil, nil
  }
  if err := transaction.WithContext(ctx).Create(session).Error; err != nil {
    return nil, err
  }
  return session, nil
}

func (r *eventSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.EventSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, nil
  }
  var session types.EventSession
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&session).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &session, nil
}

func (r *eventSessionRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.EventSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.EventSession
  if err := transaction.WithContext(ctx).
    Where("status = ?", types.SessionStatusActive).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *eventSessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.EventSession{}).
    Where("id = ?", id).
    Updates(updates).Error
}
