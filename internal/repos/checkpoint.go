package repos

import (
  "context"
  "errors"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/types"
)

type DiscoveryCheckpointRepo interface {
  GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.DiscoveryCheckpoint, error)
  Advance(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, lastCreatedAt time.Time, lastEventID uuid.UUID) error
}

type discoveryCheckpointRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewDiscoveryCheckpointRepo(db *gorm.DB, baseLog *logger.Logger) DiscoveryCheckpointRepo {
  repoLog := baseLog.With("repo", "DiscoveryCheckpointRepo")
  return &discoveryCheckpointRepo{db: db, log: repoLog}
}

func (r *discoveryCheckpointRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.DiscoveryCheckpoint, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sessionID == uuid.Nil {
    return nil, nil
  }
  var checkpoint types.DiscoveryCheckpoint
  err := transaction.WithContext(ctx).
    Where("session_id = ?", sessionID).
    First(&checkpoint).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &checkpoint, nil
}

func (r *discoveryCheckpointRepo) Advance(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, lastCreatedAt time.Time, lastEventID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sessionID == uuid.Nil {
    return nil
  }
  now := time.Now()
  checkpoint := &types.DiscoveryCheckpoint{
    SessionID:          sessionID,
    LastEventCreatedAt: lastCreatedAt,
    LastEventID:        lastEventID,
    LastRunAt:          &now,
  }
  return transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{{Name: "session_id"}},
      DoUpdates: clause.AssignmentColumns([]string{
        "last_event_created_at",
        "last_event_id",
        "last_run_at",
        "updated_at",
      }),
    }).
    Create(checkpoint).Error
}
