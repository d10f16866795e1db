package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/types"
)

type MergeSuggestionRepo interface {
  Create(ctx context.Context, tx *gorm.DB, suggestion *types.MergeSuggestion) (*types.MergeSuggestion, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MergeSuggestion, error)
  ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, status string) ([]*types.MergeSuggestion, error)
  // FindPendingOrRejectedPair matches either gate ordering. Rejected
  // suggestions count so the detector does not re-file a pair an operator
  // already turned down; approved/auto_applied pairs leave no active source
  // gate and need no guard.
  FindPendingOrRejectedPair(ctx context.Context, tx *gorm.DB, sessionID, gateA, gateB uuid.UUID) (*types.MergeSuggestion, error)
  // UpdateStatusIfPending flips a pending suggestion; returns false when the
  // row was already terminal, which callers surface as a stale-state error.
  UpdateStatusIfPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error)
}

type mergeSuggestionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewMergeSuggestionRepo(db *gorm.DB, baseLog *logger.Logger) MergeSuggestionRepo {
  repoLog := baseLog.With("repo", "MergeSuggestionRepo")
  return &mergeSuggestionRepo{db: db, log: repoLog}
}

func (r *mergeSuggestionRepo) Create(ctx context.Context, tx *gorm.DB, suggestion *types.MergeSuggestion) (*types.MergeSuggestion, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if suggestion == nil {
    return nil, nil
  }
  if err := transaction.WithContext(ctx).Create(suggestion).Error; err != nil {
    return nil, err
  }
  return suggestion, nil
}

func (r *mergeSuggestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MergeSuggestion, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, nil
  }
  var suggestion types.MergeSuggestion
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&suggestion).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &suggestion, nil
}

func (r *mergeSuggestionRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, status string) ([]*types.MergeSuggestion, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.MergeSuggestion
  if sessionID == uuid.Nil {
    return results, nil
  }
  q := transaction.WithContext(ctx).Where("session_id = ?", sessionID)
  if status != "" {
    q = q.Where("status = ?", status)
  }
  if err := q.Order("created_at DESC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *mergeSuggestionRepo) FindPendingOrRejectedPair(ctx context.Context, tx *gorm.DB, sessionID, gateA, gateB uuid.UUID) (*types.MergeSuggestion, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sessionID == uuid.Nil || gateA == uuid.Nil || gateB == uuid.Nil {
    return nil, nil
  }
  var suggestion types.MergeSuggestion
  err := transaction.WithContext(ctx).
    Where("session_id = ? AND status IN ?", sessionID, []string{types.MergeStatusPending, types.MergeStatusRejected}).
    Where("(source_gate_id = ? AND target_gate_id = ?) OR (source_gate_id = ? AND target_gate_id = ?)", gateA, gateB, gateB, gateA).
    First(&suggestion).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &suggestion, nil
}

func (r *mergeSuggestionRepo) UpdateStatusIfPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return false, nil
  }
  res := transaction.WithContext(ctx).
    Model(&types.MergeSuggestion{}).
    Where("id = ? AND status = ?", id, types.MergeStatusPending).
    Updates(updates)
  if res.Error != nil {
    return false, res.Error
  }
  return res.RowsAffected > 0, nil
}
