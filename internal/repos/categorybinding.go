package repos

import (
  "context"
  "errors"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/types"
)

type CategoryBindingRepo interface {
  Create(ctx context.Context, tx *gorm.DB, binding *types.CategoryBinding) (*types.CategoryBinding, error)
  GetByGateAndCategory(ctx context.Context, tx *gorm.DB, gateID uuid.UUID, category string) (*types.CategoryBinding, error)
  ListByGateID(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) ([]*types.CategoryBinding, error)
  ListBySessionAndCategory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, category string) ([]*types.CategoryBinding, error)
  // SumSamplesByCategory returns total observed samples per category across
  // all of the session's gates; the learner derives confidence shares from it.
  SumSamplesByCategory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (map[string]int, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
  RepointGate(ctx context.Context, tx *gorm.DB, bindingID, toGateID uuid.UUID) error
}

type categoryBindingRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCategoryBindingRepo(db *gorm.DB, baseLog *logger.Logger) CategoryBindingRepo {
  repoLog := baseLog.With("repo", "CategoryBindingRepo")
  return &categoryBindingRepo{db: db, log: repoLog}
}

func (r *categoryBindingRepo) Create(ctx context.Context, tx *gorm.DB, binding *types.CategoryBinding) (*types.CategoryBinding, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if binding == nil {
    return nil, nil
  }
  if err := transaction.WithContext(ctx).Create(binding).Error; err != nil {
    return nil, err
  }
  return binding, nil
}

func (r *categoryBindingRepo) GetByGateAndCategory(ctx context.Context, tx *gorm.DB, gateID uuid.UUID, category string) (*types.CategoryBinding, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if gateID == uuid.Nil || category == "" {
    return nil, nil
  }
  var binding types.CategoryBinding
  err := transaction.WithContext(ctx).
    Where("gate_id = ? AND category = ?", gateID, category).
    First(&binding).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &binding, nil
}

func (r *categoryBindingRepo) ListByGateID(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) ([]*types.CategoryBinding, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.CategoryBinding
  if gateID == uuid.Nil {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("gate_id = ?", gateID).
    Order("sample_count DESC, category ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *categoryBindingRepo) ListBySessionAndCategory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, category string) ([]*types.CategoryBinding, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.CategoryBinding
  if sessionID == uuid.Nil || category == "" {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Joins("JOIN gate ON gate.id = category_binding.gate_id").
    Where("gate.session_id = ? AND category_binding.category = ?", sessionID, category).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *categoryBindingRepo) SumSamplesByCategory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (map[string]int, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  totals := map[string]int{}
  if sessionID == uuid.Nil {
    return totals, nil
  }
  rows := []struct {
    Category string
    Total    int
  }{}
  err := transaction.WithContext(ctx).
    Model(&types.CategoryBinding{}).
    Select("category_binding.category, SUM(category_binding.sample_count) AS total").
    Joins("JOIN gate ON gate.id = category_binding.gate_id").
    Where("gate.session_id = ?", sessionID).
    Group("category_binding.category").
    Scan(&rows).Error
  if err != nil {
    return nil, err
  }
  for _, row := range rows {
    totals[row.Category] = row.Total
  }
  return totals, nil
}

func (r *categoryBindingRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || len(updates) == 0 {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.CategoryBinding{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *categoryBindingRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Where("id = ?", id).
    Delete(&types.CategoryBinding{}).Error
}

func (r *categoryBindingRepo) RepointGate(ctx context.Context, tx *gorm.DB, bindingID, toGateID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if bindingID == uuid.Nil || toGateID == uuid.Nil {
    return nil
  }
  return transaction.WithContext(ctx).
    Model(&types.CategoryBinding{}).
    Where("id = ?", bindingID).
    Update("gate_id", toGateID).Error
}
