package repos

import (
  "context"
  "errors"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/types"
)

type CheckinEventRepo interface {
  Create(ctx context.Context, tx *gorm.DB, events []*types.CheckinEvent) ([]*types.CheckinEvent, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CheckinEvent, error)
  GetByClientEventID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, clientEventID string) (*types.CheckinEvent, error)
  // ListQualityAccepted returns the most recent located scans at or above
  // minWeight, re-sorted ascending by (scanned_at, id) so clustering input
  // is deterministic.
  ListQualityAccepted(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, minWeight float64, limit int) ([]*types.CheckinEvent, error)
  // ListSuccessfulGatedAfter pages successful, gate-resolved events past the
  // checkpoint cursor in (created_at, id) order.
  ListSuccessfulGatedAfter(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, afterAt time.Time, afterID uuid.UUID, limit int) ([]*types.CheckinEvent, error)
  ListOrphansWithLocation(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CheckinEvent, error)
  // AssignGate backfills the gate reference; guarded by gate_id IS NULL so
  // re-running never reassigns an already-resolved event.
  AssignGate(ctx context.Context, tx *gorm.DB, eventID, gateID uuid.UUID) (bool, error)
  RepointGate(ctx context.Context, tx *gorm.DB, fromGateID, toGateID uuid.UUID) (int64, error)
  CountByGate(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) (int64, error)
  HourHistogram(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) ([24]float64, error)
  CategoryCounts(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) (map[string]int64, error)
}

type checkinEventRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCheckinEventRepo(db *gorm.DB, baseLog *logger.Logger) CheckinEventRepo {
  repoLog := baseLog.With("repo", "CheckinEventRepo")
  return &checkinEventRepo{db: db, log: repoLog}
}

func (r *checkinEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.CheckinEvent) ([]*types.CheckinEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(events) == 0 {
    return []*types.CheckinEvent{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
    return nil, err
  }
  return events, nil
}

func (r *checkinEventRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CheckinEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, nil
  }
  var event types.CheckinEvent
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&event).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &event, nil
}

func (r *checkinEventRepo) GetByClientEventID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, clientEventID string) (*types.CheckinEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sessionID == uuid.Nil || clientEventID == "" {
    return nil, nil
  }
  var event types.CheckinEvent
  err := transaction.WithContext(ctx).
    Where("session_id = ? AND client_event_id = ?", sessionID, clientEventID).
    First(&event).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &event, nil
}

func (r *checkinEventRepo) ListQualityAccepted(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, minWeight float64, limit int) ([]*types.CheckinEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.CheckinEvent
  if sessionID == uuid.Nil {
    return results, nil
  }
  if limit <= 0 {
    limit = 1000
  }
  if err := transaction.WithContext(ctx).
    Where("session_id = ? AND quality_weight >= ? AND lat IS NOT NULL AND lon IS NOT NULL", sessionID, minWeight).
    Order("scanned_at DESC, id DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  // Reverse into ascending order for deterministic downstream processing.
  for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
    results[i], results[j] = results[j], results[i]
  }
  return results, nil
}

func (r *checkinEventRepo) ListSuccessfulGatedAfter(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, afterAt time.Time, afterID uuid.UUID, limit int) ([]*types.CheckinEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.CheckinEvent
  if sessionID == uuid.Nil {
    return results, nil
  }
  if limit <= 0 {
    limit = 500
  }
  if err := transaction.WithContext(ctx).
    Where("session_id = ? AND outcome = ? AND gate_id IS NOT NULL", sessionID, types.OutcomeSuccess).
    Where("(created_at, id) > (?, ?)", afterAt, afterID).
    Order("created_at ASC, id ASC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *checkinEventRepo) ListOrphansWithLocation(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CheckinEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.CheckinEvent
  if sessionID == uuid.Nil {
    return results, nil
  }
  if limit <= 0 {
    limit = 500
  }
  if err := transaction.WithContext(ctx).
    Where("session_id = ? AND gate_id IS NULL AND lat IS NOT NULL AND lon IS NOT NULL", sessionID).
    Order("created_at ASC, id ASC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *checkinEventRepo) AssignGate(ctx context.Context, tx *gorm.DB, eventID, gateID uuid.UUID) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if eventID == uuid.Nil || gateID == uuid.Nil {
    return false, nil
  }
  res := transaction.WithContext(ctx).
    Model(&types.CheckinEvent{}).
    Where("id = ? AND gate_id IS NULL", eventID).
    Update("gate_id", gateID)
  if res.Error != nil {
    return false, res.Error
  }
  return res.RowsAffected > 0, nil
}

func (r *checkinEventRepo) RepointGate(ctx context.Context, tx *gorm.DB, fromGateID, toGateID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if fromGateID == uuid.Nil || toGateID == uuid.Nil {
    return 0, nil
  }
  res := transaction.WithContext(ctx).
    Model(&types.CheckinEvent{}).
    Where("gate_id = ?", fromGateID).
    Update("gate_id", toGateID)
  return res.RowsAffected, res.Error
}

func (r *checkinEventRepo) CountByGate(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  if gateID == uuid.Nil {
    return 0, nil
  }
  err := transaction.WithContext(ctx).
    Model(&types.CheckinEvent{}).
    Where("gate_id = ?", gateID).
    Count(&count).Error
  return count, err
}

func (r *checkinEventRepo) HourHistogram(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) ([24]float64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var hist [24]float64
  if gateID == uuid.Nil {
    return hist, nil
  }
  rows := []struct {
    Hour  int
    Count int64
  }{}
  err := transaction.WithContext(ctx).
    Model(&types.CheckinEvent{}).
    Select("EXTRACT(HOUR FROM scanned_at)::int AS hour, COUNT(*) AS count").
    Where("gate_id = ?", gateID).
    Group("hour").
    Scan(&rows).Error
  if err != nil {
    return hist, err
  }
  for _, row := range rows {
    if row.Hour >= 0 && row.Hour < 24 {
      hist[row.Hour] = float64(row.Count)
    }
  }
  return hist, nil
}

func (r *checkinEventRepo) CategoryCounts(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) (map[string]int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  counts := map[string]int64{}
  if gateID == uuid.Nil {
    return counts, nil
  }
  rows := []struct {
    Category string
    Count    int64
  }{}
  err := transaction.WithContext(ctx).
    Model(&types.CheckinEvent{}).
    Select("category, COUNT(*) AS count").
    Where("gate_id = ?", gateID).
    Group("category").
    Scan(&rows).Error
  if err != nil {
    return nil, err
  }
  for _, row := range rows {
    counts[row.Category] = row.Count
  }
  return counts, nil
}
