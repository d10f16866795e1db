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

type JobRunRepo interface {
  // Enqueue creates a queued run unless the session already has one
  // queued/running for the same job type; returns the existing run then.
  Enqueue(ctx context.Context, tx *gorm.DB, run *types.JobRun) (*types.JobRun, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error)
  ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
  HasActive(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, jobType string) (bool, error)
}

type jobRunRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
  return &jobRunRepo{
    db:  db,
    log: baseLog.With("repo", "JobRunRepo"),
  }
}

func (r *jobRunRepo) Enqueue(ctx context.Context, tx *gorm.DB, run *types.JobRun) (*types.JobRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if run == nil || run.SessionID == uuid.Nil || run.JobType == "" {
    return nil, nil
  }
  var existing types.JobRun
  err := transaction.WithContext(ctx).
    Where("session_id = ? AND job_type = ? AND status IN ?", run.SessionID, run.JobType, []string{types.JobStatusQueued, types.JobStatusRunning}).
    First(&existing).Error
  if err == nil {
    return &existing, nil
  }
  if !errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, err
  }
  run.Status = types.JobStatusQueued
  if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
    return nil, err
  }
  return run, nil
}

func (r *jobRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, nil
  }
  var run types.JobRun
  err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&run).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &run, nil
}

func (r *jobRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  now := time.Now()
  retryCutoff := now.Add(-retryDelay)
  staleCutoff := now.Add(-staleRunning)
  var claimed *types.JobRun
  err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
    var job types.JobRun
    q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
      Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.JobStatusQueued, types.JobStatusFailed, maxAttempts, retryCutoff, types.JobStatusRunning, staleCutoff).
      Order("created_at ASC")
    qErr := q.First(&job).Error
    if errors.Is(qErr, gorm.ErrRecordNotFound) {
      return nil
    }
    if qErr != nil {
      return qErr
    }
    uErr := txx.Model(&types.JobRun{}).
      Where("id = ?", job.ID).
      Updates(map[string]interface{}{
        "status":       types.JobStatusRunning,
        "attempts":     gorm.Expr("attempts + 1"),
        "started_at":   now,
        "heartbeat_at": now,
        "updated_at":   now,
      }).Error
    if uErr != nil {
      return uErr
    }
    claimed = &job
    return nil
  })
  if err != nil {
    return nil, err
  }
  return claimed, nil
}

func (r *jobRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  if updates == nil {
    updates = map[string]interface{}{}
  }
  if _, ok := updates["updated_at"]; !ok {
    updates["updated_at"] = time.Now()
  }
  return transaction.WithContext(ctx).
    Model(&types.JobRun{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *jobRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil
  }
  now := time.Now()
  return transaction.WithContext(ctx).
    Model(&types.JobRun{}).
    Where("id = ? AND status = ?", id, types.JobStatusRunning).
    Updates(map[string]interface{}{
      "heartbeat_at": now,
      "updated_at":   now,
    }).Error
}

func (r *jobRunRepo) HasActive(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, jobType string) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if sessionID == uuid.Nil || jobType == "" {
    return false, nil
  }
  var count int64
  err := transaction.WithContext(ctx).
    Model(&types.JobRun{}).
    Where("session_id = ? AND job_type = ? AND status IN ?", sessionID, jobType, []string{types.JobStatusQueued, types.JobStatusRunning}).
    Count(&count).Error
  if err != nil {
    return false, err
  }
  return count > 0, nil
}
