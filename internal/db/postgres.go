package db

import (
  "fmt"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  "github.com/attendlab/gatesight-backend/internal/types"
  "github.com/attendlab/gatesight-backend/internal/utils"
  "github.com/attendlab/gatesight-backend/internal/logger"
)

type PostgresService struct {
  db *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  log.Info("Loading environment variables...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "gatesight", log)
  log.Debug("Environment variables loaded")

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  log.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
  }

  if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
    log.Error("Failed to enable uuid-ossp extension", "error", err)
    return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
  }
  log.Info("uuid-ossp extension enabled")

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.EventSession{},
    &types.CheckinEvent{},
    &types.Gate{},
    &types.CategoryBinding{},
    &types.MergeSuggestion{},
    &types.ThresholdConfig{},
    &types.DiscoveryCheckpoint{},
    &types.JobRun{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }

  s.log.Info("Configuring partial unique indexes for postgres tables...")
  // One live gate per (session, rounded centroid). This is the CAS the
  // materializer relies on under concurrent runs.
  if err := s.db.Exec(`
    CREATE UNIQUE INDEX IF NOT EXISTS uq_gate_session_geokey
    ON "gate" ("session_id", "geo_key")
    WHERE "deleted_at" IS NULL
  `).Error; err != nil {
    return fmt.Errorf("Failed to create uq_gate_session_geokey: %w", err)
  }
  // Ingestion idempotency backstop behind the redis fast path.
  if err := s.db.Exec(`
    CREATE UNIQUE INDEX IF NOT EXISTS uq_checkin_event_client
    ON "checkin_event" ("session_id", "client_event_id")
    WHERE "client_event_id" IS NOT NULL
  `).Error; err != nil {
    return fmt.Errorf("Failed to create uq_checkin_event_client: %w", err)
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
