package main

import (
  "context"
  "fmt"
  "os"
  "strings"
  "time"
  "github.com/attendlab/gatesight-backend/internal/logger"
  "github.com/attendlab/gatesight-backend/internal/utils"
  "github.com/attendlab/gatesight-backend/internal/db"
  goredis "github.com/attendlab/gatesight-backend/internal/clients/redis"
  "github.com/attendlab/gatesight-backend/internal/observability"
  "github.com/attendlab/gatesight-backend/internal/repos"
  "github.com/attendlab/gatesight-backend/internal/services"
  "github.com/attendlab/gatesight-backend/internal/jobs"
  "github.com/attendlab/gatesight-backend/internal/handlers"
  "github.com/attendlab/gatesight-backend/internal/middleware"
  "github.com/attendlab/gatesight-backend/internal/server"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  operatorKey := utils.GetEnv("OPERATOR_API_KEY", "", log)
  thresholdDefaultsPath := utils.GetEnv("THRESHOLD_DEFAULTS_PATH", "", log)
  allowOrigins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log)
  enforcementEveryS := utils.GetEnvAsInt("ENFORCEMENT_CYCLE_SECONDS", 300, log)
  duplicateEveryS := utils.GetEnvAsInt("DUPLICATE_SCAN_SECONDS", 900, log)

  // Tracing
  ctx := context.Background()
  otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
    ServiceName: "gatesight",
    Environment: utils.GetEnv("ENVIRONMENT", "development", log),
    Version:     utils.GetEnv("SERVICE_VERSION", "", log),
  })
  if otelShutdown != nil {
    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      _ = otelShutdown(shutdownCtx)
    }()
  }

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Redis
  redisClient, err := goredis.New(log)
  if err != nil {
    log.Error("Redis init failed", "error", err)
    os.Exit(1)
  }
  defer redisClient.Close()

  // Repos
  log.Info("Setting up Repos from main...")
  sessionRepo := repos.NewEventSessionRepo(thePG, log)
  eventRepo := repos.NewCheckinEventRepo(thePG, log)
  gateRepo := repos.NewGateRepo(thePG, log)
  bindingRepo := repos.NewCategoryBindingRepo(thePG, log)
  suggestionRepo := repos.NewMergeSuggestionRepo(thePG, log)
  configRepo := repos.NewThresholdConfigRepo(thePG, log)
  checkpointRepo := repos.NewDiscoveryCheckpointRepo(thePG, log)
  jobRepo := repos.NewJobRunRepo(thePG, log)

  // Services
  log.Info("Setting up Services from main...")
  configService := services.NewThresholdConfigService(thePG, log, configRepo, thresholdDefaultsPath)
  sessionService := services.NewEventSessionService(thePG, log, sessionRepo)
  clusterer := services.NewClusteringService(log)
  materializer := services.NewGateMaterializer(thePG, log, gateRepo)
  orphanService := services.NewOrphanAssignmentService(thePG, log, eventRepo, gateRepo)
  learner := services.NewBindingLearner(thePG, log, bindingRepo)
  gateService := services.NewGateService(thePG, log, gateRepo, learner)
  validationService := services.NewValidationService(thePG, log, gateRepo, bindingRepo)
  mergeService := services.NewMergeService(thePG, log, suggestionRepo, gateRepo, eventRepo, bindingRepo)
  duplicateDetector := services.NewDuplicateGateDetector(thePG, log, gateRepo, eventRepo, suggestionRepo, mergeService)
  ingestionService := services.NewIngestionService(thePG, log, redisClient, eventRepo, gateRepo, sessionRepo, jobRepo, configService)
  discoveryService := services.NewDiscoveryService(thePG, log, redisClient, sessionRepo, eventRepo, checkpointRepo, configService, clusterer, materializer, orphanService, learner)

  // Jobs
  log.Info("Setting up job worker from main...")
  registry := jobs.NewRegistry()
  if err := registry.Register(jobs.NewDiscoveryCycleHandler(log, discoveryService)); err != nil {
    log.Error("Could not register discovery handler", "error", err)
    os.Exit(1)
  }
  if err := registry.Register(jobs.NewEnforcementCycleHandler(log, discoveryService)); err != nil {
    log.Error("Could not register enforcement handler", "error", err)
    os.Exit(1)
  }
  if err := registry.Register(jobs.NewDuplicateScanHandler(log, duplicateDetector, configService)); err != nil {
    log.Error("Could not register duplicate scan handler", "error", err)
    os.Exit(1)
  }
  worker := jobs.NewWorker(thePG, log, jobRepo, registry)
  worker.Start(ctx)
  scheduler := jobs.NewScheduler(thePG, log, sessionRepo, jobRepo,
    time.Duration(enforcementEveryS)*time.Second,
    time.Duration(duplicateEveryS)*time.Second)
  scheduler.Start(ctx)

  // Handlers
  log.Info("Setting up handlers from main...")
  sessionHandler := handlers.NewSessionHandler(log, sessionService)
  checkinHandler := handlers.NewCheckinHandler(log, ingestionService)
  validationHandler := handlers.NewValidationHandler(log, validationService)
  gateHandler := handlers.NewGateHandler(log, gateService)
  mergeHandler := handlers.NewMergeHandler(log, mergeService)
  configHandler := handlers.NewConfigHandler(log, configService)
  jobsHandler := handlers.NewJobsHandler(log, jobRepo)

  // Middleware
  log.Info("Setting up middleware from main...")
  operatorMiddleware := middleware.NewOperatorMiddleware(log, operatorKey)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    AllowOrigins:       strings.Split(allowOrigins, ","),
    SessionHandler:     sessionHandler,
    CheckinHandler:     checkinHandler,
    ValidationHandler:  validationHandler,
    GateHandler:        gateHandler,
    MergeHandler:       mergeHandler,
    ConfigHandler:      configHandler,
    JobsHandler:        jobsHandler,
    OperatorMiddleware: operatorMiddleware,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Warn("Server failed", "error", err)
  }
}
