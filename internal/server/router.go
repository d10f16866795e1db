package server

import (
  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
  "github.com/attendlab/gatesight-backend/internal/handlers"
  "github.com/attendlab/gatesight-backend/internal/middleware"
)

type RouterConfig struct {
  AllowOrigins       []string
  SessionHandler     *handlers.SessionHandler
  CheckinHandler     *handlers.CheckinHandler
  ValidationHandler  *handlers.ValidationHandler
  GateHandler        *handlers.GateHandler
  MergeHandler       *handlers.MergeHandler
  ConfigHandler      *handlers.ConfigHandler
  JobsHandler        *handlers.JobsHandler
  OperatorMiddleware *middleware.OperatorMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()
  router.Use(otelgin.Middleware("gatesight"))

  // Cors
  origins := cfg.AllowOrigins
  if len(origins) == 0 {
    origins = []string{"http://localhost:3000"}
  }
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Content-Type", "X-Requested-With", "X-Operator-Key", "X-Operator-Id"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)

// ===============
// || Devices   ||
// ===============
  // Scanner endpoints: the hot path. No operator key, these are called by
  // gate hardware on every scan.
  api := router.Group("/api")
  {
    api.POST("/sessions/:session_id/checkins", cfg.CheckinHandler.Ingest)
    api.POST("/sessions/:session_id/validate", cfg.ValidationHandler.Validate)
  }

// ===============
// || Operators ||
// ===============
  ops := router.Group("/api/ops")
  ops.Use(cfg.OperatorMiddleware.RequireOperator())
  // Sessions
  ops.POST("/sessions", cfg.SessionHandler.Create)
  ops.GET("/sessions", cfg.SessionHandler.ListActive)
  ops.GET("/sessions/:session_id", cfg.SessionHandler.Get)
  ops.PATCH("/sessions/:session_id/status", cfg.SessionHandler.SetStatus)
  // Gates
  ops.GET("/sessions/:session_id/gates", cfg.GateHandler.List)
  ops.POST("/sessions/:session_id/gates", cfg.GateHandler.CreateManual)
  ops.PATCH("/gates/:gate_id/name", cfg.GateHandler.Rename)
  ops.PATCH("/gates/:gate_id/status", cfg.GateHandler.SetStatus)
  ops.POST("/gates/:gate_id/bindings/reset", cfg.GateHandler.ResetBinding)
  // Merge review
  ops.GET("/sessions/:session_id/merge-suggestions", cfg.MergeHandler.List)
  ops.POST("/merge-suggestions/:suggestion_id/approve", cfg.MergeHandler.Approve)
  ops.POST("/merge-suggestions/:suggestion_id/reject", cfg.MergeHandler.Reject)
  // Thresholds
  ops.GET("/sessions/:session_id/config", cfg.ConfigHandler.Get)
  ops.PUT("/sessions/:session_id/config", cfg.ConfigHandler.Update)
  // Background cycles
  ops.POST("/sessions/:session_id/jobs/discovery", cfg.JobsHandler.TriggerDiscovery)
  ops.POST("/sessions/:session_id/jobs/enforcement", cfg.JobsHandler.TriggerEnforcement)
  ops.POST("/sessions/:session_id/jobs/duplicate-scan", cfg.JobsHandler.TriggerDuplicateScan)
  ops.GET("/jobs/:job_id", cfg.JobsHandler.Get)

  return router
}
