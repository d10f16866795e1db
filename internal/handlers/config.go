package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/services"
	"github.com/attendlab/gatesight-backend/internal/types"
)

type ConfigHandler struct {
	log           *logger.Logger
	configService services.ThresholdConfigService
}

func NewConfigHandler(log *logger.Logger, configService services.ThresholdConfigService) *ConfigHandler {
	return &ConfigHandler{
		log:           log.With("handler", "ConfigHandler"),
		configService: configService,
	}
}

func (h *ConfigHandler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	cfg, err := h.configService.Get(c.Request.Context(), sessionID)
	if err != nil {
		RespondServiceError(c, "load_config_failed", err)
		return
	}
	RespondOK(c, gin.H{"config": cfg})
}

func (h *ConfigHandler) Update(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var cfg types.ThresholdConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	updated, err := h.configService.Update(c.Request.Context(), sessionID, &cfg)
	if err != nil {
		RespondServiceError(c, "update_config_failed", err)
		return
	}
	RespondOK(c, gin.H{"config": updated})
}
