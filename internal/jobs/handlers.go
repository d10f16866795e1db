package jobs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/services"
	"github.com/attendlab/gatesight-backend/internal/types"
)

// DiscoveryCycleHandler runs a full discovery pass (clustering, gate
// reconciliation, orphan backfill, binding learning) for one session.
type DiscoveryCycleHandler struct {
	log       *logger.Logger
	discovery services.DiscoveryService
}

func NewDiscoveryCycleHandler(baseLog *logger.Logger, discovery services.DiscoveryService) *DiscoveryCycleHandler {
	return &DiscoveryCycleHandler{
		log:       baseLog.With("handler", "DiscoveryCycleHandler"),
		discovery: discovery,
	}
}

func (h *DiscoveryCycleHandler) Type() string { return types.JobTypeDiscoveryCycle }

func (h *DiscoveryCycleHandler) Run(ctx *Context) error {
	sessionID := ctx.Job.SessionID
	if sessionID == uuid.Nil {
		return fmt.Errorf("discovery cycle without session id")
	}
	ctx.Progress("discover")
	if err := h.discovery.RunDiscoveryCycle(ctx.Ctx, sessionID); err != nil {
		return err
	}
	ctx.Succeed("done")
	return nil
}

// EnforcementCycleHandler skips clustering and only advances orphan backfill
// and the binding learner.
type EnforcementCycleHandler struct {
	log       *logger.Logger
	discovery services.DiscoveryService
}

func NewEnforcementCycleHandler(baseLog *logger.Logger, discovery services.DiscoveryService) *EnforcementCycleHandler {
	return &EnforcementCycleHandler{
		log:       baseLog.With("handler", "EnforcementCycleHandler"),
		discovery: discovery,
	}
}

func (h *EnforcementCycleHandler) Type() string { return types.JobTypeEnforcementCycle }

func (h *EnforcementCycleHandler) Run(ctx *Context) error {
	sessionID := ctx.Job.SessionID
	if sessionID == uuid.Nil {
		return fmt.Errorf("enforcement cycle without session id")
	}
	ctx.Progress("enforce")
	if err := h.discovery.RunEnforcementCycle(ctx.Ctx, sessionID); err != nil {
		return err
	}
	ctx.Succeed("done")
	return nil
}

// DuplicateScanHandler compares active gate pairs and files merge
// suggestions.
type DuplicateScanHandler struct {
	log       *logger.Logger
	detector  services.DuplicateGateDetector
	configSvc services.ThresholdConfigService
}

func NewDuplicateScanHandler(baseLog *logger.Logger, detector services.DuplicateGateDetector, configSvc services.ThresholdConfigService) *DuplicateScanHandler {
	return &DuplicateScanHandler{
		log:       baseLog.With("handler", "DuplicateScanHandler"),
		detector:  detector,
		configSvc: configSvc,
	}
}

func (h *DuplicateScanHandler) Type() string { return types.JobTypeDuplicateScan }

func (h *DuplicateScanHandler) Run(ctx *Context) error {
	sessionID := ctx.Job.SessionID
	if sessionID == uuid.Nil {
		return fmt.Errorf("duplicate scan without session id")
	}
	cfg, err := h.configSvc.Get(ctx.Ctx, sessionID)
	if err != nil {
		return err
	}
	ctx.Progress("scan")
	suggestions, err := h.detector.Scan(ctx.Ctx, sessionID, cfg)
	if err != nil {
		return err
	}
	if len(suggestions) > 0 {
		h.log.Info("Duplicate scan produced suggestions", "session_id", sessionID, "suggestions", len(suggestions))
	}
	ctx.Succeed("done")
	return nil
}
