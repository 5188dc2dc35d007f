package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/chainwatch/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AgentRunner runs a single agent on demand.
type AgentRunner interface {
	RunNow(ctx context.Context, id uuid.UUID) (*service.RunResult, error)
}

// SchedulerControl is the operational surface of the scheduler.
type SchedulerControl interface {
	AgentRunner
	Start() error
	Stop() error
	Stats() service.SchedulerStats
	RunCycle(ctx context.Context) (*service.CycleResult, error)
}

type SchedulerHandler struct {
	sched  SchedulerControl
	logger *zap.Logger
}

func NewSchedulerHandler(sched SchedulerControl, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{sched: sched, logger: logger}
}

func (h *SchedulerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Stats())
}

func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Start(); err != nil {
		if errors.Is(err, service.ErrSchedulerRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("start scheduler failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start scheduler")
		return
	}
	writeJSON(w, http.StatusOK, h.sched.Stats())
}

// Stop blocks until in-flight agent runs finish.
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Stop(); err != nil {
		if errors.Is(err, service.ErrSchedulerStopped) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("stop scheduler failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to stop scheduler")
		return
	}
	writeJSON(w, http.StatusOK, h.sched.Stats())
}

// Cycle runs one scheduling cycle synchronously.
func (h *SchedulerHandler) Cycle(w http.ResponseWriter, r *http.Request) {
	res, err := h.sched.RunCycle(r.Context())
	if err != nil {
		h.logger.Error("manual cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scheduling cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
