package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/Harshitk-cp/chainwatch/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AgentHandler struct {
	svc    *service.AgentService
	runner AgentRunner
	logger *zap.Logger
}

func NewAgentHandler(svc *service.AgentService, runner AgentRunner, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{svc: svc, runner: runner, logger: logger}
}

type deployAgentRequest struct {
	Name             string `json:"agent_name" validate:"max=100"`
	MissionPrompt    string `json:"mission_prompt" validate:"required,min=10,max=1000"`
	Recipient        string `json:"telegram_user_id" validate:"omitempty,numeric"`
	ScheduleInterval int    `json:"schedule_interval" validate:"omitempty,min=60,max=3600"`
	MaxRetries       int    `json:"max_retries" validate:"omitempty,min=1,max=10"`
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req deployAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		if !writeValidationError(w, err) {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	agent, err := h.svc.Deploy(r.Context(), service.DeployRequest{
		Name:             req.Name,
		MissionPrompt:    req.MissionPrompt,
		Recipient:        req.Recipient,
		ScheduleInterval: time.Duration(req.ScheduleInterval) * time.Second,
		MaxRetries:       req.MaxRetries,
	})
	if err != nil {
		var planErr *domain.PlanError
		switch {
		case errors.As(err, &planErr):
			writeError(w, http.StatusUnprocessableEntity, planErr.Error())
		case errors.Is(err, service.ErrMissionLength),
			errors.Is(err, service.ErrNameTooLong),
			errors.Is(err, service.ErrIntervalOutOfRange),
			errors.Is(err, service.ErrMaxRetriesOutOfRange):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrCompilerUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("deploy agent failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to deploy agent")
		}
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := domain.ListAgentsOpts{Recipient: q.Get("telegram_user_id")}

	if s := q.Get("status"); s != "" {
		if !domain.ValidAgentStatus(s) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status := domain.AgentStatus(s)
		opts.Status = &status
	}
	var ok bool
	if opts.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if opts.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	agents, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("list agents failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	agent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.writeAgentError(w, err, "failed to get agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Pause)
}

func (h *AgentHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Resume)
}

func (h *AgentHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Reset)
}

// Run executes the agent immediately, outside its schedule.
func (h *AgentHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	res, err := h.runner.RunNow(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAgentBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeAgentError(w, err, "failed to run agent")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AgentHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return
	}
	alerts, err := h.svc.ListAlerts(r.Context(), id, limit)
	if err != nil {
		h.writeAgentError(w, err, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *AgentHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*domain.Agent, error)) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	agent, err := fn(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeAgentError(w, err, "failed to update agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) writeAgentError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, service.ErrAgentNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func agentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
