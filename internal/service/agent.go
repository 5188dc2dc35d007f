package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/Harshitk-cp/chainwatch/internal/store"
	"github.com/google/uuid"
)

const (
	minMissionLength = 10
	maxMissionLength = 1000
	maxNameLength    = 100
	maxRetriesCap    = 10
	defaultListLimit = 50
	maxListLimit     = 200
)

var (
	ErrAgentNotFound        = errors.New("agent not found")
	ErrMissionLength        = fmt.Errorf("mission_prompt must be between %d and %d characters", minMissionLength, maxMissionLength)
	ErrNameTooLong          = fmt.Errorf("name must be at most %d characters", maxNameLength)
	ErrIntervalOutOfRange   = fmt.Errorf("schedule_interval must be between %d and %d seconds", int(domain.MinScheduleInterval.Seconds()), int(domain.MaxScheduleInterval.Seconds()))
	ErrMaxRetriesOutOfRange = fmt.Errorf("max_retries must be between 1 and %d", maxRetriesCap)
	ErrCompilerUnavailable  = errors.New("plan compiler not configured")
)

type DeployRequest struct {
	Name             string
	MissionPrompt    string
	Recipient        string
	ScheduleInterval time.Duration
	MaxRetries       int
}

// AgentService owns agent creation and the externally triggered status changes.
type AgentService struct {
	store    domain.AgentStore
	alerts   domain.AlertStore
	compiler domain.PlanCompiler

	defaultInterval time.Duration
	defaultRetries  int
}

func NewAgentService(s domain.AgentStore, alerts domain.AlertStore, compiler domain.PlanCompiler) *AgentService {
	return &AgentService{
		store:           s,
		alerts:          alerts,
		compiler:        compiler,
		defaultInterval: domain.DefaultScheduleInterval,
		defaultRetries:  domain.DefaultMaxRetries,
	}
}

// SetDefaults overrides the poll interval and retry ceiling used when a deploy
// request leaves them unset. Zero values keep the current defaults.
func (s *AgentService) SetDefaults(interval time.Duration, retries int) {
	if interval > 0 {
		s.defaultInterval = interval
	}
	if retries > 0 {
		s.defaultRetries = retries
	}
}

// Deploy compiles the mission into a plan and stores a new active agent.
// A mission that cannot be compiled returns a *domain.PlanError and nothing is stored.
func (s *AgentService) Deploy(ctx context.Context, req DeployRequest) (*domain.Agent, error) {
	mission := strings.TrimSpace(req.MissionPrompt)
	if n := utf8.RuneCountInString(mission); n < minMissionLength || n > maxMissionLength {
		return nil, ErrMissionLength
	}
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrNameTooLong
	}

	interval := req.ScheduleInterval
	if interval == 0 {
		interval = s.defaultInterval
	}
	if interval < domain.MinScheduleInterval || interval > domain.MaxScheduleInterval {
		return nil, ErrIntervalOutOfRange
	}

	retries := req.MaxRetries
	if retries == 0 {
		retries = s.defaultRetries
	}
	if retries < 1 || retries > maxRetriesCap {
		return nil, ErrMaxRetriesOutOfRange
	}

	if s.compiler == nil {
		return nil, ErrCompilerUnavailable
	}
	plan, err := s.compiler.CompilePlan(ctx, mission)
	if err != nil {
		if domain.IsPlanError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("compile mission: %w", err)
	}

	if name == "" {
		name = fmt.Sprintf("%s %s", plan.Target.Label(), strings.ReplaceAll(string(plan.ActionType), "_", " "))
	}

	a := &domain.Agent{
		Name:          name,
		MissionPrompt: mission,
		Recipient:     strings.TrimSpace(req.Recipient),
		Plan:          *plan,
		Status:        domain.AgentStatusActive,
		PollInterval:  interval,
		MaxRetries:    retries,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AgentService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AgentService) List(ctx context.Context, opts domain.ListAgentsOpts) ([]domain.Agent, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.store.List(ctx, opts)
}

func (s *AgentService) Pause(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	return s.transition(ctx, id, Pause)
}

func (s *AgentService) Resume(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	return s.transition(ctx, id, Resume)
}

// Reset is the only way out of the error state.
func (s *AgentService) Reset(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	return s.transition(ctx, id, func(a *domain.Agent) (domain.AgentStateUpdate, error) {
		return Reset(a), nil
	})
}

func (s *AgentService) transition(ctx context.Context, id uuid.UUID, fn func(*domain.Agent) (domain.AgentStateUpdate, error)) (*domain.Agent, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u, err := fn(a)
	if err != nil {
		return nil, err
	}
	if u.IsEmpty() {
		return a, nil
	}
	if err := s.store.UpdateAgentState(ctx, id, u); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	u.Apply(a)
	return a, nil
}

func (s *AgentService) ListAlerts(ctx context.Context, id uuid.UUID, limit int) ([]domain.AlertRecord, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.alerts.ListByAgent(ctx, id, limit)
}
