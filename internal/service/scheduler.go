package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/Harshitk-cp/chainwatch/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultCheckInterval = 300 * time.Second
	defaultErrorBackoff  = 30 * time.Second
	defaultMaxConcurrent = 4
	defaultRunTimeout    = 2 * time.Minute
)

var (
	ErrSchedulerRunning = errors.New("scheduler already running")
	ErrSchedulerStopped = errors.New("scheduler not running")
	ErrAgentBusy        = errors.New("agent run already in progress")
)

type SchedulerConfig struct {
	CheckInterval time.Duration
	ErrorBackoff  time.Duration
	MaxConcurrent int
	// RunTimeout bounds the store and external calls of one pipeline run.
	RunTimeout time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaultErrorBackoff
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	return c
}

type SchedulerStats struct {
	Running          bool       `json:"running"`
	CyclesRun        int64      `json:"cycles_run"`
	AgentsProcessed  int64      `json:"agents_processed"`
	AlertsGenerated  int64      `json:"alerts_generated"`
	AlertsDelivered  int64      `json:"alerts_delivered"`
	Errors           int64      `json:"errors"`
	ManualRuns       int64      `json:"manual_runs"`
	InFlight         int        `json:"in_flight"`
	MaxConcurrent    int        `json:"max_concurrent"`
	CheckIntervalSec float64    `json:"check_interval_seconds"`
	LastCycleAt      *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleMillis  int64      `json:"last_cycle_ms"`
}

// RunResult describes one pipeline execution for one agent.
type RunResult struct {
	AgentID    uuid.UUID           `json:"agent_id"`
	Success    bool                `json:"success"`
	Baseline   bool                `json:"baseline"`
	Alerts     []domain.AlertEvent `json:"alerts"`
	Delivered  int                 `json:"delivered"`
	Status     domain.AgentStatus  `json:"status"`
	ErrorCount int                 `json:"error_count"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	Duration   time.Duration       `json:"duration"`
}

// CycleResult aggregates one scheduling cycle.
type CycleResult struct {
	Selected  int `json:"selected"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Alerts    int `json:"alerts"`
}

// Scheduler runs due agents on a fixed cadence with bounded concurrency.
type Scheduler struct {
	agents    domain.AgentStore
	snapshots domain.SnapshotStore
	fetcher   domain.MetricsFetcher
	notifier  domain.Notifier
	evaluator *Evaluator
	logger    *zap.Logger
	cfg       SchedulerConfig
	now       func() time.Time

	sem *semaphore.Weighted

	// runMu serializes Start and Stop.
	runMu    sync.Mutex
	running  atomic.Bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	flightMu sync.Mutex
	inFlight map[uuid.UUID]struct{}

	cycles          atomic.Int64
	processed       atomic.Int64
	alertsGenerated atomic.Int64
	alertsDelivered atomic.Int64
	errorCount      atomic.Int64
	manualRuns      atomic.Int64

	statsMu       sync.Mutex
	lastCycleAt   *time.Time
	lastCycleTook time.Duration
}

func NewScheduler(
	agents domain.AgentStore,
	snapshots domain.SnapshotStore,
	fetcher domain.MetricsFetcher,
	notifier domain.Notifier,
	evaluator *Evaluator,
	logger *zap.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	cfg = cfg.withDefaults()
	if evaluator == nil {
		evaluator = NewEvaluator(DefaultSeverityPolicy())
	}
	return &Scheduler{
		agents:    agents,
		snapshots: snapshots,
		fetcher:   fetcher,
		notifier:  notifier,
		evaluator: evaluator,
		logger:    logger.With(zap.String("component", "scheduler")),
		cfg:       cfg,
		now:       time.Now,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		inFlight:  make(map[uuid.UUID]struct{}),
	}
}

// SetClock replaces the time source used for selection and run stamps.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Scheduler) Start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running.Load() {
		return ErrSchedulerRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.running.Store(true)

	go s.loop(ctx, s.loopDone)

	s.logger.Info("scheduler started",
		zap.Duration("check_interval", s.cfg.CheckInterval),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent))
	return nil
}

// Stop prevents new cycles and dispatches, then waits for in-flight pipelines.
func (s *Scheduler) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running.Load() {
		return ErrSchedulerStopped
	}

	s.cancel()
	<-s.loopDone
	s.running.Store(false)

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		wait := s.cfg.CheckInterval
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("scheduling cycle failed", zap.Error(err))
			wait = s.cfg.ErrorBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunCycle selects due agents once and runs them through the pipeline, at most
// MaxConcurrent at a time. It returns after every dispatched pipeline finishes.
// When ctx is cancelled, undispatched agents are left for a later cycle.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := s.now()
	due, err := s.agents.LoadDueAgents(ctx, started)
	if err != nil {
		return nil, fmt.Errorf("load due agents: %w", err)
	}
	s.cycles.Add(1)

	result := &CycleResult{Selected: len(due)}
	if len(due) > 0 {
		s.logger.Info("processing due agents", zap.Int("count", len(due)))
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := range due {
		agent := due[i]

		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Info("dispatch interrupted by stop",
				zap.Int("undispatched", len(due)-i))
			break
		}
		if !s.claim(agent.ID) {
			s.sem.Release(1)
			s.logger.Debug("agent already running, skipping", zap.String("agent_id", agent.ID.String()))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)
			defer s.unclaim(agent.ID)

			res := s.execute(ctx, &agent)
			if res == nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			result.Alerts += len(res.Alerts)
			if res.Success {
				result.Succeeded++
			} else {
				result.Failed++
			}
		}()
	}
	wg.Wait()

	took := s.now().Sub(started)
	s.statsMu.Lock()
	s.lastCycleAt = &started
	s.lastCycleTook = took
	s.statsMu.Unlock()

	if result.Selected > 0 {
		s.logger.Info("scheduling cycle complete",
			zap.Int("selected", result.Selected),
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int("alerts", result.Alerts),
			zap.Duration("took", took))
	}
	return result, nil
}

// RunNow runs one agent through the same pipeline as a scheduled run, skipping
// only the due check. It takes a concurrency permit like a scheduled run and
// works whether or not the loop is running.
func (s *Scheduler) RunNow(ctx context.Context, id uuid.UUID) (*RunResult, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}

	if !s.claim(agent.ID) {
		return nil, ErrAgentBusy
	}
	defer s.unclaim(agent.ID)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	s.manualRuns.Add(1)
	res := s.execute(ctx, agent)
	if res == nil {
		return nil, ctx.Err()
	}
	return res, nil
}

func (s *Scheduler) Stats() SchedulerStats {
	s.statsMu.Lock()
	lastAt := s.lastCycleAt
	took := s.lastCycleTook
	s.statsMu.Unlock()

	s.flightMu.Lock()
	inFlight := len(s.inFlight)
	s.flightMu.Unlock()

	return SchedulerStats{
		Running:          s.running.Load(),
		CyclesRun:        s.cycles.Load(),
		AgentsProcessed:  s.processed.Load(),
		AlertsGenerated:  s.alertsGenerated.Load(),
		AlertsDelivered:  s.alertsDelivered.Load(),
		Errors:           s.errorCount.Load(),
		ManualRuns:       s.manualRuns.Load(),
		InFlight:         inFlight,
		MaxConcurrent:    s.cfg.MaxConcurrent,
		CheckIntervalSec: s.cfg.CheckInterval.Seconds(),
		LastCycleAt:      lastAt,
		LastCycleMillis:  took.Milliseconds(),
	}
}

func (s *Scheduler) claim(id uuid.UUID) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) unclaim(id uuid.UUID) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, id)
}

// execute is the per-agent pipeline shared by scheduled and manual runs. It
// returns nil when ctx was cancelled while waiting; the run stamp is then rolled
// back so the agent stays due.
func (s *Scheduler) execute(ctx context.Context, agent *domain.Agent) *RunResult {
	log := s.logger.With(zap.String("agent_id", agent.ID.String()))
	started := s.now()
	res := &RunResult{AgentID: agent.ID, StartedAt: started}

	// Store writes outlive a stop request so the lifecycle state is always recorded.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RunTimeout)
	defer cancel()

	prevLast, prevNext := agent.LastRunAt, agent.NextRunAt
	stamp := StartRun(agent, started)
	if err := s.agents.UpdateAgentState(storeCtx, agent.ID, stamp); err != nil {
		log.Error("failed to record run start", zap.Error(err))
		s.errorCount.Add(1)
		res.Error = err.Error()
		res.Status = agent.Status
		res.ErrorCount = agent.ErrorCount
		return res
	}
	stamp.Apply(agent)

	err := s.runPipeline(ctx, storeCtx, agent, res)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		log.Info("agent run interrupted by stop", zap.Error(err))
		restore := RunInterrupted(prevLast, prevNext)
		if uerr := s.agents.UpdateAgentState(storeCtx, agent.ID, restore); uerr != nil {
			log.Error("failed to restore run stamp", zap.Error(uerr))
		}
		restore.Apply(agent)
		return nil
	}

	s.processed.Add(1)

	var update domain.AgentStateUpdate
	if err != nil {
		s.errorCount.Add(1)
		update = RunFailed(agent, err)
		res.Error = err.Error()
		log.Warn("agent run failed",
			zap.Error(err),
			zap.Int("error_count", agent.ErrorCount+1),
			zap.Int("max_retries", agent.MaxRetries))
	} else {
		res.Success = true
		update = RunSucceeded(agent, len(res.Alerts))
	}

	if !update.IsEmpty() {
		if uerr := s.agents.UpdateAgentState(storeCtx, agent.ID, update); uerr != nil {
			log.Error("failed to update agent state", zap.Error(uerr))
		}
	}
	update.Apply(agent)

	if agent.Status == domain.AgentStatusError && err != nil {
		log.Error("agent reached retry ceiling", zap.Int("error_count", agent.ErrorCount))
	}

	res.Status = agent.Status
	res.ErrorCount = agent.ErrorCount
	res.Duration = s.now().Sub(started)
	return res
}

// runPipeline fetches, evaluates, persists the snapshot and hands alerts to the
// notifier. A panic anywhere inside is converted to an error.
func (s *Scheduler) runPipeline(ctx, storeCtx context.Context, agent *domain.Agent, res *RunResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("agent pipeline panicked",
				zap.String("agent_id", agent.ID.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	target := agent.Plan.Target
	key := target.Key()

	opts := domain.FetchOptions{
		IncludeWashtrade: agent.Plan.BoolParam(domain.ParamIncludeWashtrade),
	}
	current, err := s.fetcher.Fetch(ctx, target, opts)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	if current == nil {
		return &domain.EvaluationError{Parameter: key, Reason: "fetcher returned no snapshot"}
	}
	current.AgentID = agent.ID
	current.TargetKey = key

	previous, err := s.snapshots.LoadPrevious(storeCtx, agent.ID, key)
	if err != nil {
		return fmt.Errorf("load previous snapshot: %w", err)
	}
	res.Baseline = previous == nil

	events, err := s.evaluator.EvaluateAll(agent.Plan.Conditions, current, previous)
	if err != nil {
		return err
	}

	if err := s.snapshots.Save(storeCtx, current); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	res.Alerts = events
	s.alertsGenerated.Add(int64(len(events)))
	for _, ev := range events {
		out := s.notifier.Deliver(ctx, ev, agent, agent.Recipient)
		if !out.Success {
			s.logger.Error("alert delivery failed",
				zap.String("agent_id", agent.ID.String()),
				zap.String("parameter", ev.Condition.Parameter),
				zap.Error(out.Error))
			continue
		}
		res.Delivered++
		s.alertsDelivered.Add(1)
	}

	if len(events) > 0 {
		s.logger.Info("agent produced alerts",
			zap.String("agent_id", agent.ID.String()),
			zap.Int("alerts", len(events)),
			zap.Int("delivered", res.Delivered))
	}
	return nil
}
