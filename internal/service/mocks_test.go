package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/Harshitk-cp/chainwatch/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memAgentStore implements domain.AgentStore in memory.
type memAgentStore struct {
	mu      sync.Mutex
	agents  map[uuid.UUID]*domain.Agent
	updates []domain.AgentStateUpdate
	dueErr  error
}

func newMemAgentStore(agents ...*domain.Agent) *memAgentStore {
	m := &memAgentStore{agents: make(map[uuid.UUID]*domain.Agent)}
	for _, a := range agents {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		m.agents[a.ID] = a
	}
	return m
}

func (m *memAgentStore) Create(ctx context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *memAgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAgentStore) List(ctx context.Context, opts domain.ListAgentsOpts) ([]domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Agent
	for _, a := range m.agents {
		if opts.Status != nil && a.Status != *opts.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memAgentStore) LoadDueAgents(ctx context.Context, now time.Time) ([]domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var out []domain.Agent
	for _, a := range m.agents {
		if a.IsDue(now) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memAgentStore) UpdateAgentState(ctx context.Context, id uuid.UUID, u domain.AgentStateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Apply(a)
	m.updates = append(m.updates, u)
	return nil
}

func (m *memAgentStore) get(id uuid.UUID) domain.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.agents[id]
}

// memSnapshotStore implements domain.SnapshotStore in memory.
type memSnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]*domain.MetricsSnapshot
	saves int
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snaps: make(map[string]*domain.MetricsSnapshot)}
}

func snapshotKey(agentID uuid.UUID, targetKey string) string {
	return agentID.String() + "|" + targetKey
}

func (m *memSnapshotStore) LoadPrevious(ctx context.Context, agentID uuid.UUID, key string) (*domain.MetricsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[snapshotKey(agentID, key)], nil
}

func (m *memSnapshotStore) Save(ctx context.Context, s *domain.MetricsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snapshotKey(s.AgentID, s.TargetKey)] = s
	m.saves++
	return nil
}

func (m *memSnapshotStore) get(agentID uuid.UUID, key string) *domain.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[snapshotKey(agentID, key)]
}

// funcFetcher answers Fetch with fn and tracks how many fetches overlap.
type funcFetcher struct {
	fn func(ctx context.Context, t domain.Target) (*domain.MetricsSnapshot, error)

	calls   atomic.Int64
	current atomic.Int64
	peak    atomic.Int64
}

func (f *funcFetcher) Fetch(ctx context.Context, t domain.Target, opts domain.FetchOptions) (*domain.MetricsSnapshot, error) {
	f.calls.Add(1)
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return f.fn(ctx, t)
}

// recordingNotifier records every delivery and answers with result.
type recordingNotifier struct {
	mu        sync.Mutex
	delivered []domain.AlertEvent
	result    domain.DeliveryResult
	panicMsg  string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{result: domain.DeliveryResult{Success: true, MessageID: "1"}}
}

func (n *recordingNotifier) Deliver(ctx context.Context, ev domain.AlertEvent, a *domain.Agent, recipient string) domain.DeliveryResult {
	if n.panicMsg != "" {
		panic(n.panicMsg)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, ev)
	return n.result
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.delivered)
}

// MockPlanCompiler mocks domain.PlanCompiler.
type MockPlanCompiler struct {
	mock.Mock
}

func (m *MockPlanCompiler) CompilePlan(ctx context.Context, mission string) (*domain.Plan, error) {
	args := m.Called(ctx, mission)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Plan), args.Error(1)
}

// MockAlertStore mocks domain.AlertStore.
type MockAlertStore struct {
	mock.Mock
}

func (m *MockAlertStore) Create(ctx context.Context, r *domain.AlertRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockAlertStore) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]domain.AlertRecord, error) {
	args := m.Called(ctx, agentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AlertRecord), args.Error(1)
}

func walletPlan(conditions ...domain.Condition) domain.Plan {
	return domain.Plan{
		ActionType: domain.ActionWalletMonitor,
		Target: domain.Target{
			Type:    domain.TargetWallet,
			Address: "0x742d35cc6bf8e1d6d8aec8967c96e5e5e2dbdcf5",
			Chain:   domain.ChainEthereum,
		},
		Conditions: conditions,
	}
}

func outflowOver(v float64) domain.Condition {
	return domain.Condition{
		Kind:      domain.ConditionThreshold,
		Parameter: "outgoing_transfer",
		Operator:  domain.OpGreaterThan,
		Threshold: v,
	}
}

func newWalletAgent(address string, conditions ...domain.Condition) *domain.Agent {
	plan := walletPlan(conditions...)
	plan.Target.Address = address
	return &domain.Agent{
		ID:           uuid.New(),
		Plan:         plan,
		Status:       domain.AgentStatusActive,
		PollInterval: 5 * time.Minute,
		MaxRetries:   3,
		Recipient:    "12345",
	}
}

func snapshotOf(key string, at time.Time, values map[string]float64) *domain.MetricsSnapshot {
	s := domain.NewSnapshot(key, at)
	for k, v := range values {
		s.Values[k] = v
	}
	return s
}

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
