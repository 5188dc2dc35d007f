package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AgentStore interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	List(ctx context.Context, opts ListAgentsOpts) ([]Agent, error)
	// LoadDueAgents returns every agent for which Agent.IsDue(now) holds, read once.
	LoadDueAgents(ctx context.Context, now time.Time) ([]Agent, error)
	UpdateAgentState(ctx context.Context, id uuid.UUID, u AgentStateUpdate) error
}

type ListAgentsOpts struct {
	Status    *AgentStatus
	Recipient string
	Limit     int
	Offset    int
}

// SnapshotStore keeps exactly one previous snapshot per agent and target key.
// Agents watching the same target keep separate baselines.
type SnapshotStore interface {
	// LoadPrevious returns nil and no error when the agent has no history for the target.
	LoadPrevious(ctx context.Context, agentID uuid.UUID, targetKey string) (*MetricsSnapshot, error)
	Save(ctx context.Context, s *MetricsSnapshot) error
}

type AlertStore interface {
	Create(ctx context.Context, r *AlertRecord) error
	ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]AlertRecord, error)
}

// PlanCompiler turns free-form mission text into a validated plan.
type PlanCompiler interface {
	CompilePlan(ctx context.Context, mission string) (*Plan, error)
}

type FetchOptions struct {
	IncludeWashtrade bool
	TimeRange        string
}

// MetricsFetcher reads the current metrics for a target from the external data source.
// Errors are *FetchError.
type MetricsFetcher interface {
	Fetch(ctx context.Context, target Target, opts FetchOptions) (*MetricsSnapshot, error)
}

// Notifier delivers an alert to a recipient. Delivery is best-effort.
type Notifier interface {
	Deliver(ctx context.Context, event AlertEvent, agent *Agent, recipient string) DeliveryResult
}
