package domain

import (
	"time"

	"github.com/google/uuid"
)

type AgentStatus string

const (
	AgentStatusActive    AgentStatus = "active"
	AgentStatusPaused    AgentStatus = "paused"
	AgentStatusTriggered AgentStatus = "triggered"
	AgentStatusError     AgentStatus = "error"
)

func ValidAgentStatus(s string) bool {
	switch AgentStatus(s) {
	case AgentStatusActive, AgentStatusPaused, AgentStatusTriggered, AgentStatusError:
		return true
	}
	return false
}

const (
	DefaultScheduleInterval = 300 * time.Second
	MinScheduleInterval     = 60 * time.Second
	MaxScheduleInterval     = 3600 * time.Second
	DefaultMaxRetries       = 3
)

// Agent is a monitoring unit: a target, the conditions evaluated against it,
// and its scheduling and health bookkeeping.
type Agent struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name,omitempty"`
	MissionPrompt string        `json:"mission_prompt"`
	Recipient     string        `json:"recipient,omitempty"`
	Plan          Plan          `json:"plan"`
	Status        AgentStatus   `json:"status"`
	PollInterval  time.Duration `json:"poll_interval"`
	LastRunAt     *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time    `json:"next_run_at,omitempty"`
	ErrorCount    int           `json:"error_count"`
	MaxRetries    int           `json:"max_retries"`
	LastError     *string       `json:"last_error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsDue reports whether the agent should be selected by a scheduling cycle at now.
// Stores implement the same predicate in their due-agent queries.
func (a *Agent) IsDue(now time.Time) bool {
	if a.Status != AgentStatusActive {
		return false
	}
	if a.MaxRetries > 0 && a.ErrorCount >= a.MaxRetries {
		return false
	}
	if a.LastRunAt == nil || a.NextRunAt == nil {
		return true
	}
	return !a.NextRunAt.After(now)
}

// AgentStateUpdate carries the lifecycle fields written after a transition.
// Nil fields are left untouched by the store.
type AgentStateUpdate struct {
	Status         *AgentStatus
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	ErrorCount     *int
	LastError      *string
	ClearLastError bool
	// ClearRunStamps resets last and next run to never run. It wins over
	// LastRunAt and NextRunAt.
	ClearRunStamps bool
}

func (u AgentStateUpdate) IsEmpty() bool {
	return u.Status == nil && u.LastRunAt == nil && u.NextRunAt == nil &&
		u.ErrorCount == nil && u.LastError == nil && !u.ClearLastError && !u.ClearRunStamps
}

// Apply copies the update onto a, mirroring what a store does on persist.
func (u AgentStateUpdate) Apply(a *Agent) {
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.LastRunAt != nil {
		t := *u.LastRunAt
		a.LastRunAt = &t
	}
	if u.NextRunAt != nil {
		t := *u.NextRunAt
		a.NextRunAt = &t
	}
	if u.ClearRunStamps {
		a.LastRunAt = nil
		a.NextRunAt = nil
	}
	if u.ErrorCount != nil {
		a.ErrorCount = *u.ErrorCount
	}
	if u.ClearLastError {
		a.LastError = nil
	}
	if u.LastError != nil {
		msg := *u.LastError
		a.LastError = &msg
	}
}
