package domain

import (
	"time"

	"github.com/google/uuid"
)

// MetricsSnapshot is one timestamped reading for a target. Numeric metrics go in
// Values; list-valued metrics (addresses, marketplaces) go in Sets.
type MetricsSnapshot struct {
	AgentID   uuid.UUID           `json:"agent_id"`
	TargetKey string              `json:"target_key"`
	TakenAt   time.Time           `json:"taken_at"`
	Values    map[string]float64  `json:"values"`
	Sets      map[string][]string `json:"sets,omitempty"`
}

func NewSnapshot(targetKey string, takenAt time.Time) *MetricsSnapshot {
	return &MetricsSnapshot{
		TargetKey: targetKey,
		TakenAt:   takenAt,
		Values:    make(map[string]float64),
		Sets:      make(map[string][]string),
	}
}

func (s *MetricsSnapshot) Value(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Values[name]
	return v, ok
}

func (s *MetricsSnapshot) Set(name string) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.Sets[name]
	return v, ok
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

type EvaluationMode string

const (
	ModeAbsolute EvaluationMode = "absolute"
	ModeDelta    EvaluationMode = "delta"
)

// AlertEvent is produced when a condition fires. It is handed to a Notifier
// and then dropped by the engine.
type AlertEvent struct {
	Condition  Condition      `json:"condition"`
	Mode       EvaluationMode `json:"mode"`
	Observed   float64        `json:"observed"`
	Current    float64        `json:"current"`
	Previous   *float64       `json:"previous,omitempty"`
	Matched    string         `json:"matched,omitempty"`
	Severity   Severity       `json:"severity"`
	ObservedAt time.Time      `json:"observed_at"`
	Details    map[string]any `json:"details,omitempty"`
}

// DeliveryResult is what a Notifier reports for one alert.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     error  `json:"-"`
}

// AlertRecord is the durable history entry kept for each generated alert.
type AlertRecord struct {
	ID            uuid.UUID      `json:"id"`
	AgentID       uuid.UUID      `json:"agent_id"`
	Title         string         `json:"title"`
	AlertType     string         `json:"alert_type"`
	Severity      Severity       `json:"severity"`
	Payload       map[string]any `json:"payload,omitempty"`
	Sent          bool           `json:"sent"`
	MessageID     *string        `json:"message_id,omitempty"`
	DeliveryError *string        `json:"delivery_error,omitempty"`
	TriggeredAt   time.Time      `json:"triggered_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
}
