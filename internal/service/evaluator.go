package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
)

const (
	DefaultHighRatio     = 2.0
	DefaultCriticalRatio = 5.0

	floatTolerance = 1e-9
)

// SeverityPolicy maps the overage ratio (observed over threshold) to a tier.
// Any fired condition is at least medium.
type SeverityPolicy struct {
	HighRatio     float64
	CriticalRatio float64
}

func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{HighRatio: DefaultHighRatio, CriticalRatio: DefaultCriticalRatio}
}

func (p SeverityPolicy) Classify(ratio float64) domain.Severity {
	switch {
	case p.CriticalRatio > 0 && ratio >= p.CriticalRatio:
		return domain.SeverityCritical
	case p.HighRatio > 0 && ratio >= p.HighRatio:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// Evaluator checks conditions against metric snapshots. It does no I/O.
type Evaluator struct {
	policy SeverityPolicy
}

func NewEvaluator(policy SeverityPolicy) *Evaluator {
	if policy.HighRatio <= 0 {
		policy.HighRatio = DefaultHighRatio
	}
	if policy.CriticalRatio < policy.HighRatio {
		policy.CriticalRatio = math.Max(DefaultCriticalRatio, policy.HighRatio)
	}
	return &Evaluator{policy: policy}
}

// EvaluateAll evaluates every condition independently and returns one event per
// condition that fired, in condition order. Any evaluation error fails the pass.
func (e *Evaluator) EvaluateAll(conditions []domain.Condition, cur, prev *domain.MetricsSnapshot) ([]domain.AlertEvent, error) {
	var events []domain.AlertEvent
	for _, c := range conditions {
		ev, err := e.Evaluate(c, cur, prev)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events, nil
}

// Evaluate returns the event for c, or nil when the condition does not fire.
// Conditions over cumulative metrics compare against prev and never fire
// without one.
func (e *Evaluator) Evaluate(c domain.Condition, cur, prev *domain.MetricsSnapshot) (*domain.AlertEvent, error) {
	if cur == nil {
		return nil, &domain.EvaluationError{Parameter: c.Parameter, Reason: "no current snapshot"}
	}
	if c.Operator == domain.OpContains {
		return e.evaluateContains(c, cur, prev)
	}

	current, ok := cur.Value(c.Parameter)
	if !ok {
		if _, isSet := cur.Set(c.Parameter); isSet {
			return nil, &domain.EvaluationError{Parameter: c.Parameter, Reason: "metric is a set, numeric value expected"}
		}
		return nil, &domain.EvaluationError{Parameter: c.Parameter, Reason: "metric missing from snapshot"}
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return nil, &domain.EvaluationError{Parameter: c.Parameter, Reason: "metric is not a finite number"}
	}

	event := &domain.AlertEvent{
		Condition:  c,
		Mode:       domain.ModeAbsolute,
		Observed:   current,
		Current:    current,
		ObservedAt: cur.TakenAt,
		Details: map[string]any{
			"target_key": cur.TargetKey,
		},
	}

	if c.UsesDelta() {
		previous, ok := prev.Value(c.Parameter)
		if !ok {
			return nil, nil
		}
		event.Mode = domain.ModeDelta
		event.Previous = &previous
		event.Observed = current - previous
		event.Details["delta"] = event.Observed
		if previous != 0 {
			event.Details["percent_change"] = event.Observed / math.Abs(previous) * 100
		}
	}

	if !compare(c.Operator, event.Observed, c.Threshold) {
		return nil, nil
	}

	event.Severity = e.severity(c, event.Observed)
	event.Details["threshold"] = c.Threshold
	if c.Window != "" {
		event.Details["window"] = c.Window
	}
	return event, nil
}

func (e *Evaluator) evaluateContains(c domain.Condition, cur, prev *domain.MetricsSnapshot) (*domain.AlertEvent, error) {
	members, ok := cur.Set(c.Parameter)
	if !ok {
		return nil, &domain.EvaluationError{Parameter: c.Parameter, Reason: "set metric missing from snapshot"}
	}

	event := &domain.AlertEvent{
		Condition:  c,
		Mode:       domain.ModeAbsolute,
		ObservedAt: cur.TakenAt,
		Details: map[string]any{
			"target_key": cur.TargetKey,
		},
	}

	if c.UsesDelta() {
		before, ok := prev.Set(c.Parameter)
		if !ok {
			return nil, nil
		}
		event.Mode = domain.ModeDelta
		members = difference(members, before)
	}

	match, found := findMember(members, c.Match)
	if !found {
		return nil, nil
	}

	event.Matched = match
	event.Observed = float64(len(members))
	event.Current = event.Observed
	event.Severity = domain.SeverityMedium
	event.Details["match"] = c.Match
	return event, nil
}

func (e *Evaluator) severity(c domain.Condition, observed float64) domain.Severity {
	if c.Threshold <= 0 || observed <= 0 {
		return domain.SeverityMedium
	}
	switch c.Operator {
	case domain.OpGreaterThan:
		return e.policy.Classify(observed / c.Threshold)
	case domain.OpLessThan:
		return e.policy.Classify(c.Threshold / observed)
	default:
		return domain.SeverityMedium
	}
}

func compare(op domain.Operator, observed, threshold float64) bool {
	switch op {
	case domain.OpGreaterThan:
		return observed > threshold
	case domain.OpLessThan:
		return observed < threshold
	case domain.OpEqual:
		return math.Abs(observed-threshold) <= floatTolerance
	}
	return false
}

func findMember(members []string, want string) (string, bool) {
	for _, m := range members {
		if strings.EqualFold(m, want) {
			return m, true
		}
	}
	return "", false
}

// difference returns members of a not present in b, case-insensitively.
func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		seen[strings.ToLower(s)] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := seen[strings.ToLower(s)]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// AlertTitle is the one-line summary used for notifications and history.
func AlertTitle(agent *domain.Agent, ev domain.AlertEvent) string {
	label := agent.Plan.Target.Label()
	if ev.Condition.Operator == domain.OpContains {
		return fmt.Sprintf("%s: %s contains %s", label, ev.Condition.Parameter, ev.Matched)
	}
	if ev.Mode == domain.ModeDelta {
		return fmt.Sprintf("%s: %s changed by %.4g (%s)", label, ev.Condition.Parameter, ev.Observed, ev.Condition)
	}
	return fmt.Sprintf("%s: %s is %.4g (%s)", label, ev.Condition.Parameter, ev.Observed, ev.Condition)
}
