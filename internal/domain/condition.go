package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ConditionKind string

const (
	ConditionThreshold ConditionKind = "threshold"
	ConditionDetection ConditionKind = "detection"
	ConditionChange    ConditionKind = "change"
)

func ValidConditionKind(k string) bool {
	switch ConditionKind(k) {
	case ConditionThreshold, ConditionDetection, ConditionChange:
		return true
	}
	return false
}

type Operator string

const (
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpEqual       Operator = "eq"
	OpContains    Operator = "contains"
)

func ValidOperator(o string) bool {
	switch Operator(o) {
	case OpGreaterThan, OpLessThan, OpEqual, OpContains:
		return true
	}
	return false
}

// Windows accepted for a condition's optional timeframe.
var conditionWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// MetricShape describes how a fetcher reports one metric.
type MetricShape struct {
	// Cumulative metrics are lifetime counters and are compared across polls
	// rather than against their raw value.
	Cumulative bool
	// Set metrics hold string members and only support contains.
	Set bool
	// FetchOption names the boolean plan parameter the fetcher needs before it
	// reports the metric.
	FetchOption string
}

// Metrics a fetcher reports per target type.
var targetMetrics = map[TargetType]map[string]MetricShape{
	TargetWallet: {
		"outgoing_transfer": {Cumulative: true},
		"incoming_transfer": {Cumulative: true},
		"transaction_count": {Cumulative: true},
		"balance":           {},
	},
	TargetCollection: {
		"volume":             {},
		"sales":              {},
		"volume_change":      {},
		"volume_spike":       {},
		"sale_price":         {},
		"washtrade_activity": {FetchOption: ParamIncludeWashtrade},
	},
	TargetNFT: {
		"price_estimate": {},
		"price_change":   {},
		"sale_count":     {Cumulative: true},
		"buyers":         {Set: true},
	},
}

// IsCumulative reports whether a metric is a lifetime counter.
func IsCumulative(parameter string) bool {
	for _, metrics := range targetMetrics {
		if metrics[parameter].Cumulative {
			return true
		}
	}
	return false
}

func LookupMetric(t TargetType, parameter string) (MetricShape, bool) {
	shape, ok := targetMetrics[t][parameter]
	return shape, ok
}

// Condition is a validated predicate over one metric. Numeric operators carry
// Threshold; contains carries Match.
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	Parameter string        `json:"parameter"`
	Operator  Operator      `json:"operator"`
	Threshold float64       `json:"threshold,omitempty"`
	Match     string        `json:"match,omitempty"`
	Window    string        `json:"window,omitempty"`
}

// UsesDelta reports whether the condition compares successive snapshots.
func (c Condition) UsesDelta() bool {
	return c.Kind == ConditionChange || IsCumulative(c.Parameter)
}

func (c Condition) WindowDuration() (time.Duration, bool) {
	d, ok := conditionWindows[c.Window]
	return d, ok
}

func (c Condition) String() string {
	if c.Operator == OpContains {
		return fmt.Sprintf("%s %s %q", c.Parameter, c.Operator, c.Match)
	}
	return fmt.Sprintf("%s %s %s", c.Parameter, c.Operator, strconv.FormatFloat(c.Threshold, 'f', -1, 64))
}

// Validate checks the invariants CompilePlan establishes. It is used again when
// conditions are loaded from storage.
func (c Condition) Validate() error {
	if !ValidConditionKind(string(c.Kind)) {
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	if !ValidOperator(string(c.Operator)) {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if strings.TrimSpace(c.Parameter) == "" {
		return fmt.Errorf("parameter is required")
	}
	if c.Operator == OpContains && c.Match == "" {
		return fmt.Errorf("contains requires a non-empty value")
	}
	if c.Window != "" {
		if _, ok := conditionWindows[c.Window]; !ok {
			return fmt.Errorf("unsupported timeframe %q", c.Window)
		}
	}
	return nil
}

// ParseCondition converts a raw condition for a target type into a validated Condition.
func ParseCondition(rc RawCondition, targetType TargetType) (Condition, error) {
	c := Condition{
		Kind:      ConditionKind(strings.ToLower(strings.TrimSpace(rc.Type))),
		Parameter: strings.TrimSpace(rc.Parameter),
		Operator:  Operator(strings.ToLower(strings.TrimSpace(rc.Operator))),
		Window:    strings.TrimSpace(rc.Timeframe),
	}

	shape, ok := LookupMetric(targetType, c.Parameter)
	if !ok {
		return Condition{}, fmt.Errorf("parameter %q is not reported for %s targets", c.Parameter, targetType)
	}
	if shape.Set && c.Operator != OpContains {
		return Condition{}, fmt.Errorf("parameter %q is a set and only supports contains", c.Parameter)
	}
	if !shape.Set && c.Operator == OpContains {
		return Condition{}, fmt.Errorf("parameter %q is numeric and does not support contains", c.Parameter)
	}

	if c.Operator == OpContains {
		switch v := rc.Value.(type) {
		case string:
			c.Match = strings.TrimSpace(v)
		case nil:
		default:
			c.Match = fmt.Sprint(v)
		}
	} else {
		n, err := numericValue(rc.Value)
		if err != nil {
			return Condition{}, err
		}
		c.Threshold = n
	}

	if err := c.Validate(); err != nil {
		return Condition{}, err
	}
	return c, nil
}

func numericValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", n)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is required")
	}
	return 0, fmt.Errorf("value of type %T is not numeric", v)
}
