package domain

import (
	"errors"
	"fmt"
)

type FetchErrorKind string

const (
	FetchTransient FetchErrorKind = "transient"
	FetchPermanent FetchErrorKind = "permanent"
)

// FetchError is returned by a MetricsFetcher. Transient errors (network, rate
// limiting, 5xx) and permanent ones both count against an agent's error budget;
// neither is retried inside the same cycle.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func TransientFetchError(err error) *FetchError {
	return &FetchError{Kind: FetchTransient, Err: err}
}

func PermanentFetchError(err error) *FetchError {
	return &FetchError{Kind: FetchPermanent, Err: err}
}

func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTransient
}

// PlanError rejects a malformed plan when an agent is created. Agents with
// plan errors never reach the scheduler.
type PlanError struct {
	Reason string
}

func (e *PlanError) Error() string {
	return "invalid plan: " + e.Reason
}

func planErrorf(format string, args ...any) error {
	return &PlanError{Reason: fmt.Sprintf(format, args...)}
}

func IsPlanError(err error) bool {
	var pe *PlanError
	return errors.As(err, &pe)
}

// EvaluationError reports a snapshot that does not have the shape a condition expects.
type EvaluationError struct {
	Parameter string
	Reason    string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %s", e.Parameter, e.Reason)
}

// DeliveryError wraps a notifier failure. It is logged and never affects agent health.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
