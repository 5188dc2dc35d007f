package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Lifecycle transitions. Each returns the fields to persist and never touches a store.

// StartRun stamps the run before any work so a crash mid-cycle cannot cause an
// immediate re-run.
func StartRun(a *domain.Agent, now time.Time) domain.AgentStateUpdate {
	interval := a.PollInterval
	if interval <= 0 {
		interval = domain.DefaultScheduleInterval
	}
	next := now.Add(interval)
	return domain.AgentStateUpdate{
		LastRunAt: &now,
		NextRunAt: &next,
	}
}

// RunInterrupted undoes StartRun for a run that stopped before it did any work,
// so the agent is due again on the next cycle. prevLast and prevNext are the
// stamps the agent had before StartRun.
func RunInterrupted(prevLast, prevNext *time.Time) domain.AgentStateUpdate {
	if prevLast == nil || prevNext == nil {
		return domain.AgentStateUpdate{ClearRunStamps: true}
	}
	last, next := *prevLast, *prevNext
	return domain.AgentStateUpdate{LastRunAt: &last, NextRunAt: &next}
}

// RunSucceeded clears the error budget. A run that produced alerts marks the
// agent triggered. Paused agents stay paused.
func RunSucceeded(a *domain.Agent, alerts int) domain.AgentStateUpdate {
	zero := 0
	u := domain.AgentStateUpdate{
		ErrorCount:     &zero,
		ClearLastError: true,
	}

	var status domain.AgentStatus
	switch {
	case a.Status == domain.AgentStatusPaused:
		return u
	case alerts > 0:
		status = domain.AgentStatusTriggered
	case a.Status == domain.AgentStatusError, a.Status == domain.AgentStatusTriggered:
		status = domain.AgentStatusActive
	default:
		return u
	}
	if status != a.Status {
		u.Status = &status
	}
	return u
}

// RunFailed spends one unit of the error budget. Reaching the ceiling moves the
// agent to error, which removes it from selection until reset.
func RunFailed(a *domain.Agent, cause error) domain.AgentStateUpdate {
	count := a.ErrorCount + 1
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	u := domain.AgentStateUpdate{
		ErrorCount: &count,
		LastError:  &msg,
	}
	if a.MaxRetries > 0 && count >= a.MaxRetries && a.Status != domain.AgentStatusError {
		status := domain.AgentStatusError
		u.Status = &status
	}
	return u
}

func Pause(a *domain.Agent) (domain.AgentStateUpdate, error) {
	switch a.Status {
	case domain.AgentStatusPaused:
		return domain.AgentStateUpdate{}, nil
	case domain.AgentStatusActive, domain.AgentStatusTriggered:
		status := domain.AgentStatusPaused
		return domain.AgentStateUpdate{Status: &status}, nil
	}
	return domain.AgentStateUpdate{}, fmt.Errorf("%w: cannot pause agent in %s state", ErrInvalidTransition, a.Status)
}

// Resume returns a paused or triggered agent to the scheduling pool. Agents in
// error must be reset instead.
func Resume(a *domain.Agent) (domain.AgentStateUpdate, error) {
	switch a.Status {
	case domain.AgentStatusActive:
		return domain.AgentStateUpdate{}, nil
	case domain.AgentStatusPaused, domain.AgentStatusTriggered:
		status := domain.AgentStatusActive
		return domain.AgentStateUpdate{Status: &status}, nil
	}
	return domain.AgentStateUpdate{}, fmt.Errorf("%w: cannot resume agent in %s state, reset it", ErrInvalidTransition, a.Status)
}

// Reset clears the error budget and reactivates the agent from any state.
func Reset(a *domain.Agent) domain.AgentStateUpdate {
	zero := 0
	status := domain.AgentStatusActive
	return domain.AgentStateUpdate{
		Status:         &status,
		ErrorCount:     &zero,
		ClearLastError: true,
	}
}
