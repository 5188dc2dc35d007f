package service

import (
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRun_StampsNextRun(t *testing.T) {
	a := &domain.Agent{PollInterval: 10 * time.Minute}
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	u := StartRun(a, now)
	require.NotNil(t, u.LastRunAt)
	require.NotNil(t, u.NextRunAt)
	assert.Equal(t, now, *u.LastRunAt)
	assert.Equal(t, now.Add(10*time.Minute), *u.NextRunAt)
	assert.Nil(t, u.Status)

	u = StartRun(&domain.Agent{}, now)
	assert.Equal(t, now.Add(domain.DefaultScheduleInterval), *u.NextRunAt)
}

func TestRunInterrupted_RestoresStamps(t *testing.T) {
	last := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	next := last.Add(5 * time.Minute)

	a := &domain.Agent{PollInterval: 5 * time.Minute}
	StartRun(a, next).Apply(a)
	RunInterrupted(&last, &next).Apply(a)
	require.NotNil(t, a.NextRunAt)
	assert.Equal(t, last, *a.LastRunAt)
	assert.Equal(t, next, *a.NextRunAt)

	u := RunInterrupted(nil, nil)
	assert.True(t, u.ClearRunStamps)
	u.Apply(a)
	assert.Nil(t, a.LastRunAt)
	assert.Nil(t, a.NextRunAt)
}

func TestRunSucceeded(t *testing.T) {
	tests := []struct {
		name   string
		status domain.AgentStatus
		alerts int
		want   domain.AgentStatus
	}{
		{"active without alerts", domain.AgentStatusActive, 0, domain.AgentStatusActive},
		{"active with alerts", domain.AgentStatusActive, 2, domain.AgentStatusTriggered},
		{"paused with alerts", domain.AgentStatusPaused, 1, domain.AgentStatusPaused},
		{"error recovers", domain.AgentStatusError, 0, domain.AgentStatusActive},
		{"error with alerts", domain.AgentStatusError, 1, domain.AgentStatusTriggered},
		{"triggered settles", domain.AgentStatusTriggered, 0, domain.AgentStatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := "previous failure"
			a := &domain.Agent{Status: tt.status, ErrorCount: 2, MaxRetries: 3, LastError: &msg}
			RunSucceeded(a, tt.alerts).Apply(a)
			assert.Equal(t, tt.want, a.Status)
			assert.Equal(t, 0, a.ErrorCount)
			assert.Nil(t, a.LastError)
		})
	}
}

func TestRunFailed_ReachesCeiling(t *testing.T) {
	a := &domain.Agent{Status: domain.AgentStatusActive, MaxRetries: 3}
	cause := errors.New("upstream 503")

	for i := 1; i <= 2; i++ {
		RunFailed(a, cause).Apply(a)
		assert.Equal(t, i, a.ErrorCount)
		assert.Equal(t, domain.AgentStatusActive, a.Status)
	}

	RunFailed(a, cause).Apply(a)
	assert.Equal(t, 3, a.ErrorCount)
	assert.Equal(t, domain.AgentStatusError, a.Status)
	require.NotNil(t, a.LastError)
	assert.Equal(t, "upstream 503", *a.LastError)
}

func TestPauseResume(t *testing.T) {
	a := &domain.Agent{Status: domain.AgentStatusActive}

	u, err := Pause(a)
	require.NoError(t, err)
	u.Apply(a)
	assert.Equal(t, domain.AgentStatusPaused, a.Status)

	u, err = Pause(a)
	require.NoError(t, err)
	assert.True(t, u.IsEmpty())

	u, err = Resume(a)
	require.NoError(t, err)
	u.Apply(a)
	assert.Equal(t, domain.AgentStatusActive, a.Status)

	a.Status = domain.AgentStatusError
	_, err = Pause(a)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Resume(a)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReset(t *testing.T) {
	msg := "boom"
	a := &domain.Agent{Status: domain.AgentStatusError, ErrorCount: 3, MaxRetries: 3, LastError: &msg}
	Reset(a).Apply(a)

	assert.Equal(t, domain.AgentStatusActive, a.Status)
	assert.Equal(t, 0, a.ErrorCount)
	assert.Nil(t, a.LastError)
	assert.True(t, a.IsDue(time.Now()))
}
