package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const walletMission = "Alert me if wallet 0x742d35cc6bf8e1d6d8aec8967c96e5e5e2dbdcf5 sends more than 5 ETH"

func TestAgentService_Deploy(t *testing.T) {
	agents := newMemAgentStore()
	compiler := &MockPlanCompiler{}
	plan := walletPlan(outflowOver(5))
	compiler.On("CompilePlan", mock.Anything, walletMission).Return(&plan, nil)

	s := NewAgentService(agents, &MockAlertStore{}, compiler)
	a, err := s.Deploy(context.Background(), DeployRequest{MissionPrompt: "  " + walletMission + " ", Recipient: "12345"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, domain.AgentStatusActive, a.Status)
	assert.Equal(t, domain.DefaultScheduleInterval, a.PollInterval)
	assert.Equal(t, domain.DefaultMaxRetries, a.MaxRetries)
	assert.Equal(t, "0x742d35cc... wallet monitor", a.Name)
	assert.Nil(t, a.LastRunAt)
	assert.Nil(t, a.NextRunAt)
	assert.Zero(t, a.ErrorCount)

	stored, err := agents.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, walletMission, stored.MissionPrompt)
	compiler.AssertExpectations(t)
}

func TestAgentService_DeployDefaults(t *testing.T) {
	compiler := &MockPlanCompiler{}
	plan := walletPlan(outflowOver(5))
	compiler.On("CompilePlan", mock.Anything, mock.Anything).Return(&plan, nil)

	s := NewAgentService(newMemAgentStore(), &MockAlertStore{}, compiler)
	s.SetDefaults(10*time.Minute, 5)

	a, err := s.Deploy(context.Background(), DeployRequest{Name: "treasury", MissionPrompt: walletMission})
	require.NoError(t, err)
	assert.Equal(t, "treasury", a.Name)
	assert.Equal(t, 10*time.Minute, a.PollInterval)
	assert.Equal(t, 5, a.MaxRetries)

	a, err = s.Deploy(context.Background(), DeployRequest{MissionPrompt: walletMission, ScheduleInterval: 2 * time.Minute, MaxRetries: 1})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, a.PollInterval)
	assert.Equal(t, 1, a.MaxRetries)
}

func TestAgentService_DeployValidation(t *testing.T) {
	tests := []struct {
		name string
		req  DeployRequest
		want error
	}{
		{"mission too short", DeployRequest{MissionPrompt: "   short   "}, ErrMissionLength},
		{"mission too long", DeployRequest{MissionPrompt: strings.Repeat("x", 1001)}, ErrMissionLength},
		{"name too long", DeployRequest{MissionPrompt: walletMission, Name: strings.Repeat("n", 101)}, ErrNameTooLong},
		{"interval too short", DeployRequest{MissionPrompt: walletMission, ScheduleInterval: 30 * time.Second}, ErrIntervalOutOfRange},
		{"interval too long", DeployRequest{MissionPrompt: walletMission, ScheduleInterval: 2 * time.Hour}, ErrIntervalOutOfRange},
		{"retries too high", DeployRequest{MissionPrompt: walletMission, MaxRetries: 11}, ErrMaxRetriesOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiler := &MockPlanCompiler{}
			agents := newMemAgentStore()
			s := NewAgentService(agents, &MockAlertStore{}, compiler)

			_, err := s.Deploy(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			compiler.AssertNotCalled(t, "CompilePlan", mock.Anything, mock.Anything)
			assert.Empty(t, agents.agents)
		})
	}
}

func TestAgentService_DeployPlanError(t *testing.T) {
	compiler := &MockPlanCompiler{}
	compiler.On("CompilePlan", mock.Anything, mock.Anything).Return(nil, &domain.PlanError{Reason: "unsupported chain \"tron\""})

	agents := newMemAgentStore()
	s := NewAgentService(agents, &MockAlertStore{}, compiler)
	_, err := s.Deploy(context.Background(), DeployRequest{MissionPrompt: walletMission})

	var pe *domain.PlanError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "tron")
	assert.Empty(t, agents.agents, "rejected plans are never stored")
}

func TestAgentService_DeployCompilerFailure(t *testing.T) {
	compiler := &MockPlanCompiler{}
	compiler.On("CompilePlan", mock.Anything, mock.Anything).Return(nil, errors.New("503 overloaded"))

	s := NewAgentService(newMemAgentStore(), &MockAlertStore{}, compiler)
	_, err := s.Deploy(context.Background(), DeployRequest{MissionPrompt: walletMission})
	require.Error(t, err)
	assert.False(t, domain.IsPlanError(err))

	s = NewAgentService(newMemAgentStore(), &MockAlertStore{}, nil)
	_, err = s.Deploy(context.Background(), DeployRequest{MissionPrompt: walletMission})
	assert.ErrorIs(t, err, ErrCompilerUnavailable)
}

func TestAgentService_Transitions(t *testing.T) {
	agent := newWalletAgent("0xabc", outflowOver(5))
	agents := newMemAgentStore(agent)
	s := NewAgentService(agents, &MockAlertStore{}, nil)
	ctx := context.Background()

	a, err := s.Pause(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusPaused, a.Status)

	a, err = s.Resume(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusActive, a.Status)

	agents.agents[agent.ID].Status = domain.AgentStatusError
	agents.agents[agent.ID].ErrorCount = 3
	msg := "fetch failed"
	agents.agents[agent.ID].LastError = &msg

	_, err = s.Resume(ctx, agent.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Pause(ctx, agent.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	a, err = s.Reset(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusActive, a.Status)
	assert.Zero(t, a.ErrorCount)
	assert.Nil(t, a.LastError)

	stored, _ := agents.GetByID(ctx, agent.ID)
	assert.Zero(t, stored.ErrorCount)
	assert.Nil(t, stored.LastError)

	_, err = s.Pause(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestAgentService_ListAlerts(t *testing.T) {
	agent := newWalletAgent("0xabc", outflowOver(5))
	alerts := &MockAlertStore{}
	alerts.On("ListByAgent", mock.Anything, agent.ID, maxListLimit).
		Return([]domain.AlertRecord{{ID: uuid.New(), AgentID: agent.ID}}, nil)

	s := NewAgentService(newMemAgentStore(agent), alerts, nil)

	got, err := s.ListAlerts(context.Background(), agent.ID, 10_000)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = s.ListAlerts(context.Background(), uuid.New(), 10)
	assert.ErrorIs(t, err, ErrAgentNotFound)
	alerts.AssertExpectations(t)
}
