package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walletRawPlan() RawPlan {
	return RawPlan{
		ActionType: "wallet_monitor",
		Target: RawTarget{
			Type:    "wallet",
			Address: "0x742d35Cc6bf8e1d6D8aEc8967c96e5e5E2DbDcf5",
		},
		Conditions: []RawCondition{
			{Type: "threshold", Parameter: "outgoing_transfer", Operator: "gt", Value: "5", Timeframe: "24h"},
		},
		Blockchain: "ethereum",
		Parameters: map[string]any{"currency": "eth"},
	}
}

func TestCompilePlan_Wallet(t *testing.T) {
	plan, err := CompilePlan(walletRawPlan())
	require.NoError(t, err)

	assert.Equal(t, ActionWalletMonitor, plan.ActionType)
	assert.Equal(t, TargetWallet, plan.Target.Type)
	assert.Equal(t, ChainEthereum, plan.Target.Chain)
	require.Len(t, plan.Conditions, 1)

	c := plan.Conditions[0]
	assert.Equal(t, ConditionThreshold, c.Kind)
	assert.Equal(t, OpGreaterThan, c.Operator)
	assert.Equal(t, 5.0, c.Threshold)
	assert.True(t, c.UsesDelta(), "outgoing_transfer is cumulative")

	d, ok := c.WindowDuration()
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)
}

func TestCompilePlan_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *RawPlan)
	}{
		{"unknown action", func(p *RawPlan) { p.ActionType = "transaction_monitor" }},
		{"unsupported chain", func(p *RawPlan) { p.Blockchain = "dogecoin" }},
		{"missing address", func(p *RawPlan) { p.Target.Address = "" }},
		{"mismatched target type", func(p *RawPlan) { p.Target.Type = "collection" }},
		{"no conditions", func(p *RawPlan) { p.Conditions = nil }},
		{"unknown kind", func(p *RawPlan) { p.Conditions[0].Type = "pattern" }},
		{"unknown operator", func(p *RawPlan) { p.Conditions[0].Operator = "gte" }},
		{"non numeric value", func(p *RawPlan) { p.Conditions[0].Value = "five" }},
		{"unknown parameter", func(p *RawPlan) { p.Conditions[0].Parameter = "floor_price" }},
		{"bad timeframe", func(p *RawPlan) { p.Conditions[0].Timeframe = "2w" }},
		{"contains on numeric metric", func(p *RawPlan) {
			p.Conditions[0] = RawCondition{Type: "detection", Parameter: "balance", Operator: "contains", Value: "0xabc"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := walletRawPlan()
			tt.mutate(&raw)
			_, err := CompilePlan(raw)
			require.Error(t, err)
			assert.True(t, IsPlanError(err), "expected *PlanError, got %T", err)
		})
	}
}

func TestCompilePlan_NFTRequiresToken(t *testing.T) {
	raw := RawPlan{
		ActionType: "nft_monitor",
		Target:     RawTarget{Address: "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"},
		Conditions: []RawCondition{{Type: "detection", Parameter: "buyers", Operator: "contains", Value: "0xabc"}},
		Blockchain: "ethereum",
	}
	_, err := CompilePlan(raw)
	assert.True(t, IsPlanError(err))

	raw.Target.TokenID = "42"
	plan, err := CompilePlan(raw)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", plan.Conditions[0].Match)
	assert.False(t, plan.Conditions[0].UsesDelta())
}

func TestCompilePlan_NumericOperatorOnSetMetric(t *testing.T) {
	raw := RawPlan{
		ActionType: "nft_monitor",
		Target:     RawTarget{Address: "0xabc", TokenID: "7"},
		Conditions: []RawCondition{{Type: "threshold", Parameter: "buyers", Operator: "gt", Value: "3"}},
		Blockchain: "ethereum",
	}
	_, err := CompilePlan(raw)
	require.Error(t, err)
	assert.True(t, IsPlanError(err))
}

func TestCompilePlan_WashtradeEnablesFetchOption(t *testing.T) {
	params := map[string]any{"currency": "usd"}
	raw := RawPlan{
		ActionType: "collection_monitor",
		Target:     RawTarget{Address: "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"},
		Conditions: []RawCondition{{Type: "detection", Parameter: "washtrade_activity", Operator: "gt", Value: "0.1"}},
		Blockchain: "ethereum",
		Parameters: params,
	}
	plan, err := CompilePlan(raw)
	require.NoError(t, err)
	assert.True(t, plan.BoolParam(ParamIncludeWashtrade))
	assert.Equal(t, "usd", plan.Parameters["currency"])
	assert.NotContains(t, params, ParamIncludeWashtrade)

	raw.Conditions[0] = RawCondition{Type: "threshold", Parameter: "volume", Operator: "gt", Value: "100"}
	plan, err = CompilePlan(raw)
	require.NoError(t, err)
	assert.False(t, plan.BoolParam(ParamIncludeWashtrade))
}

func TestTargetKey_CaseInsensitive(t *testing.T) {
	a := Target{Type: TargetWallet, Address: "0xABCdef", Chain: ChainEthereum}
	b := Target{Type: TargetWallet, Address: "0xabcDEF", Chain: ChainEthereum}
	assert.Equal(t, a.Key(), b.Key())

	nft := Target{Type: TargetNFT, Address: "0xabc", TokenID: "7", Chain: ChainPolygon}
	assert.Equal(t, "polygon:nft:0xabc:7", nft.Key())
}

func TestAgentIsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		agent Agent
		want  bool
	}{
		{"never run", Agent{Status: AgentStatusActive, MaxRetries: 3}, true},
		{"next run passed", Agent{Status: AgentStatusActive, MaxRetries: 3, LastRunAt: &past, NextRunAt: &past}, true},
		{"next run exactly now", Agent{Status: AgentStatusActive, MaxRetries: 3, LastRunAt: &past, NextRunAt: &now}, true},
		{"next run in future", Agent{Status: AgentStatusActive, MaxRetries: 3, LastRunAt: &past, NextRunAt: &future}, false},
		{"paused", Agent{Status: AgentStatusPaused, MaxRetries: 3}, false},
		{"error status", Agent{Status: AgentStatusError, MaxRetries: 3}, false},
		{"triggered", Agent{Status: AgentStatusTriggered, MaxRetries: 3}, false},
		{"retry ceiling reached", Agent{Status: AgentStatusActive, MaxRetries: 3, ErrorCount: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.agent.IsDue(now))
		})
	}
}

func TestAgentStateUpdate_Apply(t *testing.T) {
	msg := "boom"
	a := Agent{Status: AgentStatusActive, LastError: &msg, ErrorCount: 2}

	status := AgentStatusTriggered
	zero := 0
	AgentStateUpdate{Status: &status, ErrorCount: &zero, ClearLastError: true}.Apply(&a)

	assert.Equal(t, AgentStatusTriggered, a.Status)
	assert.Equal(t, 0, a.ErrorCount)
	assert.Nil(t, a.LastError)
	assert.True(t, AgentStateUpdate{}.IsEmpty())
}
