package llm

import (
	"context"
	"regexp"
	"strconv"
	"sync"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
)

var (
	addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)
	amountPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?i:eth|matic|avax|bnb|sol)`)
)

// MockClient is a configurable plan compiler for tests and local runs.
// When Response is nil it builds a wallet outflow plan from the first
// address and amount in the mission.
type MockClient struct {
	Response *domain.RawPlan
	Error    error

	mu    sync.Mutex
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) CompilePlan(ctx context.Context, mission string) (*domain.Plan, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, mission)
	m.mu.Unlock()

	if m.Error != nil {
		return nil, m.Error
	}
	if m.Response != nil {
		return domain.CompilePlan(*m.Response)
	}

	address := addressPattern.FindString(mission)
	if address == "" {
		return nil, &domain.PlanError{Reason: "mission names no wallet address"}
	}
	threshold := "1"
	if match := amountPattern.FindStringSubmatch(mission); match != nil {
		if _, err := strconv.ParseFloat(match[1], 64); err == nil {
			threshold = match[1]
		}
	}

	return domain.CompilePlan(domain.RawPlan{
		ActionType: string(domain.ActionWalletMonitor),
		Target:     domain.RawTarget{Type: string(domain.TargetWallet), Address: address},
		Conditions: []domain.RawCondition{{
			Type:      string(domain.ConditionThreshold),
			Parameter: "outgoing_transfer",
			Operator:  string(domain.OpGreaterThan),
			Value:     threshold,
			Timeframe: "24h",
		}},
		Blockchain: string(domain.ChainEthereum),
		Parameters: map[string]any{"currency": "eth"},
	})
}
