package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type ActionType string

const (
	ActionWalletMonitor     ActionType = "wallet_monitor"
	ActionCollectionMonitor ActionType = "collection_monitor"
	ActionNFTMonitor        ActionType = "nft_monitor"
)

type TargetType string

const (
	TargetWallet     TargetType = "wallet"
	TargetCollection TargetType = "collection"
	TargetNFT        TargetType = "nft"
)

// TargetType returns the entity type an action monitors.
func (a ActionType) TargetType() (TargetType, bool) {
	switch a {
	case ActionWalletMonitor:
		return TargetWallet, true
	case ActionCollectionMonitor:
		return TargetCollection, true
	case ActionNFTMonitor:
		return TargetNFT, true
	}
	return "", false
}

type Chain string

const (
	ChainEthereum  Chain = "ethereum"
	ChainPolygon   Chain = "polygon"
	ChainAvalanche Chain = "avalanche"
	ChainBSC       Chain = "bsc"
	ChainLinea     Chain = "linea"
	ChainSolana    Chain = "solana"
)

// SupportedChains maps a chain name to the numeric id the data source expects.
var SupportedChains = map[Chain]int{
	ChainEthereum:  1,
	ChainPolygon:   137,
	ChainAvalanche: 43114,
	ChainBSC:       57,
	ChainLinea:     59144,
	ChainSolana:    900,
}

func (c Chain) ID() (int, bool) {
	id, ok := SupportedChains[c]
	return id, ok
}

type Target struct {
	Type           TargetType `json:"type"`
	Address        string     `json:"address"`
	TokenID        string     `json:"token_id,omitempty"`
	CollectionName string     `json:"collection_name,omitempty"`
	Chain          Chain      `json:"chain"`
}

// Key identifies the target in the snapshot store. Addresses are case-insensitive.
func (t Target) Key() string {
	key := fmt.Sprintf("%s:%s:%s", t.Chain, t.Type, strings.ToLower(t.Address))
	if t.TokenID != "" {
		key += ":" + t.TokenID
	}
	return key
}

func (t Target) Label() string {
	if t.CollectionName != "" {
		if t.TokenID != "" {
			return fmt.Sprintf("%s #%s", t.CollectionName, t.TokenID)
		}
		return t.CollectionName
	}
	addr := t.Address
	if len(addr) > 10 {
		addr = addr[:10] + "..."
	}
	if t.TokenID != "" {
		return fmt.Sprintf("%s #%s", addr, t.TokenID)
	}
	return addr
}

// ParamIncludeWashtrade asks the fetcher for a collection's washtrade figures.
const ParamIncludeWashtrade = "include_washtrade"

// Plan is the structured monitoring plan an agent executes every cycle.
// A Plan is only constructed through CompilePlan and is immutable afterwards.
type Plan struct {
	ActionType ActionType     `json:"action_type"`
	Target     Target         `json:"target"`
	Conditions []Condition    `json:"conditions"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (p Plan) BoolParam(name string) bool {
	switch v := p.Parameters[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// setParam copies Parameters before writing so the caller's map is left alone.
func (p *Plan) setParam(name string, value any) {
	params := make(map[string]any, len(p.Parameters)+1)
	for k, v := range p.Parameters {
		params[k] = v
	}
	params[name] = value
	p.Parameters = params
}

// RawPlan is the loosely typed plan produced by a plan compiler before validation.
type RawPlan struct {
	ActionType string         `json:"action_type"`
	Target     RawTarget      `json:"target"`
	Conditions []RawCondition `json:"conditions"`
	Blockchain string         `json:"blockchain"`
	Parameters map[string]any `json:"parameters"`
}

type RawTarget struct {
	Type           string `json:"type"`
	Address        string `json:"address"`
	TokenID        string `json:"token_id"`
	CollectionName string `json:"collection_name"`
}

type RawCondition struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
	Timeframe string `json:"timeframe"`
}

// CompilePlan validates a raw plan and converts it to its typed form.
// Every rejection is a *PlanError.
func CompilePlan(raw RawPlan) (*Plan, error) {
	action := ActionType(strings.TrimSpace(raw.ActionType))
	targetType, ok := action.TargetType()
	if !ok {
		return nil, planErrorf("invalid action_type: %q", raw.ActionType)
	}

	chain := Chain(strings.ToLower(strings.TrimSpace(raw.Blockchain)))
	if _, ok := SupportedChains[chain]; !ok {
		return nil, planErrorf("unsupported blockchain: %q", raw.Blockchain)
	}

	if raw.Target.Type != "" && TargetType(raw.Target.Type) != targetType {
		return nil, planErrorf("target type %q does not match action %q", raw.Target.Type, action)
	}
	address := strings.TrimSpace(raw.Target.Address)
	if address == "" {
		return nil, planErrorf("target address is required")
	}
	if targetType == TargetNFT && strings.TrimSpace(raw.Target.TokenID) == "" {
		return nil, planErrorf("nft target requires token_id")
	}

	if len(raw.Conditions) == 0 {
		return nil, planErrorf("conditions must be a non-empty list")
	}

	plan := &Plan{
		ActionType: action,
		Target: Target{
			Type:           targetType,
			Address:        address,
			TokenID:        strings.TrimSpace(raw.Target.TokenID),
			CollectionName: strings.TrimSpace(raw.Target.CollectionName),
			Chain:          chain,
		},
		Conditions: make([]Condition, 0, len(raw.Conditions)),
		Parameters: raw.Parameters,
	}

	for i, rc := range raw.Conditions {
		c, err := ParseCondition(rc, targetType)
		if err != nil {
			return nil, planErrorf("condition %d: %v", i, err)
		}
		plan.Conditions = append(plan.Conditions, c)

		if shape, _ := LookupMetric(targetType, c.Parameter); shape.FetchOption != "" && !plan.BoolParam(shape.FetchOption) {
			plan.setParam(shape.FetchOption, true)
		}
	}

	return plan, nil
}
