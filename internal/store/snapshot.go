package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore keeps the most recent metrics snapshot per agent and target.
type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) LoadPrevious(ctx context.Context, agentID uuid.UUID, targetKey string) (*domain.MetricsSnapshot, error) {
	snap := &domain.MetricsSnapshot{AgentID: agentID, TargetKey: targetKey}
	var valuesJSON, setsJSON []byte

	err := s.db.QueryRow(ctx,
		`SELECT taken_at, metric_values, metric_sets
		 FROM metric_snapshots WHERE agent_id = $1 AND target_key = $2`,
		agentID, targetKey,
	).Scan(&snap.TakenAt, &valuesJSON, &setsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(valuesJSON, &snap.Values); err != nil {
		return nil, fmt.Errorf("unmarshal metric_values: %w", err)
	}
	if len(setsJSON) > 0 {
		if err := json.Unmarshal(setsJSON, &snap.Sets); err != nil {
			return nil, fmt.Errorf("unmarshal metric_sets: %w", err)
		}
	}
	return snap, nil
}

// Save overwrites the agent's stored snapshot for the target.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.MetricsSnapshot) error {
	if snap.AgentID == uuid.Nil {
		return errors.New("snapshot agent_id is required")
	}
	if snap.TargetKey == "" {
		return errors.New("snapshot target_key is required")
	}

	values := snap.Values
	if values == nil {
		values = map[string]float64{}
	}
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal metric_values: %w", err)
	}
	sets := snap.Sets
	if sets == nil {
		sets = map[string][]string{}
	}
	setsJSON, err := json.Marshal(sets)
	if err != nil {
		return fmt.Errorf("marshal metric_sets: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO metric_snapshots (agent_id, target_key, taken_at, metric_values, metric_sets)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (agent_id, target_key) DO UPDATE SET
			taken_at = EXCLUDED.taken_at,
			metric_values = EXCLUDED.metric_values,
			metric_sets = EXCLUDED.metric_sets,
			updated_at = NOW()`,
		snap.AgentID, snap.TargetKey, snap.TakenAt, valuesJSON, setsJSON,
	)
	return err
}
