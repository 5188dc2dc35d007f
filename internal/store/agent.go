package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const agentColumns = `id, name, mission_prompt, recipient, plan, status, poll_interval_seconds,
	last_run_at, next_run_at, error_count, max_retries, last_error, created_at, updated_at`

type AgentStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAgentStore(db *pgxpool.Pool, logger *zap.Logger) *AgentStore {
	return &AgentStore{db: db, logger: logger.With(zap.String("component", "agent_store"))}
}

// CorruptAgentError reports a stored agent whose plan no longer decodes or validates.
type CorruptAgentError struct {
	ID  uuid.UUID
	Err error
}

func (e *CorruptAgentError) Error() string {
	return fmt.Sprintf("agent %s: %v", e.ID, e.Err)
}

func (e *CorruptAgentError) Unwrap() error { return e.Err }

func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	planJSON, err := json.Marshal(a.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if a.Status == "" {
		a.Status = domain.AgentStatusActive
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO agents (name, mission_prompt, recipient, plan, status, poll_interval_seconds, max_retries)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		a.Name, a.MissionPrompt, a.Recipient, planJSON, a.Status,
		int(a.PollInterval/time.Second), a.MaxRetries,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *AgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AgentStore) List(ctx context.Context, opts domain.ListAgentsOpts) ([]domain.Agent, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Recipient != "" {
		args = append(args, opts.Recipient)
		where = append(where, fmt.Sprintf("recipient = $%d", len(args)))
	}

	query := `SELECT ` + agentColumns + ` FROM agents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, opts.Limit, opts.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

// LoadDueAgents is a single read of every schedulable agent. The predicate
// matches domain.Agent.IsDue. Agents with a corrupt plan are left out of the
// result and moved to error so they stop being selected.
func (s *AgentStore) LoadDueAgents(ctx context.Context, now time.Time) ([]domain.Agent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+agentColumns+`
		 FROM agents
		 WHERE status = 'active'
		   AND error_count < max_retries
		   AND (last_run_at IS NULL OR next_run_at IS NULL OR next_run_at <= $1)
		 ORDER BY next_run_at NULLS FIRST, created_at`,
		now,
	)
	if err != nil {
		return nil, err
	}
	agents, corrupt, err := collectDueAgents(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, c := range corrupt {
		s.logger.Error("skipping agent with corrupt plan",
			zap.String("agent_id", c.ID.String()),
			zap.Error(c.Err))
		if err := s.UpdateAgentState(ctx, c.ID, corruptAgentUpdate(c)); err != nil {
			s.logger.Error("failed to mark corrupt agent", zap.String("agent_id", c.ID.String()), zap.Error(err))
		}
	}
	return agents, nil
}

func corruptAgentUpdate(c *CorruptAgentError) domain.AgentStateUpdate {
	status := domain.AgentStatusError
	msg := "corrupt plan: " + c.Err.Error()
	return domain.AgentStateUpdate{Status: &status, LastError: &msg}
}

// UpdateAgentState writes only the fields set on u.
func (s *AgentStore) UpdateAgentState(ctx context.Context, id uuid.UUID, u domain.AgentStateUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Status != nil {
		add("status", string(*u.Status))
	}
	switch {
	case u.ClearRunStamps:
		sets = append(sets, "last_run_at = NULL", "next_run_at = NULL")
	default:
		if u.LastRunAt != nil {
			add("last_run_at", *u.LastRunAt)
		}
		if u.NextRunAt != nil {
			add("next_run_at", *u.NextRunAt)
		}
	}
	if u.ErrorCount != nil {
		add("error_count", *u.ErrorCount)
	}
	switch {
	case u.LastError != nil:
		add("last_error", *u.LastError)
	case u.ClearLastError:
		sets = append(sets, "last_error = NULL")
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE agents SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	a := &domain.Agent{}
	var (
		planJSON []byte
		status   string
		interval int
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.MissionPrompt, &a.Recipient, &planJSON, &status, &interval,
		&a.LastRunAt, &a.NextRunAt, &a.ErrorCount, &a.MaxRetries, &a.LastError, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.AgentStatus(status)
	a.PollInterval = time.Duration(interval) * time.Second
	if err := json.Unmarshal(planJSON, &a.Plan); err != nil {
		return nil, &CorruptAgentError{ID: a.ID, Err: fmt.Errorf("unmarshal plan: %w", err)}
	}
	for i, c := range a.Plan.Conditions {
		if err := c.Validate(); err != nil {
			return nil, &CorruptAgentError{ID: a.ID, Err: fmt.Errorf("condition %d: %w", i, err)}
		}
	}
	return a, nil
}

type agentRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collectDueAgents scans every row, setting aside agents whose plan is corrupt.
// Scan and iteration failures still abort.
func collectDueAgents(rows agentRows) ([]domain.Agent, []*CorruptAgentError, error) {
	var (
		agents  []domain.Agent
		corrupt []*CorruptAgentError
	)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			var ce *CorruptAgentError
			if errors.As(err, &ce) {
				corrupt = append(corrupt, ce)
				continue
			}
			return nil, nil, err
		}
		agents = append(agents, *a)
	}
	return agents, corrupt, rows.Err()
}

func collectAgents(rows pgx.Rows) ([]domain.Agent, error) {
	var agents []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}
