package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AlertStore struct {
	db *pgxpool.Pool
}

func NewAlertStore(db *pgxpool.Pool) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) Create(ctx context.Context, r *domain.AlertRecord) error {
	payloadJSON, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO alerts (
			agent_id, title, alert_type, severity, payload,
			sent, message_id, delivery_error, triggered_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		r.AgentID, r.Title, r.AlertType, string(r.Severity), payloadJSON,
		r.Sent, r.MessageID, r.DeliveryError, r.TriggeredAt, r.SentAt,
	).Scan(&r.ID)
	if err != nil {
		// 23503: the agent was deleted between the run and the write.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *AlertStore) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]domain.AlertRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, title, alert_type, severity, payload,
			sent, message_id, delivery_error, triggered_at, sent_at
		 FROM alerts
		 WHERE agent_id = $1
		 ORDER BY triggered_at DESC
		 LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AlertRecord
	for rows.Next() {
		var (
			r           domain.AlertRecord
			severity    string
			payloadJSON []byte
		)
		if err := rows.Scan(
			&r.ID, &r.AgentID, &r.Title, &r.AlertType, &severity, &payloadJSON,
			&r.Sent, &r.MessageID, &r.DeliveryError, &r.TriggeredAt, &r.SentAt,
		); err != nil {
			return nil, err
		}
		r.Severity = domain.Severity(severity)
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
