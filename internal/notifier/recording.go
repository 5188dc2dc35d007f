package notifier

import (
	"context"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const historyTimeout = 10 * time.Second

// Recording wraps a Notifier and stores every alert with its delivery outcome.
// A history write failure is logged and does not change the delivery result.
type Recording struct {
	next    domain.Notifier
	alerts  domain.AlertStore
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewRecording(next domain.Notifier, alerts domain.AlertStore, logger *zap.Logger) *Recording {
	return &Recording{
		next:    next,
		alerts:  alerts,
		logger:  logger.With(zap.String("component", "alert_history")),
		now:     time.Now,
		timeout: historyTimeout,
	}
}

func (r *Recording) Deliver(ctx context.Context, ev domain.AlertEvent, agent *domain.Agent, recipient string) domain.DeliveryResult {
	result := r.next.Deliver(ctx, ev, agent, recipient)

	rec := &domain.AlertRecord{
		ID:          uuid.New(),
		AgentID:     agent.ID,
		Title:       Title(agent, ev),
		AlertType:   AlertType(ev),
		Severity:    ev.Severity,
		Payload:     payload(ev),
		Sent:        result.Success,
		TriggeredAt: ev.ObservedAt,
	}
	if result.Success {
		sentAt := r.now().UTC()
		rec.SentAt = &sentAt
		if result.MessageID != "" {
			id := result.MessageID
			rec.MessageID = &id
		}
	} else if result.Error != nil {
		msg := result.Error.Error()
		rec.DeliveryError = &msg
	}

	// The write outlives a stop request but not a hung database.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.alerts.Create(storeCtx, rec); err != nil {
		r.logger.Error("failed to record alert",
			zap.String("agent_id", agent.ID.String()),
			zap.Error(err),
		)
	}
	return result
}

func payload(ev domain.AlertEvent) map[string]any {
	p := map[string]any{
		"condition": ev.Condition.String(),
		"mode":      string(ev.Mode),
		"observed":  ev.Observed,
		"current":   ev.Current,
	}
	if ev.Previous != nil {
		p["previous"] = *ev.Previous
	}
	if ev.Matched != "" {
		p["matched"] = ev.Matched
	}
	if len(ev.Details) > 0 {
		p["details"] = ev.Details
	}
	return p
}
