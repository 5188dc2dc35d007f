package notifier

import (
	"context"
	"sync/atomic"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"go.uber.org/zap"
)

// Log writes alerts to the logger. It is used when no bot token is configured.
type Log struct {
	logger *zap.Logger
	sent   atomic.Int64
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.With(zap.String("component", "alerts"))}
}

func (l *Log) Deliver(ctx context.Context, ev domain.AlertEvent, agent *domain.Agent, recipient string) domain.DeliveryResult {
	l.sent.Add(1)
	l.logger.Info("alert",
		zap.String("agent_id", agent.ID.String()),
		zap.String("agent", agent.Name),
		zap.String("recipient", recipient),
		zap.String("severity", string(ev.Severity)),
		zap.String("title", Title(agent, ev)),
		zap.Float64("observed", ev.Observed),
	)
	return domain.DeliveryResult{Success: true}
}

func (l *Log) Sent() int64 {
	return l.sent.Load()
}
