package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

const (
	channelTelegram = "telegram"
	sendTimeout     = 15 * time.Second
)

var ErrNoRecipient = errors.New("no telegram chat id for alert")

// RateLimiter gates calls to a named external service.
type RateLimiter interface {
	Acquire(ctx context.Context, service string) error
}

type TelegramConfig struct {
	Token string
	// DefaultChatID receives alerts for agents without a recipient.
	DefaultChatID string
	// APIURL overrides the Bot API endpoint.
	APIURL string
}

// Telegram sends alerts through the Bot API. It only sends; it never polls
// for updates.
type Telegram struct {
	bot         *tele.Bot
	defaultChat string
	limiter     RateLimiter
	logger      *zap.Logger
}

func NewTelegram(cfg TelegramConfig, limiter RateLimiter, logger *zap.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: sendTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{
		bot:         bot,
		defaultChat: cfg.DefaultChatID,
		limiter:     limiter,
		logger:      logger.With(zap.String("component", "telegram")),
	}, nil
}

func (t *Telegram) Deliver(ctx context.Context, ev domain.AlertEvent, agent *domain.Agent, recipient string) domain.DeliveryResult {
	chatID, err := t.chatID(recipient)
	if err != nil {
		return failed(err)
	}

	if t.limiter != nil {
		if err := t.limiter.Acquire(ctx, channelTelegram); err != nil {
			return failed(err)
		}
	}

	msg, err := t.bot.Send(&tele.Chat{ID: chatID}, FormatMessage(ev, agent), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return failed(err)
	}

	t.logger.Debug("alert sent",
		zap.String("agent_id", agent.ID.String()),
		zap.Int64("chat_id", chatID),
		zap.Int("message_id", msg.ID),
	)
	return domain.DeliveryResult{Success: true, MessageID: strconv.Itoa(msg.ID)}
}

func (t *Telegram) chatID(recipient string) (int64, error) {
	r := strings.TrimSpace(recipient)
	if r == "" {
		r = t.defaultChat
	}
	if r == "" {
		return 0, ErrNoRecipient
	}
	id, err := strconv.ParseInt(r, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", r, err)
	}
	return id, nil
}

func failed(err error) domain.DeliveryResult {
	return domain.DeliveryResult{Error: &domain.DeliveryError{Channel: channelTelegram, Err: err}}
}
