// Package notify sends operational notifications about poll cycles.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier announces the outcome of a poll cycle.
type Notifier interface {
	TickSummary(newEntries int, pushed bool)
}

// Noop is used when no notification channel is configured.
type Noop struct{}

// TickSummary does nothing.
func (Noop) TickSummary(int, bool) {}

// Telegram sends one-line tick summaries to a Telegram chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// TickSummary reports how many new urls a tick emitted and whether the batch
// reached the ingestion service. Send failures are logged, never propagated.
func (t *Telegram) TickSummary(newEntries int, pushed bool) {
	status := "delivered"
	if !pushed {
		status = "queued for retry"
	}
	text := fmt.Sprintf("phishwatch: %d new suspected urls, batch %s", newEntries, status)
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send telegram notification", "error", err)
	}
}
