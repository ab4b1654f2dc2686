// Package notify pushes alert notifications to external channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/walletpulse/engine/internal/registry"
	"github.com/walletpulse/engine/internal/store"
)

// TelegramNotifier forwards alert notifications to Telegram chats. An
// unconfigured notifier silently drops everything, so wiring it in is
// always safe.
type TelegramNotifier struct {
	botToken string
	chatIDs  []string
	bot      *bot.Bot
	dispose  registry.Disposer
}

// NewTelegramNotifier creates a notifier. An empty token leaves it
// unconfigured.
func NewTelegramNotifier(botToken string, chatIDs []string) *TelegramNotifier {
	t := &TelegramNotifier{
		botToken: botToken,
		chatIDs:  chatIDs,
	}
	t.initBot()
	return t
}

func (t *TelegramNotifier) initBot() {
	if t.botToken == "" {
		t.bot = nil
		return
	}

	b, err := bot.New(t.botToken, bot.WithSkipGetMe())
	if err != nil {
		slog.Error("telegram_bot_init_failed", "error", err)
		t.bot = nil
		return
	}
	t.bot = b
}

// IsConfigured reports whether the notifier can actually send.
func (t *TelegramNotifier) IsConfigured() bool {
	return t.botToken != "" && len(t.chatIDs) > 0 && t.bot != nil
}

// Attach subscribes the notifier to the bus's alert feed.
func (t *TelegramNotifier) Attach(ctx context.Context, bus *registry.Bus) {
	t.dispose = bus.SubscribeAlerts(func(alert store.AlertNotification) {
		if err := t.Send(ctx, alert); err != nil {
			slog.Warn("telegram_send_failed", "alert", alert.ID, "error", err)
		}
	})
}

// Detach unsubscribes from the bus.
func (t *TelegramNotifier) Detach() {
	if t.dispose != nil {
		t.dispose()
		t.dispose = nil
	}
}

// Send delivers one alert to all configured chats. Unconfigured notifiers
// skip silently.
func (t *TelegramNotifier) Send(ctx context.Context, alert store.AlertNotification) error {
	if !t.IsConfigured() {
		return nil
	}

	text := fmt.Sprintf("<b>%s</b>\n%s", alert.Title, alert.Message)

	var lastErr error
	sent := 0
	for _, chatID := range t.chatIDs {
		if chatID == "" {
			continue
		}

		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		}

		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			slog.Warn("telegram_chat_send_failed", "chat_id", chatID, "error", err)
			lastErr = err
		} else {
			sent++
		}
	}

	if sent == 0 && lastErr != nil {
		return fmt.Errorf("telegram delivery failed for all chats: %w", lastErr)
	}
	return nil
}
