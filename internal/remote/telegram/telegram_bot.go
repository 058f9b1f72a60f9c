package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/perchbot/perch/internal/bot"
	"github.com/perchbot/perch/internal/event"
)

const (
	maxRetries  = 3
	retryBaseMs = 2000
	retryGrowth = 2
)

// Bot mirrors session lifecycle events into a Telegram chat and answers a
// plain "status" message with the current counters.
type Bot struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	manager *bot.Manager
	stats   *bot.StatsHandler
	logger  *slog.Logger
}

// NewBot creates a Telegram bot with retry logic for transient network
// failures; the initial api.telegram.org call occasionally fails with TCP
// resets and should not be a fatal startup error.
func NewBot(token string, chatID int64, manager *bot.Manager, stats *bot.StatsHandler, logger *slog.Logger) (*Bot, error) {
	var api *tgbotapi.BotAPI
	var err error

	delay := time.Duration(retryBaseMs) * time.Millisecond
	for attempt := 1; attempt <= maxRetries; attempt++ {
		api, err = tgbotapi.NewBotAPI(token)
		if err == nil {
			break
		}
		if attempt < maxRetries {
			logger.Warn("Telegram API connection failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("retryIn", delay),
				slog.Any("error", err),
			)
			time.Sleep(delay)
			delay *= retryGrowth
		}
	}
	if err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", maxRetries, err)
	}

	return &Bot{bot: api, chatID: chatID, manager: manager, stats: stats, logger: logger}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 5
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			for range updates {
			}
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != b.chatID {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(update.Message.Text)) {
			case "status":
				b.send(b.statusText())
			case "restart":
				b.manager.Start()
				b.send("Restarting session.")
			case "stop":
				b.manager.Stop()
				b.send("Session stopped.")
			}
		}
	}
}

// Handle publishes lifecycle events to the chat. Registered on the process
// event listener.
func (b *Bot) Handle(_ context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.SessionSpawnedEvent:
		b.send(fmt.Sprintf("[%s] joined the server", evt.Identity()))
	case event.KickedEvent:
		b.send(fmt.Sprintf("[%s] was kicked: %s", evt.Identity(), evt.Reason))
	case event.AuthResultEvent:
		if !evt.Success {
			b.send(fmt.Sprintf("[%s] auth failed: %s", evt.Identity(), evt.Reason))
		}
	case event.ReconnectScheduledEvent:
		b.send(fmt.Sprintf("[%s] reconnecting in %s", evt.Identity(), evt.Delay.Round(time.Millisecond)))
	case event.TunnelEvent:
		b.send(evt.Message())
	}
	return nil
}

func (b *Bot) statusText() string {
	st := b.stats.Snapshot()
	return fmt.Sprintf("%s — phase: %s\nconnects: %d, reconnects: %d, kicks: %d",
		st.Identity, b.manager.Phase(), st.Connects, st.Reconnects, st.Kicks)
}

func (b *Bot) send(text string) {
	if _, err := b.bot.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		b.logger.Error("Error sending Telegram message", slog.Any("error", err))
	}
}
