package discord

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/perchbot/perch/internal/bot"
	"github.com/perchbot/perch/internal/config"
)

// Bot mirrors session lifecycle events into a Discord channel and accepts a
// handful of admin commands. In webhook mode no gateway session is opened.
type Bot struct {
	discordSession *discordgo.Session
	channelID      string
	manager        *bot.Manager
	stats          *bot.StatsHandler
	useWebhook     bool
	webhookClient  *webhookClient
}

func NewBot(token, channelID string, manager *bot.Manager, stats *bot.StatsHandler, useWebhook bool, webhookURL string) (*Bot, error) {
	b := &Bot{
		channelID: channelID,
		manager:   manager,
		stats:     stats,
	}

	if useWebhook {
		if webhookURL == "" {
			return nil, fmt.Errorf("webhook URL is required when using webhook mode")
		}
		b.useWebhook = true
		b.webhookClient = newWebhookClient(webhookURL)
		return b, nil
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	b.discordSession = dg

	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	if b.useWebhook {
		<-ctx.Done()
		return nil
	}

	b.discordSession.AddHandler(b.onMessageCreated)
	b.discordSession.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	if err := b.discordSession.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	<-ctx.Done()

	return b.discordSession.Close()
}

func (b *Bot) onMessageCreated(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if !slices.Contains(config.Get().Discord.BotAdmins, m.Author.ID) {
		return
	}
	if !strings.HasPrefix(m.Content, "!") {
		return
	}

	prefix := strings.Split(m.Content, " ")[0]
	switch prefix {
	case "!status":
		b.handleStatusRequest(s, m)
	case "!restart":
		b.manager.Start()
		s.ChannelMessageSend(m.ChannelID, "Restarting session.")
	case "!stop":
		b.manager.Stop()
		s.ChannelMessageSend(m.ChannelID, "Session stopped. Use `!restart` to resume.")
	case "!help":
		s.ChannelMessageSend(m.ChannelID, "Commands: `!status`, `!restart`, `!stop`, `!help`")
	default:
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Unknown command: `%s`. Type `!help` for available commands.", prefix))
	}
}

func (b *Bot) handleStatusRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	st := b.stats.Snapshot()
	msg := fmt.Sprintf("**%s** — phase: %s\nconnects: %d, reconnects: %d, kicks: %d",
		st.Identity, b.manager.Phase(), st.Connects, st.Reconnects, st.Kicks)
	if st.LastKickReason != "" {
		msg += fmt.Sprintf("\nlast kick: %s", st.LastKickReason)
	}
	s.ChannelMessageSend(m.ChannelID, msg)
}
