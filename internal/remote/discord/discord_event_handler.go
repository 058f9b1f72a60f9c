package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/perchbot/perch/internal/event"
)

// Handle publishes lifecycle events to the configured channel. Registered
// on the process event listener.
func (b *Bot) Handle(ctx context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.SessionSpawnedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** joined the server", evt.Identity()))
	case event.KickedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** was kicked: %s", evt.Identity(), evt.Reason))
	case event.AuthResultEvent:
		if evt.Success {
			return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** authenticated", evt.Identity()))
		}
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** auth failed: %s", evt.Identity(), evt.Reason))
	case event.ReconnectScheduledEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** reconnecting in %s", evt.Identity(), evt.Delay.Round(time.Millisecond)))
	case event.GoalReachedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** arrived at the target location", evt.Identity()))
	case event.TunnelEvent:
		return b.sendEventMessage(ctx, evt.Message())
	}
	return nil
}

func (b *Bot) sendEventMessage(ctx context.Context, message string) error {
	if b.useWebhook {
		return b.webhookClient.Send(ctx, message)
	}
	_, err := b.discordSession.ChannelMessageSend(b.channelID, message)
	return err
}
