package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/perchbot/perch/internal/event"
	"github.com/perchbot/perch/internal/mc"
)

// startBehaviors activates the configured behavior modules for a freshly
// spawned session. Each module is independent; all read only the static
// configuration. The context is cancelled at session teardown, which stops
// every timer before a successor session exists.
func (m *Manager) startBehaviors(ctx context.Context, identity string, s Session) {
	if m.cfg.IdlePosture.Enabled {
		m.startIdlePosture(s)
	}
	if m.cfg.ChatMessages.Enabled {
		m.logger.Info("Started chat-messages module")
		go m.runChatMessages(ctx, s)
	}
	if m.cfg.MoveToTarget.Enabled {
		go m.runMoveToTarget(ctx, identity, s)
	}
}

// startIdlePosture holds the jump flag (and optionally sneak) to defeat
// server idle-kick timers. The flags live for the duration of the session
// and are cleared implicitly when it closes.
func (m *Manager) startIdlePosture(s Session) {
	m.logger.Info("Started idle-posture module")
	if err := s.SetControlFlag(mc.ControlJump, true); err != nil {
		m.logger.Error("Error setting jump flag", slog.Any("error", err))
	}
	if m.cfg.IdlePosture.Sneak {
		if err := s.SetControlFlag(mc.ControlSneak, true); err != nil {
			m.logger.Error("Error setting sneak flag", slog.Any("error", err))
		}
	}
}

// runChatMessages either sends the configured messages once, in order, or
// cycles through them forever on a fixed interval, wrapping around the end
// of the list.
func (m *Manager) runChatMessages(ctx context.Context, s Session) {
	messages := m.cfg.ChatMessages.Messages

	if !m.cfg.ChatMessages.Repeat {
		for _, msg := range messages {
			if err := s.SendChat(msg); err != nil {
				m.logger.Error("Error sending chat message", slog.Any("error", err))
				return
			}
		}
		return
	}

	interval := time.Duration(m.cfg.ChatMessages.RepeatDelaySeconds) * time.Second
	if err := runChatLoop(ctx, s, messages, interval); err != nil {
		m.logger.Error("Error sending chat message", slog.Any("error", err))
	}
}

// runChatLoop sends one message per tick, wrapping around the end of the
// list, until the context is cancelled.
func runChatLoop(ctx context.Context, s Session, messages []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.SendChat(messages[i]); err != nil {
				return err
			}
			i = (i + 1) % len(messages)
		}
	}
}

// runMoveToTarget hands the configured destination to the movement planner
// and reports arrival.
func (m *Manager) runMoveToTarget(ctx context.Context, identity string, s Session) {
	target := mc.Position{
		X: m.cfg.MoveToTarget.X,
		Y: m.cfg.MoveToTarget.Y,
		Z: m.cfg.MoveToTarget.Z,
	}
	m.logger.Info("Moving to target location",
		slog.Float64("x", target.X), slog.Float64("y", target.Y), slog.Float64("z", target.Z))

	if err := m.planner.MoveTo(ctx, s, target); err != nil {
		if ctx.Err() == nil {
			m.logger.Error("Error moving to target", slog.Any("error", err))
		}
		return
	}
	m.logger.Info("Arrived at the target location")
	m.events.Emit(event.GoalReached(event.Text(identity, "Arrived at the target location")))
}
