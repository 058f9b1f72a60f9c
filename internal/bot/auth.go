package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Auth failure reasons, matching the reply classification of chat-command
// auth plugins (AuthMe convention).
const (
	ReasonInvalidCommand     = "invalid-command"
	ReasonInvalidPassword    = "invalid-password"
	ReasonNotRegistered      = "not-registered"
	ReasonUnexpectedResponse = "unexpected-response"
)

// AuthOutcome is the transient result of one handshake step.
type AuthOutcome struct {
	Success bool
	Reason  string
	Detail  string
}

func (o AuthOutcome) String() string {
	if o.Success {
		return "success"
	}
	if o.Detail != "" {
		return fmt.Sprintf("%s (%q)", o.Reason, o.Detail)
	}
	return o.Reason
}

// handshake runs the two-step register/login exchange over the shared chat
// channel. The channel has no correlation IDs, so each step consumes exactly
// the next inbound chat message, and the login step is only issued after the
// register step's single reply has been consumed. A failed register step
// terminates the chain; the login command is never sent.
func handshake(ctx context.Context, s Session, password string, logger *slog.Logger) AuthOutcome {
	outcome := authStep(ctx, s, logger,
		fmt.Sprintf("/register %s %s", password, password),
		"register", classifyRegister)
	if !outcome.Success {
		return outcome
	}

	return authStep(ctx, s, logger,
		fmt.Sprintf("/login %s", password),
		"login", classifyLogin)
}

func authStep(ctx context.Context, s Session, logger *slog.Logger, command, name string, classify func(string) AuthOutcome) AuthOutcome {
	// The waiter must exist before the command goes out; the reply can
	// otherwise arrive between send and subscribe and be lost.
	reply, cancel, err := s.AwaitNextChat()
	if err != nil {
		return AuthOutcome{Reason: ReasonUnexpectedResponse, Detail: err.Error()}
	}

	if err := s.SendChat(command); err != nil {
		cancel()
		return AuthOutcome{Reason: ReasonUnexpectedResponse, Detail: err.Error()}
	}
	logger.Info("Sent auth command", slog.String("step", name))

	select {
	case msg := <-reply:
		return classify(msg.Text)
	case <-ctx.Done():
		cancel()
		return AuthOutcome{Reason: ReasonUnexpectedResponse, Detail: ctx.Err().Error()}
	}
}

func classifyRegister(text string) AuthOutcome {
	switch {
	case strings.Contains(text, "successfully registered"),
		strings.Contains(text, "already registered"):
		return AuthOutcome{Success: true}
	case strings.Contains(text, "Invalid command"):
		return AuthOutcome{Reason: ReasonInvalidCommand, Detail: text}
	default:
		return AuthOutcome{Reason: ReasonUnexpectedResponse, Detail: text}
	}
}

func classifyLogin(text string) AuthOutcome {
	switch {
	case strings.Contains(text, "successfully logged in"):
		return AuthOutcome{Success: true}
	case strings.Contains(text, "Invalid password"):
		return AuthOutcome{Reason: ReasonInvalidPassword, Detail: text}
	case strings.Contains(text, "not registered"):
		return AuthOutcome{Reason: ReasonNotRegistered, Detail: text}
	default:
		return AuthOutcome{Reason: ReasonUnexpectedResponse, Detail: text}
	}
}
