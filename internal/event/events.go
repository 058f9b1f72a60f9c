package event

import (
	"time"
)

// Event is anything worth telling remote observers about: session lifecycle
// transitions, auth outcomes, kicks and arrivals. Events are immutable once
// created.
type Event interface {
	Message() string
	Identity() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	message    string
	identity   string
	occurredAt time.Time
}

func (b BaseEvent) Message() string {
	return b.message
}

func (b BaseEvent) Identity() string {
	return b.identity
}

func (b BaseEvent) OccurredAt() time.Time {
	return b.occurredAt
}

// Text builds the BaseEvent for a session-scoped message.
func Text(identity string, message string) BaseEvent {
	return BaseEvent{
		message:    message,
		identity:   identity,
		occurredAt: time.Now(),
	}
}

// SessionStartedEvent fires when a new session begins connecting.
type SessionStartedEvent struct {
	BaseEvent
	Host string
	Port int
}

func SessionStarted(be BaseEvent, host string, port int) SessionStartedEvent {
	return SessionStartedEvent{BaseEvent: be, Host: host, Port: port}
}

// SessionSpawnedEvent fires on successful world entry.
type SessionSpawnedEvent struct {
	BaseEvent
}

func SessionSpawned(be BaseEvent) SessionSpawnedEvent {
	return SessionSpawnedEvent{BaseEvent: be}
}

// SessionEndedEvent fires when a session terminates for any reason.
type SessionEndedEvent struct {
	BaseEvent
	Reason string
}

func SessionEnded(be BaseEvent, reason string) SessionEndedEvent {
	return SessionEndedEvent{BaseEvent: be, Reason: reason}
}

// KickedEvent fires when the server forcibly removes the session.
type KickedEvent struct {
	BaseEvent
	Reason string
}

func Kicked(be BaseEvent, reason string) KickedEvent {
	return KickedEvent{BaseEvent: be, Reason: reason}
}

// AuthResultEvent reports the outcome of the in-band auth handshake.
type AuthResultEvent struct {
	BaseEvent
	Success bool
	Reason  string
}

func AuthResult(be BaseEvent, success bool, reason string) AuthResultEvent {
	return AuthResultEvent{BaseEvent: be, Success: success, Reason: reason}
}

// ReconnectScheduledEvent fires when a reconnect attempt has been queued.
type ReconnectScheduledEvent struct {
	BaseEvent
	Delay time.Duration
}

func ReconnectScheduled(be BaseEvent, delay time.Duration) ReconnectScheduledEvent {
	return ReconnectScheduledEvent{BaseEvent: be, Delay: delay}
}

// GoalReachedEvent fires when the movement planner reports arrival.
type GoalReachedEvent struct {
	BaseEvent
}

func GoalReached(be BaseEvent) GoalReachedEvent {
	return GoalReachedEvent{BaseEvent: be}
}

// DeathEvent fires when the player dies and respawns.
type DeathEvent struct {
	BaseEvent
}

func Death(be BaseEvent) DeathEvent {
	return DeathEvent{BaseEvent: be}
}

// TunnelEvent announces a public tunnel URL for the web console.
type TunnelEvent struct {
	BaseEvent
	URL string
}

func Tunnel(url string) TunnelEvent {
	return TunnelEvent{BaseEvent: Text("", "Web console available at "+url), URL: url}
}
