package bot

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/perchbot/perch/internal/mc"
)

// fakeSession implements Session in-memory for lifecycle and handshake
// tests. Outbound chat is recorded; inbound chat is injected with deliver.
type fakeSession struct {
	identity string

	mu       sync.Mutex
	sent     []string
	flags    map[mc.ControlFlag]bool
	chatWait chan mc.ChatMessage
	closed   bool
	pos      mc.Position
}

func newFakeSession(identity string) *fakeSession {
	return &fakeSession{
		identity: identity,
		flags:    make(map[mc.ControlFlag]bool),
	}
}

func (f *fakeSession) Identity() string { return f.identity }
func (f *fakeSession) Run()             {}

func (f *fakeSession) SendChat(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("session closed")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSession) SetControlFlag(flag mc.ControlFlag, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[flag] = active
	return nil
}

func (f *fakeSession) AwaitNextChat() (<-chan mc.ChatMessage, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatWait != nil {
		return nil, nil, errors.New("a chat waiter is already registered")
	}
	ch := make(chan mc.ChatMessage, 1)
	f.chatWait = ch
	cancel := func() {
		f.mu.Lock()
		if f.chatWait == ch {
			f.chatWait = nil
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// deliver hands an inbound chat message to the registered waiter, if any.
// Returns whether a waiter consumed it.
func (f *fakeSession) deliver(text string) bool {
	f.mu.Lock()
	waiter := f.chatWait
	f.chatWait = nil
	f.mu.Unlock()
	if waiter == nil {
		return false
	}
	waiter <- mc.ChatMessage{Text: text}
	return true
}

func (f *fakeSession) hasWaiter() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatWait != nil
}

func (f *fakeSession) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSession) sentContains(text string) bool {
	for _, s := range f.sentMessages() {
		if s == text {
			return true
		}
	}
	return false
}

func (f *fakeSession) flag(flag mc.ControlFlag) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[flag]
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSession) Position() mc.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeSession) UpdatePosition(pos mc.Position, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
