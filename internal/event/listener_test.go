package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListenerDispatchesToAllHandlersInOrder(t *testing.T) {
	l := NewListener(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seenA, seenB []string
	done := make(chan struct{}, 1)

	l.Register(func(_ context.Context, e Event) error {
		mu.Lock()
		seenA = append(seenA, e.Message())
		mu.Unlock()
		return nil
	})
	l.Register(func(_ context.Context, e Event) error {
		mu.Lock()
		seenB = append(seenB, e.Message())
		if len(seenB) == 2 {
			done <- struct{}{}
		}
		mu.Unlock()
		return nil
	})
	go l.Listen(ctx)

	l.Emit(Text("perch1", "first"))
	l.Emit(Text("perch1", "second"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handlers never saw both events")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, seen := range [][]string{seenA, seenB} {
		if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
			t.Fatalf("handler saw %v, want [first second]", seen)
		}
	}
}

func TestListenerSwallowsHandlerErrors(t *testing.T) {
	l := NewListener(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	l.Register(func(context.Context, Event) error {
		return errors.New("notifier down")
	})
	l.Register(func(_ context.Context, e Event) error {
		got <- e.Message()
		return nil
	})
	go l.Listen(ctx)

	l.Emit(Text("perch1", "still delivered"))

	select {
	case msg := <-got:
		if msg != "still delivered" {
			t.Fatalf("handler saw %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("second handler never ran after the first errored")
	}
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	l := NewListener(testLogger())
	// No Listen running: fill the queue past capacity and make sure Emit
	// never blocks.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			l.Emit(Text("perch1", "flood"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
}

func TestSendUsesProcessWideListener(t *testing.T) {
	l := NewListener(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	l.Register(func(_ context.Context, e Event) error {
		got <- e
		return nil
	})
	go l.Listen(ctx)

	Send(Kicked(Text("perch1", "Kicked from the server"), "afk"))

	select {
	case e := <-got:
		kicked, ok := e.(KickedEvent)
		if !ok {
			t.Fatalf("got %T, want KickedEvent", e)
		}
		if kicked.Reason != "afk" {
			t.Fatalf("reason = %q", kicked.Reason)
		}
		if kicked.Identity() != "perch1" {
			t.Fatalf("identity = %q", kicked.Identity())
		}
		if kicked.OccurredAt().IsZero() {
			t.Fatal("OccurredAt not set")
		}
	case <-time.After(time.Second):
		t.Fatal("Send never reached the process-wide listener")
	}
}
