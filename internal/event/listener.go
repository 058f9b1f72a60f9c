package event

import (
	"context"
	"log/slog"
	"sync"
)

type Handler func(ctx context.Context, e Event) error

// Listener fans events out to registered handlers from a single dispatch
// goroutine, so handlers never run concurrently with each other and a slow
// producer can never deadlock a handler that also produces events.
type Listener struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers []Handler
	queue    chan Event
}

var (
	defaultMu       sync.RWMutex
	defaultListener *Listener
)

func NewListener(logger *slog.Logger) *Listener {
	l := &Listener{
		logger: logger,
		queue:  make(chan Event, 64),
	}

	defaultMu.Lock()
	defaultListener = l
	defaultMu.Unlock()

	return l
}

func (l *Listener) Register(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Listen dispatches queued events until the context is cancelled. Handler
// errors are logged and swallowed; one misbehaving notifier must not take
// the process down.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-l.queue:
			l.mu.RLock()
			handlers := make([]Handler, len(l.handlers))
			copy(handlers, l.handlers)
			l.mu.RUnlock()

			for _, h := range handlers {
				if err := h(ctx, e); err != nil {
					l.logger.Error("error running event handler", slog.Any("error", err))
				}
			}
		}
	}
}

// Emit queues an event for dispatch, dropping it if the queue is full.
func (l *Listener) Emit(e Event) {
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("event queue full, dropping event", slog.String("message", e.Message()))
	}
}

// Send queues an event on the process-wide listener. No-op before
// NewListener has been called.
func Send(e Event) {
	defaultMu.RLock()
	l := defaultListener
	defaultMu.RUnlock()
	if l != nil {
		l.Emit(e)
	}
}
