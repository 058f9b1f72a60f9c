package console

import (
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// ansiEscape matches terminal color sequences, stripped before a line is
// stored or broadcast.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Observer is one attached consumer of the diagnostic stream. Lines arrive
// on C; the channel is closed when the observer is detached or dropped.
type Observer struct {
	ID string
	C  chan string
}

// Relay keeps a bounded backlog of recent diagnostic lines and broadcasts
// new lines to every attached observer. Broadcast is fire-and-forget: an
// observer whose buffer is full is dropped rather than ever blocking Append.
type Relay struct {
	capacity int

	mu        sync.Mutex
	backlog   []string
	observers map[*Observer]bool
}

func NewRelay(capacity int) *Relay {
	return &Relay{
		capacity:  capacity,
		observers: make(map[*Observer]bool),
	}
}

// Append strips color escapes from the line, stores it (evicting the oldest
// entry when full), and broadcasts it to all observers.
func (r *Relay) Append(line string) {
	clean := ansiEscape.ReplaceAllString(line, "")

	r.mu.Lock()
	defer r.mu.Unlock()

	r.backlog = append(r.backlog, clean)
	if len(r.backlog) > r.capacity {
		r.backlog = r.backlog[1:]
	}

	for o := range r.observers {
		select {
		case o.C <- clean:
		default:
			delete(r.observers, o)
			close(o.C)
		}
	}
}

// Attach registers a new observer. The full current backlog is replayed,
// oldest first, into the observer's channel before any live line can reach
// it, so an observer sees history and tail with no gap or overlap.
func (r *Relay) Attach() *Observer {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := &Observer{
		ID: uuid.NewString(),
		C:  make(chan string, r.capacity+256),
	}
	for _, line := range r.backlog {
		o.C <- line
	}
	r.observers[o] = true
	return o
}

// Detach removes an observer and closes its channel. Safe to call for an
// observer that was already dropped by a full buffer.
func (r *Relay) Detach(o *Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observers[o] {
		delete(r.observers, o)
		close(o.C)
	}
}

// Backlog returns a copy of the retained lines, oldest first.
func (r *Relay) Backlog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.backlog))
	copy(out, r.backlog)
	return out
}
