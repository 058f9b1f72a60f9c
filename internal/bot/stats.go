package bot

import (
	"context"
	"sync"
	"time"

	"github.com/perchbot/perch/internal/event"
)

// Stats is a point-in-time snapshot of session counters for the web console
// and the remote notifiers.
type Stats struct {
	Identity       string    `json:"identity"`
	ConnectedSince time.Time `json:"connectedSince"`
	Connects       int       `json:"connects"`
	Reconnects     int       `json:"reconnects"`
	Kicks          int       `json:"kicks"`
	LastKickReason string    `json:"lastKickReason"`
	AuthOutcome    string    `json:"authOutcome"`
	GoalsReached   int       `json:"goalsReached"`
	Deaths         int       `json:"deaths"`
}

// StatsHandler accumulates counters from the event bus.
type StatsHandler struct {
	mu    sync.Mutex
	stats Stats
}

func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

func (h *StatsHandler) Handle(_ context.Context, e event.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch evt := e.(type) {
	case event.SessionStartedEvent:
		h.stats.Identity = evt.Identity()
		h.stats.Connects++
	case event.SessionSpawnedEvent:
		h.stats.ConnectedSince = evt.OccurredAt()
	case event.KickedEvent:
		h.stats.Kicks++
		h.stats.LastKickReason = evt.Reason
	case event.ReconnectScheduledEvent:
		h.stats.Reconnects++
	case event.AuthResultEvent:
		if evt.Success {
			h.stats.AuthOutcome = "success"
		} else {
			h.stats.AuthOutcome = evt.Reason
		}
	case event.GoalReachedEvent:
		h.stats.GoalsReached++
	case event.DeathEvent:
		h.stats.Deaths++
	}
	return nil
}

func (h *StatsHandler) Snapshot() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
