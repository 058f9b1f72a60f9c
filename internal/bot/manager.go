package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/event"
	"github.com/perchbot/perch/internal/mc"
	"github.com/perchbot/perch/internal/utils"
)

// Phase is the lifecycle state of the managed session.
type Phase string

const (
	PhaseHalted      Phase = "Halted"
	PhaseConnecting  Phase = "Connecting"
	PhaseLoggingIn   Phase = "LoggingIn"
	PhaseActive      Phase = "Active"
	PhaseTerminating Phase = "Terminating"
)

const identityLength = 16

// Manager owns the single live session and the state machine around it:
// connect, authenticate, run behaviors, tear down, reconnect. At most one
// session exists at any instant; the previous one is fully torn down before
// a new one is created.
type Manager struct {
	logger  *slog.Logger
	events  *event.Listener
	cfg     *config.Cfg
	factory Factory
	planner Planner

	mu             sync.Mutex
	current        Session
	phase          Phase
	gen            int
	identity       string
	restartTimer   *time.Timer
	behaviorCancel context.CancelFunc
	stopped        bool
	bo             *backoff.Backoff
}

func NewManager(logger *slog.Logger, events *event.Listener, cfg *config.Cfg, factory Factory, planner Planner) *Manager {
	m := &Manager{
		logger:  logger,
		events:  events,
		cfg:     cfg,
		factory: factory,
		planner: planner,
		phase:   PhaseHalted,
		stopped: true,
	}
	if cfg.Reconnect.Backoff {
		m.bo = &backoff.Backoff{
			Min:    cfg.ReconnectDelay(),
			Max:    cfg.ReconnectMaxWait(),
			Factor: 2,
			Jitter: true,
		}
	}
	return m
}

// Start is the idempotent entry point. Any existing session is torn down
// first, a fresh identity is generated, and the connection attempt runs
// asynchronously; outcomes arrive as session events.
func (m *Manager) Start() {
	m.mu.Lock()
	m.stopped = false
	if m.restartTimer != nil {
		m.restartTimer.Stop()
		m.restartTimer = nil
	}
	m.teardownLocked("restart requested")
	m.gen++
	gen := m.gen
	identity := utils.RandomString(identityLength)
	m.identity = identity
	m.setPhaseLocked(PhaseConnecting)
	m.mu.Unlock()

	m.logger.Info("Generated new username", slog.String("identity", identity))
	m.events.Emit(event.SessionStarted(event.Text(identity, "Connecting to server"), m.cfg.Server.Host, m.cfg.Server.Port))

	go m.connect(gen, identity)
}

// Stop halts the machine: tears down the current session, cancels any
// pending reconnect, and stays in Halted until the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.gen++
	if m.restartTimer != nil {
		m.restartTimer.Stop()
		m.restartTimer = nil
	}
	m.teardownLocked("stop requested")
	m.setPhaseLocked(PhaseHalted)
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Identity returns the identity of the current (or most recent) session.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

func (m *Manager) connect(gen int, identity string) {
	opts := mc.Options{
		Host:            m.cfg.Server.Host,
		Port:            m.cfg.Server.Port,
		ProtocolVersion: m.cfg.Server.ProtocolVersion,
		Timeout:         m.cfg.Timeout(),
	}

	s, err := m.factory(identity, opts, m.sessionEvents(gen, identity))
	if err != nil {
		m.logger.Error("Connection attempt failed", slog.Any("error", err))
		m.scheduleRestart(gen, "connect failed")
		return
	}

	m.mu.Lock()
	if m.gen != gen || m.stopped {
		// A restart or stop raced the dial; this session must not live.
		m.mu.Unlock()
		if err := s.Close(); err != nil {
			m.logger.Warn("Error closing abandoned session", slog.Any("error", err))
		}
		return
	}
	m.current = s
	m.mu.Unlock()

	s.Run()
}

// sessionEvents wires the standard subscriptions for one session. Every
// closure carries the session generation so that events from a torn-down
// session can never act on its successor.
func (m *Manager) sessionEvents(gen int, identity string) mc.Events {
	return mc.Events{
		Login: func() {
			m.logger.Debug("Logging in to the server")
		},
		Spawned: func() {
			m.onSpawned(gen, identity)
		},
		Chat: func(msg mc.ChatMessage) {
			if msg.Sender != "" {
				m.logger.Info("Chat message", slog.String("from", msg.Sender), slog.String("text", msg.Text))
			} else {
				m.logger.Info("Server message", slog.String("text", msg.Text))
			}
		},
		Kicked: func(reason string) {
			m.logger.Info("Kicked from the server", slog.String("reason", reason))
			m.events.Emit(event.Kicked(event.Text(identity, "Kicked from the server"), reason))
			m.scheduleRestart(gen, "kicked: "+reason)
		},
		End: func() {
			m.logger.Debug("Connection ended")
			m.scheduleRestart(gen, "connection ended")
		},
		Error: func(err error) {
			// Transport errors are diagnostics only; the End event that
			// follows drives the actual reconnect.
			m.logger.Error("Session error", slog.Any("error", err))
		},
		Death: func() {
			m.logger.Info("Died and respawned")
			m.events.Emit(event.Death(event.Text(identity, "Died and respawned")))
		},
	}
}

func (m *Manager) onSpawned(gen int, identity string) {
	m.mu.Lock()
	if m.gen != gen || m.current == nil {
		m.mu.Unlock()
		return
	}
	s := m.current
	ctx, cancel := context.WithCancel(context.Background())
	m.behaviorCancel = cancel

	authEnabled := m.cfg.AutoAuth.Enabled
	if authEnabled {
		m.setPhaseLocked(PhaseLoggingIn)
	} else {
		m.setPhaseLocked(PhaseActive)
	}
	if m.bo != nil {
		m.bo.Reset()
	}
	m.mu.Unlock()

	m.logger.Info("Joined the server", slog.String("identity", identity))
	m.events.Emit(event.SessionSpawned(event.Text(identity, "Joined the server")))

	if authEnabled {
		go m.runAuth(ctx, gen, identity, s)
	}

	// Behaviors activate regardless of the handshake outcome; a failed
	// auth degrades the session, it does not abort it.
	m.startBehaviors(ctx, identity, s)
}

func (m *Manager) runAuth(ctx context.Context, gen int, identity string, s Session) {
	logger := m.logger.With(slog.String("module", "auth"))
	logger.Info("Started auto-auth module")

	outcome := handshake(ctx, s, m.cfg.AutoAuth.Password, logger)
	if outcome.Success {
		logger.Info("Authentication succeeded")
	} else {
		logger.Error("Authentication failed", slog.String("outcome", outcome.String()))
	}
	m.events.Emit(event.AuthResult(event.Text(identity, "Auth handshake finished"), outcome.Success, outcome.Reason))

	m.mu.Lock()
	if m.gen == gen && m.phase == PhaseLoggingIn {
		m.setPhaseLocked(PhaseActive)
	}
	m.mu.Unlock()
}

// scheduleRestart tears down the session identified by gen and queues
// exactly one reconnect attempt after the configured delay. Stale
// generations are ignored, so a kick followed by the resulting connection
// end schedules a single restart.
func (m *Manager) scheduleRestart(gen int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return
	}
	m.gen++
	m.teardownLocked(reason)

	if m.stopped || !m.cfg.Reconnect.Enabled {
		m.setPhaseLocked(PhaseHalted)
		return
	}
	if m.restartTimer != nil {
		return
	}

	delay := m.cfg.ReconnectDelay()
	if m.bo != nil {
		delay = m.bo.Duration()
	}
	m.logger.Info("Restarting session", slog.Duration("delay", delay), slog.String("reason", reason))
	m.events.Emit(event.ReconnectScheduled(event.Text(m.identity, "Reconnect scheduled"), delay))

	m.restartTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.restartTimer = nil
		stopped := m.stopped
		m.mu.Unlock()
		if !stopped {
			m.Start()
		}
	})
}

// teardownLocked cancels behaviors and closes the current session, if any.
// Close errors are logged and discarded. Callers hold m.mu.
func (m *Manager) teardownLocked(reason string) {
	if m.behaviorCancel != nil {
		m.behaviorCancel()
		m.behaviorCancel = nil
	}
	if m.current == nil {
		return
	}
	m.setPhaseLocked(PhaseTerminating)
	if err := m.current.Close(); err != nil {
		m.logger.Warn("Error closing session", slog.Any("error", err))
	}
	m.current = nil
	m.events.Emit(event.SessionEnded(event.Text(m.identity, "Session ended"), reason))
}

func (m *Manager) setPhaseLocked(p Phase) {
	if m.phase == p {
		return
	}
	m.logger.Debug("Phase transition", slog.String("from", string(m.phase)), slog.String("to", string(p)))
	m.phase = p
}
