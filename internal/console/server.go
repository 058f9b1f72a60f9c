package console

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/perchbot/perch/internal/bot"
)

//go:embed all:assets
var assetsFS embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeDeadline  = 10 * time.Second
	statusInterval = time.Second
)

// HttpServer serves the embedded log viewer, the websocket push channel and
// a small control API for the lifecycle manager.
type HttpServer struct {
	logger  *slog.Logger
	relay   *Relay
	manager *bot.Manager
	stats   *bot.StatsHandler
	server  *http.Server
}

func New(logger *slog.Logger, relay *Relay, manager *bot.Manager, stats *bot.StatsHandler) *HttpServer {
	return &HttpServer{
		logger:  logger,
		relay:   relay,
		manager: manager,
		stats:   stats,
	}
}

type frame struct {
	Type string `json:"type"`
	Line string `json:"line,omitempty"`
	Data any    `json:"data,omitempty"`
}

type statusData struct {
	Phase string    `json:"phase"`
	Stats bot.Stats `json:"stats"`
}

func (s *HttpServer) routes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	assets, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		return nil, err
	}
	mux.Handle("/", http.FileServer(http.FS(assets)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("POST /restart", s.restart)
	mux.HandleFunc("POST /stop", s.stop)

	return mux, nil
}

func (s *HttpServer) Listen(port int) error {
	mux, err := s.routes()
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	s.logger.Info("Web console listening", slog.Int("port", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HttpServer) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleWebSocket attaches the connection as a relay observer: backlog
// first, then live lines, interleaved with periodic status frames.
func (s *HttpServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", slog.Any("error", err))
		return
	}

	obs := s.relay.Attach()
	s.logger.Debug("Observer attached", slog.String("observer", obs.ID))

	go s.writePump(conn, obs)
	go s.readPump(conn, obs)
}

func (s *HttpServer) writePump(conn *websocket.Conn, obs *Observer) {
	ticker := time.NewTicker(statusInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case line, ok := <-obs.C:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.writeFrame(conn, frame{Type: "log", Line: line}); err != nil {
				return
			}
		case <-ticker.C:
			data := statusData{
				Phase: string(s.manager.Phase()),
				Stats: s.stats.Snapshot(),
			}
			if err := s.writeFrame(conn, frame{Type: "status", Data: data}); err != nil {
				return
			}
		}
	}
}

func (s *HttpServer) writeFrame(conn *websocket.Conn, f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// readPump discards inbound messages; the push channel defines none. It
// exists to notice the peer going away and detach the observer.
func (s *HttpServer) readPump(conn *websocket.Conn, obs *Observer) {
	defer func() {
		s.relay.Detach(obs)
		conn.Close()
		s.logger.Debug("Observer detached", slog.String("observer", obs.ID))
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket read error", slog.Any("error", err))
			}
			return
		}
	}
}

func (s *HttpServer) status(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusData{
		Phase: string(s.manager.Phase()),
		Stats: s.stats.Snapshot(),
	})
}

func (s *HttpServer) restart(w http.ResponseWriter, _ *http.Request) {
	s.manager.Start()
	w.WriteHeader(http.StatusAccepted)
}

func (s *HttpServer) stop(w http.ResponseWriter, _ *http.Request) {
	s.manager.Stop()
	w.WriteHeader(http.StatusAccepted)
}
