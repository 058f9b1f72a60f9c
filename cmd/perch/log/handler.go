package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/perchbot/perch/internal/console"
)

// lineHandler renders records as single bracket-tagged lines:
//
//	2006-01-02 15:04:05.000 [INFO] Joined the server identity=aB3x
//
// and hands each line to the relay for remote observers.
type lineHandler struct {
	level slog.Level
	relay *console.Relay
	attrs []slog.Attr
	group string
}

func newLineHandler(level slog.Level, relay *console.Relay) *lineHandler {
	return &lineHandler{level: level, relay: relay}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(r.Level.String())
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	for _, a := range h.attrs {
		h.appendAttr(&sb, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&sb, a)
		return true
	})

	line := sb.String()
	writeLine(line)
	if h.relay != nil {
		h.relay.Append(line)
	}
	return nil
}

func (h *lineHandler) appendAttr(sb *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	sb.WriteByte(' ')
	if h.group != "" {
		sb.WriteString(h.group)
		sb.WriteByte('.')
	}
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	sb.WriteString(fmt.Sprint(a.Value.Resolve().Any()))
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group += "." + name
	}
	return &clone
}
