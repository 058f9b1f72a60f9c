// Package log builds the process logger: a line-oriented slog handler that
// writes to stdout and a buffered log file, and forwards every rendered
// line to the console relay so remote observers see exactly what the local
// terminal sees.
package log

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/perchbot/perch/internal/console"
)

var (
	flushMu sync.Mutex
	logFile *os.File
	writer  *bufio.Writer
)

// NewLogger creates the process-wide logger. Debug enables the debug level;
// saveDirectory is created if missing. The relay may be nil (tests).
func NewLogger(debug bool, saveDirectory string, relay *console.Relay) (*slog.Logger, error) {
	if err := os.MkdirAll(saveDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}

	fileName := filepath.Join(saveDirectory, fmt.Sprintf("perch-%s.log", time.Now().Format("2006-01-02-15_04_05")))
	f, err := os.Create(fileName)
	if err != nil {
		return nil, fmt.Errorf("error creating log file: %w", err)
	}

	flushMu.Lock()
	logFile = f
	writer = bufio.NewWriter(f)
	flushMu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return slog.New(newLineHandler(level, relay)), nil
}

// FlushLog forces buffered log output to disk.
func FlushLog() {
	flushMu.Lock()
	defer flushMu.Unlock()
	if writer != nil {
		writer.Flush()
	}
}

// FlushAndClose flushes and closes the log file.
func FlushAndClose() {
	flushMu.Lock()
	defer flushMu.Unlock()
	if writer != nil {
		writer.Flush()
		writer = nil
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func writeLine(line string) {
	flushMu.Lock()
	defer flushMu.Unlock()
	os.Stdout.WriteString(line + "\n")
	if writer != nil {
		writer.WriteString(line + "\n")
	}
}
