package gotftp

import (
	"sync"
	"time"
)

// logBuffer is a bounded, thread-safe append buffer for one
// operation's log lines. The engine goroutine appends; the
// dispatcher goroutine drains. Grounded in the original's
// TftpOperation.addLogMsg/processLogMessages (tftpoperation.py),
// tightened with an explicit mutex since Go has no GIL to serialize
// the append/drain race for us.
type logBuffer struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

// maxBufferedLogLines bounds memory if a transfer runs long with no
// dispatcher draining it (e.g. logger misconfigured).
const maxBufferedLogLines = 4096

func newLogBuffer() *logBuffer {
	return &logBuffer{cap: maxBufferedLogLines}
}

// timestampLine prefixes msg with a microsecond-precision timestamp,
// matching the original's log line format (spec.md §6).
func timestampLine(msg string) string {
	return time.Now().Format("2006-01-02 15:04:05.000000") + ": " + msg
}

func (b *logBuffer) append(msg string) {
	line := timestampLine(msg)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.cap {
		return
	}
	b.lines = append(b.lines, line)
}

// drain atomically swaps out and clears the buffered lines.
func (b *logBuffer) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return nil
	}
	out := b.lines
	b.lines = nil
	return out
}
