package mediastore

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultLogCapacity is the number of entries a DiagnosticLog keeps.
const DefaultLogCapacity = 500

// Entry is one line of the diagnostic trace.
type Entry struct {
	Time    time.Time
	Scope   string
	Op      string
	Failed  bool
	Message string
}

func (e Entry) String() string {
	outcome := "ok"
	if e.Failed {
		outcome = "FAILED"
	}
	return fmt.Sprintf("%s [%s] %s %s: %s", e.Time.Format("15:04:05.000"), e.Scope, e.Op, outcome, e.Message)
}

// DiagnosticLog is an append-only, bounded trace of media operations.
// When full the oldest entry is dropped. A disabled log records nothing.
// Every entry is also written to the logger at debug level.
type DiagnosticLog struct {
	mu       sync.Mutex
	enabled  bool
	capacity int
	entries  []Entry
	logger   *slog.Logger
	now      func() time.Time
}

// NewDiagnosticLog creates a disabled log. capacity <= 0 uses
// DefaultLogCapacity; a nil logger uses slog.Default().
func NewDiagnosticLog(capacity int, logger *slog.Logger) *DiagnosticLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiagnosticLog{capacity: capacity, logger: logger, now: time.Now}
}

// SetEnabled turns recording on or off. Existing entries are kept.
func (l *DiagnosticLog) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Enabled reports whether the log is recording.
func (l *DiagnosticLog) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record appends the outcome of op. A nil err records success.
func (l *DiagnosticLog) Record(scope, op string, err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		if msg == "" {
			msg = err.Error()
		} else {
			msg += ": " + err.Error()
		}
	}

	l.logger.Debug("media operation",
		slog.String("scope", scope),
		slog.String("op", op),
		slog.Bool("failed", err != nil),
		slog.String("message", msg),
	)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, Entry{
		Time:    l.now(),
		Scope:   scope,
		Op:      op,
		Failed:  err != nil,
		Message: msg,
	})
}

// Lines returns a snapshot of the recorded entries, oldest first.
func (l *DiagnosticLog) Lines() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear drops every entry.
func (l *DiagnosticLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
