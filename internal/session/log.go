package session

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry is one line of the user-visible session log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Log is the append-only session log. Entries are kept for the lifetime of
// the manager and returned newest first.
type Log struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// Append records a message with the current timestamp.
func (l *Log) Append(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Timestamp: time.Now(), Message: msg})
}

// Appendf records a formatted message.
func (l *Log) Appendf(format string, args ...interface{}) {
	l.Append(fmt.Sprintf(format, args...))
}

// Entries returns a copy of the log, newest first.
func (l *Log) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
