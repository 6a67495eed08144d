package jobs

import (
	"sync"
	"time"

	"image-harvester/internal/domain"
)

// EventLog is an append-only, sequenced job log with change notification.
// Entries are never trimmed; readers catch up with Since.
type EventLog struct {
	mu      sync.RWMutex
	nextSeq int64
	entries []domain.LogEntry
	changed chan struct{}
	now     func() time.Time
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{
		changed: make(chan struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append adds one entry and assigns its sequence and timestamp.
func (l *EventLog) Append(level domain.LogLevel, message string) domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	entry := domain.LogEntry{
		Seq:       l.nextSeq,
		Timestamp: l.now(),
		Level:     level,
		Message:   message,
	}
	l.entries = append(l.entries, entry)
	l.notifyLocked()
	return entry
}

// Since returns entries with sequence strictly greater than seq.
func (l *EventLog) Since(seq int64) []domain.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(l.entries)) {
		return nil
	}
	out := make([]domain.LogEntry, len(l.entries)-int(seq))
	copy(out, l.entries[seq:])
	return out
}

// LastSeq returns the sequence of the newest entry, or zero.
func (l *EventLog) LastSeq() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq
}

// Changed returns a channel closed on the next mutation.
func (l *EventLog) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// Notify wakes every waiter without appending.
func (l *EventLog) Notify() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifyLocked()
}

func (l *EventLog) notifyLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}
