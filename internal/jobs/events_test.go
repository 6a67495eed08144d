package jobs

import (
	"testing"
	"time"

	"image-harvester/internal/domain"
)

// TestEventLogSince verifies incremental reads by sequence.
func TestEventLogSince(t *testing.T) {
	log := NewEventLog()
	log.Append(domain.LogLevelInfo, "1")
	log.Append(domain.LogLevelWarn, "2")
	log.Append(domain.LogLevelInfo, "3")

	entries := log.Since(1)
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Seq != 2 || entries[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", entries)
	}
	if entries[0].Level != domain.LogLevelWarn {
		t.Fatalf("level = %s, want warn", entries[0].Level)
	}
	if got := log.Since(3); got != nil {
		t.Fatalf("Since(last) = %+v, want nil", got)
	}
	if got := log.Since(-5); len(got) != 3 {
		t.Fatalf("Since(-5) len = %d, want 3", len(got))
	}
}

// TestEventLogKeepsHistory verifies entries are never trimmed.
func TestEventLogKeepsHistory(t *testing.T) {
	log := NewEventLog()
	for i := 0; i < 1200; i++ {
		log.Append(domain.LogLevelInfo, "line")
	}

	entries := log.Since(0)
	if len(entries) != 1200 {
		t.Fatalf("len = %d, want 1200", len(entries))
	}
	if entries[0].Seq != 1 || log.LastSeq() != 1200 {
		t.Fatalf("first seq = %d, last = %d", entries[0].Seq, log.LastSeq())
	}
}

// TestEventLogChangedFires verifies appends wake waiters.
func TestEventLogChangedFires(t *testing.T) {
	log := NewEventLog()
	ch := log.Changed()

	go log.Append(domain.LogLevelInfo, "wake")

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("changed channel was not closed")
	}
	if log.Changed() == ch {
		t.Fatal("expected a fresh channel after notify")
	}
}
