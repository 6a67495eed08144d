package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"image-harvester/internal/domain"
)

type fakeSource struct {
	entries   []domain.LogEntry
	job       domain.Job
	err       error
	cancelled []string
}

func (f *fakeSource) WaitEvents(ctx context.Context, id string, since int64) ([]domain.LogEntry, domain.Job, error) {
	return f.entries, f.job, f.err
}

func (f *fakeSource) Cancel(id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func entry(seq int64, level domain.LogLevel, msg string) domain.LogEntry {
	return domain.LogEntry{Seq: seq, Level: level, Message: msg, Timestamp: time.Unix(0, 0)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

// TestWatchAppendsNewEntriesOnce verifies duplicate sequences are dropped.
func TestWatchAppendsNewEntriesOnce(t *testing.T) {
	w := NewWatch(&fakeSource{}, "job-1")
	running := domain.Job{ID: "job-1", State: domain.JobStateDownloading, Progress: 70}

	model, cmd := w.Update(eventsMsg{entries: []domain.LogEntry{entry(1, domain.LogLevelInfo, "a"), entry(2, domain.LogLevelInfo, "b")}, job: running})
	w = model.(Watch)
	if cmd == nil || isQuit(cmd) {
		t.Fatal("expected another wait while running")
	}

	model, _ = w.Update(eventsMsg{entries: []domain.LogEntry{entry(2, domain.LogLevelInfo, "b"), entry(3, domain.LogLevelWarn, "c")}, job: running})
	w = model.(Watch)
	if len(w.entries) != 3 || w.lastSeq != 3 {
		t.Fatalf("entries = %d lastSeq = %d, want 3 and 3", len(w.entries), w.lastSeq)
	}
	if w.Job().Progress != 70 {
		t.Fatalf("progress = %d, want 70", w.Job().Progress)
	}
}

// TestWatchQuitsOnTerminalJob verifies the program stops once the job finishes.
func TestWatchQuitsOnTerminalJob(t *testing.T) {
	w := NewWatch(&fakeSource{}, "job-1")
	done := domain.Job{ID: "job-1", State: domain.JobStateDone, Progress: 100, ArchiveReady: true, ArchivePath: "/tmp/cats.zip"}

	model, cmd := w.Update(eventsMsg{entries: []domain.LogEntry{entry(1, domain.LogLevelInfo, "Done")}, job: done})
	if !isQuit(cmd) {
		t.Fatal("expected quit command")
	}
	view := model.(Watch).View()
	if !strings.Contains(view, "Archive: /tmp/cats.zip") {
		t.Fatalf("view missing archive path:\n%s", view)
	}
}

// TestWatchStopsOnSourceError verifies wait errors end the program.
func TestWatchStopsOnSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("not found")}
	w := NewWatch(src, "job-1")

	msg := w.wait()()
	model, cmd := w.Update(msg)
	if !isQuit(cmd) {
		t.Fatal("expected quit command")
	}
	if model.(Watch).Err() == nil {
		t.Fatal("expected error to be kept")
	}
}

// TestWatchIgnoresPollTimeout verifies an idle window is not an error.
func TestWatchIgnoresPollTimeout(t *testing.T) {
	src := &fakeSource{err: context.DeadlineExceeded, job: domain.Job{ID: "job-1", State: domain.JobStateRevealing}}
	w := NewWatch(src, "job-1")

	msg := w.wait()().(eventsMsg)
	if msg.err != nil {
		t.Fatalf("err = %v, want nil", msg.err)
	}
	if msg.job.State != domain.JobStateRevealing {
		t.Fatalf("state = %s", msg.job.State)
	}
}

// TestWatchCancelKey verifies c requests cancellation once and q then quits.
func TestWatchCancelKey(t *testing.T) {
	src := &fakeSource{}
	w := NewWatch(src, "job-1")
	w.job.State = domain.JobStateDownloading

	model, cmd := w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd != nil {
		t.Fatal("q should not quit a running job")
	}

	model, cmd = model.(Watch).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	w = model.(Watch)
	if !w.cancelling || cmd == nil {
		t.Fatal("expected cancel command")
	}
	if _, ok := cmd().(cancelMsg); !ok {
		t.Fatal("expected cancelMsg")
	}
	if len(src.cancelled) != 1 || src.cancelled[0] != "job-1" {
		t.Fatalf("cancelled = %v", src.cancelled)
	}

	if _, cmd := w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}}); cmd != nil {
		t.Fatal("second cancel should be ignored")
	}
	if _, cmd := w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}); !isQuit(cmd) {
		t.Fatal("expected quit after cancelling")
	}
}

// TestWatchViewShowsFailure verifies failed jobs render their reason.
func TestWatchViewShowsFailure(t *testing.T) {
	w := NewWatch(&fakeSource{}, "job-1")
	w.job = domain.Job{ID: "job-1", State: domain.JobStateFailed, FailureReason: "page did not load"}
	w.entries = []domain.LogEntry{entry(1, domain.LogLevelError, "Failed: page did not load")}

	view := w.View()
	if !strings.Contains(view, "Failed: page did not load") {
		t.Fatalf("view missing reason:\n%s", view)
	}
}

// TestRenderBar verifies the bar is clamped to its width.
func TestRenderBar(t *testing.T) {
	tests := []struct {
		progress int
		full     int
	}{
		{progress: -5, full: 0},
		{progress: 50, full: 5},
		{progress: 100, full: 10},
		{progress: 140, full: 10},
	}
	for _, tt := range tests {
		bar := renderBar(tt.progress, 10)
		if got := strings.Count(bar, "█"); got != tt.full {
			t.Fatalf("renderBar(%d) full = %d, want %d", tt.progress, got, tt.full)
		}
		if got := strings.Count(bar, "░"); got != 10-tt.full {
			t.Fatalf("renderBar(%d) empty = %d, want %d", tt.progress, got, 10-tt.full)
		}
	}
}
