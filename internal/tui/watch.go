// Package tui renders a single harvest job in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"image-harvester/internal/domain"
)

const (
	defaultPollWindow = time.Second
	logTail           = 12
	barWidth          = 40
)

// JobSource is the part of the job service the watcher needs.
type JobSource interface {
	WaitEvents(ctx context.Context, id string, since int64) ([]domain.LogEntry, domain.Job, error)
	Cancel(id string) error
}

// eventsMsg carries the result of one wait call.
type eventsMsg struct {
	entries []domain.LogEntry
	job     domain.Job
	err     error
}

// cancelMsg reports the outcome of a cancel request.
type cancelMsg struct {
	err error
}

// Watch follows one job until it finishes.
type Watch struct {
	src        JobSource
	jobID      string
	pollWindow time.Duration

	job        domain.Job
	entries    []domain.LogEntry
	lastSeq    int64
	spinner    spinner.Model
	cancelling bool
	err        error
	width      int
}

// NewWatch builds a watcher for jobID.
func NewWatch(src JobSource, jobID string) Watch {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = mutedStyle
	return Watch{
		src:        src,
		jobID:      jobID,
		pollWindow: defaultPollWindow,
		job:        domain.Job{ID: jobID, State: domain.JobStatePending},
		spinner:    sp,
	}
}

// Job returns the latest snapshot seen.
func (w Watch) Job() domain.Job {
	return w.job
}

// Err returns the error that stopped watching, if any.
func (w Watch) Err() error {
	return w.err
}

// Init implements tea.Model
func (w Watch) Init() tea.Cmd {
	return tea.Batch(w.spinner.Tick, w.wait())
}

// wait blocks for new entries or until the poll window elapses.
func (w Watch) wait() tea.Cmd {
	src, id, since, window := w.src, w.jobID, w.lastSeq, w.pollWindow
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), window)
		defer cancel()
		entries, job, err := src.WaitEvents(ctx, id, since)
		if errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
		return eventsMsg{entries: entries, job: job, err: err}
	}
}

func (w Watch) cancel() tea.Cmd {
	src, id := w.src, w.jobID
	return func() tea.Msg {
		return cancelMsg{err: src.Cancel(id)}
	}
}

// Update implements tea.Model
func (w Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return w.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		w.width = msg.Width
		return w, nil

	case eventsMsg:
		if msg.err != nil {
			w.err = msg.err
			return w, tea.Quit
		}
		if msg.job.ID != "" {
			w.job = msg.job
		}
		for _, entry := range msg.entries {
			if entry.Seq > w.lastSeq {
				w.entries = append(w.entries, entry)
				w.lastSeq = entry.Seq
			}
		}
		if w.job.State.IsTerminal() {
			return w, tea.Quit
		}
		return w, w.wait()

	case cancelMsg:
		if msg.err != nil && !w.job.State.IsTerminal() {
			w.err = msg.err
		}
		return w, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		return w, cmd
	}

	return w, nil
}

func (w Watch) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "c", "ctrl+c":
		if w.job.State.IsTerminal() {
			return w, tea.Quit
		}
		if w.cancelling {
			return w, nil
		}
		w.cancelling = true
		return w, w.cancel()
	case "q":
		if w.job.State.IsTerminal() || w.cancelling {
			return w, tea.Quit
		}
	}
	return w, nil
}

// View implements tea.Model
func (w Watch) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Image Harvester"))
	b.WriteString("\n")
	if w.job.TargetURL != "" {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%s → %s", w.job.TargetURL, w.job.Label)))
		b.WriteString("\n\n")
	}

	b.WriteString(w.stateLine())
	b.WriteString("\n")
	b.WriteString(renderBar(w.job.Progress, barWidth))
	b.WriteString(fmt.Sprintf(" %3d%%  %d/%d images\n\n", w.job.Progress, w.job.DownloadedCount, w.job.AssetCount))

	start := 0
	if len(w.entries) > logTail {
		start = len(w.entries) - logTail
	}
	for _, entry := range w.entries[start:] {
		b.WriteString(renderEntry(entry))
		b.WriteString("\n")
	}

	switch {
	case w.job.ArchiveReady:
		b.WriteString("\n")
		b.WriteString(doneStyle.Render("Archive: " + w.job.ArchivePath))
		b.WriteString("\n")
	case w.job.State == domain.JobStateFailed:
		b.WriteString("\n")
		b.WriteString(failedStyle.Render("Failed: " + w.job.FailureReason))
		b.WriteString("\n")
	default:
		b.WriteString(helpStyle.Render("c cancel • q quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (w Watch) stateLine() string {
	state := string(w.job.State)
	switch {
	case w.job.State == domain.JobStateDone:
		return doneStyle.Render("✓ " + state)
	case w.job.State == domain.JobStateFailed:
		return failedStyle.Render("✗ " + state)
	case w.cancelling:
		return w.spinner.View() + " " + state + " (cancelling)"
	default:
		return w.spinner.View() + " " + state
	}
}

func renderBar(progress, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress * width / 100
	return strings.Repeat(barFull.String(), filled) + strings.Repeat(barEmpty.String(), width-filled)
}

func renderEntry(entry domain.LogEntry) string {
	line := entry.Timestamp.Format("15:04:05") + " " + entry.Message
	switch entry.Level {
	case domain.LogLevelWarn:
		return warnLineStyle.Render(line)
	case domain.LogLevelError:
		return errorLineStyle.Render(line)
	default:
		return line
	}
}
