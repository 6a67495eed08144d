package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"image-harvester/internal/domain"
)

var (
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when an ID is registered twice.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrTerminal is returned when mutating a done or failed job.
	ErrTerminal = errors.New("job already finished")
)

// Manager is the registry of harvest jobs and their state transitions.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*record
	now  func() time.Time
}

type record struct {
	mu  sync.Mutex
	job domain.Job
	log *EventLog
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a pending job.
func (m *Manager) Create(id, targetURL, label string) (domain.Job, error) {
	if id == "" {
		return domain.Job{}, fmt.Errorf("job id is required")
	}

	now := m.now()
	rec := &record{
		job: domain.Job{
			ID:        id,
			State:     domain.JobStatePending,
			TargetURL: targetURL,
			Label:     label,
			CreatedAt: now,
			UpdatedAt: now,
		},
		log: NewEventLog(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[id]; exists {
		return domain.Job{}, ErrDuplicateJob
	}
	m.jobs[id] = rec
	return rec.snapshot(), nil
}

// Transition moves a job forward through the pipeline or into failed.
// Repeating the current state is a no-op.
func (m *Manager) Transition(id string, state domain.JobState) error {
	return m.update(id, func(job *domain.Job) error {
		if job.State == state {
			return nil
		}
		if state == domain.JobStateDone {
			return fmt.Errorf("done requires an archive path")
		}
		if !isValidTransition(job.State, state) {
			return fmt.Errorf("invalid transition: %s -> %s", job.State, state)
		}
		job.State = state
		return nil
	})
}

// SetProgress raises the progress percentage. Decreases are ignored and
// 100 is reserved for completed jobs.
func (m *Manager) SetProgress(id string, progress int) error {
	return m.update(id, func(job *domain.Job) error {
		if progress > 99 {
			progress = 99
		}
		if progress > job.Progress {
			job.Progress = progress
		}
		return nil
	})
}

// SetAssetCount records how many candidates the download stage will fetch.
func (m *Manager) SetAssetCount(id string, n int) error {
	return m.update(id, func(job *domain.Job) error {
		if n < 0 {
			n = 0
		}
		job.AssetCount = n
		if job.DownloadedCount > n {
			job.DownloadedCount = n
		}
		return nil
	})
}

// SetDownloaded records how many candidates were saved so far.
func (m *Manager) SetDownloaded(id string, n int) error {
	return m.update(id, func(job *domain.Job) error {
		if n > job.AssetCount {
			n = job.AssetCount
		}
		if n > job.DownloadedCount {
			job.DownloadedCount = n
		}
		return nil
	})
}

// AppendLog adds one entry to the job log.
func (m *Manager) AppendLog(id string, level domain.LogLevel, message string) (domain.LogEntry, error) {
	rec, ok := m.record(id)
	if !ok {
		return domain.LogEntry{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.job.State.IsTerminal() {
		return domain.LogEntry{}, ErrTerminal
	}
	rec.job.UpdatedAt = m.now()
	return rec.log.Append(level, message), nil
}

// Complete marks an archiving job done and publishes its archive path.
func (m *Manager) Complete(id, archivePath string) error {
	return m.update(id, func(job *domain.Job) error {
		if !isValidTransition(job.State, domain.JobStateDone) {
			return fmt.Errorf("invalid transition: %s -> %s", job.State, domain.JobStateDone)
		}
		finished := m.now()
		job.State = domain.JobStateDone
		job.Progress = 100
		job.ArchivePath = archivePath
		job.FinishedAt = &finished
		return nil
	})
}

// Fail marks an active job failed with a human-readable reason.
func (m *Manager) Fail(id, reason string) error {
	return m.update(id, func(job *domain.Job) error {
		finished := m.now()
		job.State = domain.JobStateFailed
		job.FailureReason = reason
		job.FinishedAt = &finished
		return nil
	})
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (domain.Job, bool) {
	rec, ok := m.record(id)
	if !ok {
		return domain.Job{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), true
}

// List returns snapshots of every job, newest first.
func (m *Manager) List() []domain.Job {
	m.mu.RLock()
	records := make([]*record, 0, len(m.jobs))
	for _, rec := range m.jobs {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	out := make([]domain.Job, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		out = append(out, rec.snapshot())
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Events returns log entries newer than since.
func (m *Manager) Events(id string, since int64) ([]domain.LogEntry, bool) {
	rec, ok := m.record(id)
	if !ok {
		return nil, false
	}
	return rec.log.Since(since), true
}

// Wait blocks until the job has entries newer than since, the job is
// finished, or ctx is done. It returns the new entries and the job snapshot.
func (m *Manager) Wait(ctx context.Context, id string, since int64) ([]domain.LogEntry, domain.Job, error) {
	rec, ok := m.record(id)
	if !ok {
		return nil, domain.Job{}, ErrNotFound
	}

	for {
		rec.mu.Lock()
		changed := rec.log.Changed()
		entries := rec.log.Since(since)
		snapshot := rec.snapshot()
		rec.mu.Unlock()

		if len(entries) > 0 || snapshot.State.IsTerminal() {
			return entries, snapshot, nil
		}

		select {
		case <-ctx.Done():
			return nil, snapshot, ctx.Err()
		case <-changed:
		}
	}
}

func (m *Manager) record(id string) (*record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	return rec, ok
}

// update applies fn under the record lock and wakes waiters on success.
func (m *Manager) update(id string, fn func(job *domain.Job) error) error {
	rec, ok := m.record(id)
	if !ok {
		return ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.job.State.IsTerminal() {
		return ErrTerminal
	}
	if err := fn(&rec.job); err != nil {
		return err
	}
	rec.job.UpdatedAt = m.now()
	rec.log.Notify()
	return nil
}

// snapshot copies the job with its log. Callers hold rec.mu.
func (r *record) snapshot() domain.Job {
	job := r.job
	job.Log = r.log.Since(0)
	if job.Log == nil {
		job.Log = []domain.LogEntry{}
	}
	job.ArchiveReady = job.State == domain.JobStateDone
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		job.FinishedAt = &finished
	}
	return job
}

// stateOrder is the canonical pipeline order.
var stateOrder = map[domain.JobState]int{
	domain.JobStatePending:     0,
	domain.JobStateRevealing:   1,
	domain.JobStateExtracting:  2,
	domain.JobStateDownloading: 3,
	domain.JobStateArchiving:   4,
	domain.JobStateDone:        5,
}

// isValidTransition allows forward moves, skips included, and failure from
// any active state. Done is reachable only from archiving.
func isValidTransition(from, to domain.JobState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == domain.JobStateFailed {
		return true
	}
	if to == domain.JobStateDone {
		return from == domain.JobStateArchiving
	}
	fromRank, okFrom := stateOrder[from]
	toRank, okTo := stateOrder[to]
	return okFrom && okTo && toRank > fromRank
}
