// Package collector coordinates harvest jobs and exposes their status to callers.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"image-harvester/internal/domain"
	"image-harvester/internal/harvest"
	"image-harvester/internal/jobs"
	"image-harvester/internal/logging"
)

var (
	// ErrInvalidInput is returned by Submit for a blank or unusable url or label.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown jobs and for archives that are not ready.
	ErrNotFound = errors.New("not found")
	// ErrNotRunning is returned when cancelling a finished job.
	ErrNotRunning = errors.New("job is not running")
	// ErrLabelInUse is returned when an active job already writes to the same folder.
	ErrLabelInUse = errors.New("label is used by a running job")
	// ErrShuttingDown is returned by Submit after Shutdown started.
	ErrShuttingDown = errors.New("service is shutting down")
)

// CancelledReason is the failure reason recorded for cancelled jobs.
const CancelledReason = "job cancelled"

// Runner executes one harvest job.
type Runner interface {
	Run(ctx context.Context, req harvest.Request) (harvest.Result, error)
}

// Options configures a Service.
type Options struct {
	DownloadDir string
	Runner      Runner
	Logger      *zap.Logger
	// OnEntry is called after every job log entry is stored.
	OnEntry func(jobID string, entry domain.LogEntry)
	// NewID overrides job ID generation.
	NewID func() string
}

// Service runs harvest jobs in the background and answers status queries.
type Service struct {
	jobs    *jobs.Manager
	logger  *zap.Logger
	onEntry func(jobID string, entry domain.LogEntry)
	newID   func() string

	mu          sync.Mutex
	downloadDir string
	runner      Runner
	cancels     map[string]context.CancelFunc
	labels      map[string]string
	owners      map[string]string
	closing     bool
	wg          sync.WaitGroup
}

// New builds a service around a configured runner.
func New(opts Options) *Service {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		jobs:        jobs.NewManager(),
		logger:      logging.OrNop(opts.Logger),
		onEntry:     opts.OnEntry,
		newID:       newID,
		downloadDir: opts.DownloadDir,
		runner:      opts.Runner,
		cancels:     make(map[string]context.CancelFunc),
		labels:      make(map[string]string),
		owners:      make(map[string]string),
	}
}

// Reconfigure swaps the runner and download directory used by jobs submitted afterwards.
func (s *Service) Reconfigure(downloadDir string, runner Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadDir = downloadDir
	if runner != nil {
		s.runner = runner
	}
}

// Submit registers a job for targetURL and starts it. It returns immediately.
func (s *Service) Submit(targetURL, label string) (string, error) {
	targetURL = strings.TrimSpace(targetURL)
	if targetURL == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	parsed, err := url.Parse(targetURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: url must be an absolute http(s) address", ErrInvalidInput)
	}
	if strings.TrimSpace(label) == "" {
		return "", fmt.Errorf("%w: folder name is required", ErrInvalidInput)
	}
	safe := SanitizeLabel(label)
	if safe == "" {
		return "", fmt.Errorf("%w: folder name %q is not usable", ErrInvalidInput, label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return "", ErrShuttingDown
	}
	if s.runner == nil {
		return "", fmt.Errorf("no job runner configured")
	}
	for _, active := range s.labels {
		if strings.EqualFold(active, safe) {
			return "", fmt.Errorf("%w: %s", ErrLabelInUse, safe)
		}
	}

	id := s.newID()
	if _, err := s.jobs.Create(id, targetURL, safe); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[id] = cancel
	s.labels[id] = safe
	s.owners[labelKey(safe)] = id
	req := harvest.Request{
		TargetURL:   targetURL,
		WorkDir:     filepath.Join(s.downloadDir, safe),
		ArchivePath: filepath.Join(s.downloadDir, safe+".zip"),
	}

	s.wg.Add(1)
	go s.run(ctx, id, s.runner, req)

	s.logger.Info("job submitted", zap.String("job_id", id), zap.String("url", targetURL), zap.String("label", safe))
	return id, nil
}

// Status returns a snapshot of one job.
func (s *Service) Status(id string) (domain.Job, bool) {
	return s.jobs.Get(id)
}

// List returns every known job, newest first.
func (s *Service) List() []domain.Job {
	return s.jobs.List()
}

// Events returns log entries newer than since.
func (s *Service) Events(id string, since int64) ([]domain.LogEntry, bool) {
	return s.jobs.Events(id, since)
}

// WaitEvents blocks until new entries arrive, the job finishes, or ctx is done.
func (s *Service) WaitEvents(ctx context.Context, id string, since int64) ([]domain.LogEntry, domain.Job, error) {
	entries, job, err := s.jobs.Wait(ctx, id, since)
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, domain.Job{}, ErrNotFound
	}
	return entries, job, err
}

// Archive opens the finished archive of a done job. A later job with the same
// label rewrites the folder and archive, so the earlier job's archive is gone.
func (s *Service) Archive(id string) (*os.File, error) {
	job, ok := s.jobs.Get(id)
	if !ok || !job.ArchiveReady || job.ArchivePath == "" {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	owner := s.owners[labelKey(job.Label)]
	s.mu.Unlock()
	if owner != id {
		return nil, fmt.Errorf("%w: archive was replaced by job %s", ErrNotFound, owner)
	}
	f, err := os.Open(job.ArchivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return f, nil
}

// Cancel stops a running job. The job ends as failed with CancelledReason.
func (s *Service) Cancel(id string) error {
	job, ok := s.jobs.Get(id)
	if !ok {
		return ErrNotFound
	}
	if job.State.IsTerminal() {
		return ErrNotRunning
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	s.append(id, domain.LogLevelWarn, "Cancellation requested")
	cancel()
	return nil
}

// Shutdown cancels every running job and waits for them to finish or ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one job and records its terminal state.
func (s *Service) run(ctx context.Context, id string, runner Runner, req harvest.Request) {
	defer s.wg.Done()
	defer s.release(id)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job_id", id), zap.Any("panic", r))
			s.fail(id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.append(id, domain.LogLevelInfo, "Job started")

	req.OnStage = func(stage domain.JobState) {
		if err := s.jobs.Transition(id, stage); err != nil {
			s.logger.Warn("state transition rejected", zap.String("job_id", id), zap.String("state", string(stage)), zap.Error(err))
		}
	}
	req.OnLog = func(level domain.LogLevel, message string) {
		s.append(id, level, message)
	}
	req.OnProgress = func(progress int) {
		_ = s.jobs.SetProgress(id, progress)
	}
	req.OnAssets = func(total int) {
		_ = s.jobs.SetAssetCount(id, total)
	}
	req.OnDownloaded = func(saved int) {
		_ = s.jobs.SetDownloaded(id, saved)
	}

	result, err := runner.Run(ctx, req)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			reason = CancelledReason
		}
		s.fail(id, reason)
		return
	}

	if err := s.jobs.Transition(id, domain.JobStateArchiving); err != nil {
		s.fail(id, fmt.Sprintf("job could not finish: %v", err))
		return
	}
	s.append(id, domain.LogLevelInfo, "Done")
	if err := s.jobs.Complete(id, result.ArchivePath); err != nil {
		s.logger.Error("job completion rejected", zap.String("job_id", id), zap.Error(err))
		return
	}
	s.logger.Info("job done",
		zap.String("job_id", id),
		zap.Int("saved", result.Saved),
		zap.Int("skipped", result.Skipped),
		zap.String("archive", result.ArchivePath),
	)
}

// fail logs reason as the last entry and marks the job failed.
func (s *Service) fail(id, reason string) {
	s.append(id, domain.LogLevelError, "Failed: "+reason)
	if err := s.jobs.Fail(id, reason); err != nil {
		s.logger.Warn("fail rejected", zap.String("job_id", id), zap.Error(err))
		return
	}
	s.logger.Warn("job failed", zap.String("job_id", id), zap.String("reason", reason))
}

// append stores one job log entry and mirrors it to the process logger.
func (s *Service) append(id string, level domain.LogLevel, message string) {
	entry, err := s.jobs.AppendLog(id, level, message)
	if err != nil {
		return
	}

	fields := []zap.Field{zap.String("job_id", id), zap.Int64("seq", entry.Seq)}
	switch level {
	case domain.LogLevelError:
		s.logger.Error(message, fields...)
	case domain.LogLevelWarn:
		s.logger.Warn(message, fields...)
	default:
		s.logger.Debug(message, fields...)
	}

	if s.onEntry != nil {
		s.onEntry(id, entry)
	}
}

// release drops the cancel handle and label reservation of a finished job.
func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	delete(s.labels, id)
}

// labelKey folds case so labels that share a folder on case-insensitive file systems collide.
func labelKey(label string) string {
	return strings.ToLower(label)
}
