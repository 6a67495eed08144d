// Package harvest runs the reveal, extract, download and archive stages for one job.
package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-harvester/internal/archive"
	"image-harvester/internal/domain"
	"image-harvester/internal/download"
	"image-harvester/internal/extract"
	"image-harvester/internal/reveal"
)

// Progress milestones after the reveal stage hands over at 55.
const (
	progressExtracting   = 60
	progressExtracted    = 65
	progressDownloadSpan = 25
	progressArchiving    = 92
	progressArchived     = 95
)

// Request contains the target page, output locations, and callbacks for one run.
type Request struct {
	TargetURL   string
	WorkDir     string
	ArchivePath string

	OnStage      func(stage domain.JobState)
	OnLog        func(level domain.LogLevel, message string)
	OnProgress   func(progress int)
	OnAssets     func(total int)
	OnDownloaded func(saved int)
}

// Result summarizes a successful run.
type Result struct {
	Candidates  int
	Saved       int
	Skipped     int
	Entries     int
	ArchivePath string
}

// PipelineError is a stage-aware error surfaced as the job's failure reason.
type PipelineError struct {
	Stage   domain.JobState `json:"stage"`
	Message string          `json:"message"`
	Err     error           `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Revealer produces the fully rendered markup of a page.
type Revealer interface {
	Reveal(ctx context.Context, url string, hooks reveal.Hooks) (string, error)
}

// Fetcher downloads candidate URLs into a directory.
type Fetcher interface {
	Download(ctx context.Context, candidates []string, destDir string, report func(download.Progress)) (download.Summary, error)
}

// Pipeline orchestrates one harvest job end to end.
type Pipeline struct {
	revealer Revealer
	fetcher  Fetcher
	resolve  func(pageURL, markup string) ([]string, error)
	writeZip func(srcDir, destPath string) (int, error)
	mkdirAll func(path string, perm os.FileMode) error
}

// NewPipeline constructs the production pipeline.
func NewPipeline(revealer Revealer, fetcher Fetcher) *Pipeline {
	return &Pipeline{
		revealer: revealer,
		fetcher:  fetcher,
		resolve:  extract.Resolve,
		writeZip: archive.WriteZip,
		mkdirAll: os.MkdirAll,
	}
}

// Run performs reveal, extraction, download, and archiving.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.TargetURL) == "" {
		return Result{}, &PipelineError{Stage: domain.JobStateRevealing, Message: "target url is required"}
	}
	if strings.TrimSpace(req.WorkDir) == "" || strings.TrimSpace(req.ArchivePath) == "" {
		return Result{}, &PipelineError{Stage: domain.JobStateDownloading, Message: "output location is required"}
	}

	emitStage(req.OnStage, domain.JobStateRevealing)
	markup, err := p.revealer.Reveal(ctx, req.TargetURL, reveal.Hooks{
		OnLog:      req.OnLog,
		OnProgress: req.OnProgress,
	})
	if err != nil {
		return Result{}, &PipelineError{Stage: domain.JobStateRevealing, Message: "page could not be revealed", Err: err}
	}

	emitStage(req.OnStage, domain.JobStateExtracting)
	emitProgress(req.OnProgress, progressExtracting)
	candidates, err := p.resolve(req.TargetURL, markup)
	if err != nil {
		return Result{}, &PipelineError{Stage: domain.JobStateExtracting, Message: "image urls could not be resolved", Err: err}
	}
	if len(candidates) == 0 {
		emitLog(req.OnLog, domain.LogLevelWarn, "No images found on page")
	} else {
		emitLog(req.OnLog, domain.LogLevelInfo, fmt.Sprintf("Found %d images", len(candidates)))
	}
	emitProgress(req.OnProgress, progressExtracted)

	emitStage(req.OnStage, domain.JobStateDownloading)
	if err := p.mkdirAll(req.WorkDir, 0o755); err != nil {
		return Result{}, &PipelineError{
			Stage:   domain.JobStateDownloading,
			Message: fmt.Sprintf("cannot create download folder: %s", req.WorkDir),
			Err:     err,
		}
	}
	stale, err := clearFiles(req.WorkDir)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   domain.JobStateDownloading,
			Message: fmt.Sprintf("cannot clear download folder: %s", req.WorkDir),
			Err:     err,
		}
	}
	if stale > 0 {
		emitLog(req.OnLog, domain.LogLevelWarn, fmt.Sprintf("Removed %d files left by an earlier job", stale))
	}
	if req.OnAssets != nil {
		req.OnAssets(len(candidates))
	}

	summary, err := p.fetcher.Download(ctx, candidates, req.WorkDir, func(progress download.Progress) {
		level := domain.LogLevelInfo
		if !progress.Outcome.Saved() {
			level = domain.LogLevelWarn
		}
		emitLog(req.OnLog, level, progress.Outcome.Describe())
		if req.OnDownloaded != nil {
			req.OnDownloaded(progress.Saved)
		}
		emitProgress(req.OnProgress, progressExtracted+progress.Processed*progressDownloadSpan/progress.Total)
	})
	if err != nil {
		return Result{}, &PipelineError{Stage: domain.JobStateDownloading, Message: "download interrupted", Err: err}
	}
	emitLog(req.OnLog, domain.LogLevelInfo, fmt.Sprintf("Downloaded %d of %d images", summary.Saved, summary.Total))

	emitStage(req.OnStage, domain.JobStateArchiving)
	emitProgress(req.OnProgress, progressArchiving)
	entries, err := p.writeZip(req.WorkDir, req.ArchivePath)
	if err != nil {
		return Result{}, &PipelineError{Stage: domain.JobStateArchiving, Message: "archive could not be written", Err: err}
	}
	emitLog(req.OnLog, domain.LogLevelInfo, fmt.Sprintf("Archive created with %d files", entries))
	emitProgress(req.OnProgress, progressArchived)

	return Result{
		Candidates:  len(candidates),
		Saved:       summary.Saved,
		Skipped:     summary.Skipped,
		Entries:     entries,
		ArchivePath: req.ArchivePath,
	}, nil
}

// clearFiles removes the regular files directly inside dir so the archive only
// holds what this run saved. Subdirectories are left alone.
func clearFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(domain.JobState), stage domain.JobState) {
	if cb != nil {
		cb(stage)
	}
}

func emitLog(cb func(domain.LogLevel, string), level domain.LogLevel, message string) {
	if cb != nil {
		cb(level, message)
	}
}

func emitProgress(cb func(int), progress int) {
	if cb != nil {
		cb(progress)
	}
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	revealer Revealer,
	fetcher Fetcher,
	resolve func(pageURL, markup string) ([]string, error),
	writeZip func(srcDir, destPath string) (int, error),
	mkdirAll func(path string, perm os.FileMode) error,
) *Pipeline {
	p := NewPipeline(revealer, fetcher)
	if resolve != nil {
		p.resolve = resolve
	}
	if writeZip != nil {
		p.writeZip = writeZip
	}
	if mkdirAll != nil {
		p.mkdirAll = mkdirAll
	}
	return p
}
