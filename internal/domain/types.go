package domain

import "time"

// JobState tracks each pipeline stage for a single harvest job.
type JobState string

const (
	JobStatePending     JobState = "pending"
	JobStateRevealing   JobState = "revealing"
	JobStateExtracting  JobState = "extracting"
	JobStateDownloading JobState = "downloading"
	JobStateArchiving   JobState = "archiving"
	JobStateDone        JobState = "done"
	JobStateFailed      JobState = "failed"
)

// IsTerminal reports whether no further mutation is allowed in this state.
func (s JobState) IsTerminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// LogLevel classifies job log entries.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is one timestamped line of a job's append-only log.
type LogEntry struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Job is a point-in-time snapshot of one harvest job.
type Job struct {
	ID              string     `json:"id"`
	State           JobState   `json:"state"`
	TargetURL       string     `json:"targetUrl"`
	Label           string     `json:"label"`
	Progress        int        `json:"progress"`
	AssetCount      int        `json:"assetCount"`
	DownloadedCount int        `json:"downloadedCount"`
	ArchivePath     string     `json:"archivePath,omitempty"`
	ArchiveReady    bool       `json:"archiveReady"`
	FailureReason   string     `json:"failureReason,omitempty"`
	Log             []LogEntry `json:"log"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	DownloadDir string `json:"downloadDir" yaml:"download_dir"`
	ListenAddr  string `json:"listenAddr" yaml:"listen_addr"`
	Debug       bool   `json:"debug" yaml:"debug"`

	BrowserPath        string `json:"browserPath,omitempty" yaml:"browser_path,omitempty"`
	ShowBrowser        bool   `json:"showBrowser" yaml:"show_browser"`
	RenderTimeoutSec   int    `json:"renderTimeoutSec" yaml:"render_timeout_sec"`
	ElementWaitSec     int    `json:"elementWaitSec" yaml:"element_wait_sec"`
	FilterPauseMs      int    `json:"filterPauseMs" yaml:"filter_pause_ms"`
	ImagesPauseMs      int    `json:"imagesPauseMs" yaml:"images_pause_ms"`
	ScrollIterations   int    `json:"scrollIterations" yaml:"scroll_iterations"`
	ScrollPauseMs      int    `json:"scrollPauseMs" yaml:"scroll_pause_ms"`
	StopOnStableHeight bool   `json:"stopOnStableHeight" yaml:"stop_on_stable_height"`
	RequireImagesView  bool   `json:"requireImagesView" yaml:"require_images_view"`

	FetchTimeoutSec     int   `json:"fetchTimeoutSec" yaml:"fetch_timeout_sec"`
	FetchAttempts       int   `json:"fetchAttempts" yaml:"fetch_attempts"`
	MinImageBytes       int64 `json:"minImageBytes" yaml:"min_image_bytes"`
	MaxImageBytes       int64 `json:"maxImageBytes" yaml:"max_image_bytes"`
	DownloadConcurrency int   `json:"downloadConcurrency" yaml:"download_concurrency"`
}

// RenderTimeout bounds the initial page load.
func (s Settings) RenderTimeout() time.Duration {
	return time.Duration(s.RenderTimeoutSec) * time.Second
}

// ElementWait bounds each optional control lookup.
func (s Settings) ElementWait() time.Duration {
	return time.Duration(s.ElementWaitSec) * time.Second
}

func (s Settings) FilterPause() time.Duration {
	return time.Duration(s.FilterPauseMs) * time.Millisecond
}

func (s Settings) ImagesPause() time.Duration {
	return time.Duration(s.ImagesPauseMs) * time.Millisecond
}

func (s Settings) ScrollPause() time.Duration {
	return time.Duration(s.ScrollPauseMs) * time.Millisecond
}

// FetchTimeout bounds one HTTP attempt for a single image.
func (s Settings) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSec) * time.Second
}
