package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"image-harvester/internal/browser"
	"image-harvester/internal/collector"
	"image-harvester/internal/config"
	"image-harvester/internal/diagnostics"
	"image-harvester/internal/domain"
	"image-harvester/internal/harvest"
	"image-harvester/internal/logging"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// JobEventName is the runtime event carrying new job log entries.
const JobEventName = "job:event"

// shutdownTimeout bounds how long closing the window waits for jobs.
const shutdownTimeout = 10 * time.Second

// JobEvent is pushed to the UI for every new job log entry.
type JobEvent struct {
	JobID string          `json:"jobId"`
	Entry domain.LogEntry `json:"entry"`
}

// App wires configuration, the harvest service, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Service     *collector.Service
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	logger      *zap.Logger
	newRunner   func(domain.Settings) collector.Runner
	installer   *installer

	mu         sync.Mutex
	runtimeCtx context.Context
	emit       func(ctx context.Context, name string, data ...interface{})
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	store := config.NewFileStore(config.DefaultPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logger, err := logging.New(settings.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	checker := diagnostics.NewChecker()
	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: checker.Run(settings),
		assets:      assets,
		checker:     checker,
		logger:      logger,
		newRunner:   productionRunner,
		emit:        wailsruntime.EventsEmit,
	}
	app.Service = collector.New(collector.Options{
		DownloadDir: settings.DownloadDir,
		Runner:      productionRunner(settings),
		Logger:      logger,
		OnEntry:     app.publishEntry,
	})
	return app, nil
}

// productionRunner builds a chromedp-backed pipeline for settings.
func productionRunner(settings domain.Settings) collector.Runner {
	return harvest.FromSettings(settings, browser.NewFactory(browser.OptionsFromSettings(settings)))
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Image Harvester",
		Width:       1100,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown cancels running jobs and detaches the runtime context.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Service.Shutdown(shutdownCtx); err != nil {
		a.log().Warn("jobs still running at exit", zap.Error(err))
	}
	_ = a.log().Sync()
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// PickDownloadDirectory opens a native directory picker for the download folder.
func (a *App) PickDownloadDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select download directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenDownloadFolder opens the given path (or configured download dir) in file manager.
func (a *App) OpenDownloadFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.DownloadDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("download path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve download path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartHarvest submits a harvest job using the latest saved settings.
func (a *App) StartHarvest(targetURL, folder string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()
	a.Service.Reconfigure(settings.DownloadDir, a.newRunner(settings))

	id, err := a.Service.Submit(targetURL, folder)
	if err != nil {
		return domain.Job{}, err
	}
	job, _ := a.Service.Status(id)
	return job, nil
}

// CancelHarvest cancels a running job.
func (a *App) CancelHarvest(jobID string) error {
	return a.Service.Cancel(jobID)
}

// JobStatus returns a snapshot of one job.
func (a *App) JobStatus(jobID string) (domain.Job, error) {
	job, ok := a.Service.Status(jobID)
	if !ok {
		return domain.Job{}, collector.ErrNotFound
	}
	return job, nil
}

// JobEvents returns all log entries with sequence greater than sinceSeq.
func (a *App) JobEvents(jobID string, sinceSeq int64) ([]domain.LogEntry, error) {
	entries, ok := a.Service.Events(jobID, sinceSeq)
	if !ok {
		return nil, collector.ErrNotFound
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return entries, nil
}

// ListJobs returns every job of this session, newest first.
func (a *App) ListJobs() []domain.Job {
	return a.Service.List()
}

// publishEntry emits runtime push notifications for new job log entries.
func (a *App) publishEntry(jobID string, entry domain.LogEntry) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	emit := a.emit
	a.mu.Unlock()
	if ctx != nil && emit != nil {
		emit(ctx, JobEventName, JobEvent{JobID: jobID, Entry: entry})
	}
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

func (a *App) log() *zap.Logger {
	return logging.OrNop(a.logger)
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills defaults for unset values.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.DownloadDir = strings.TrimSpace(settings.DownloadDir)
	settings.BrowserPath = strings.TrimSpace(settings.BrowserPath)
	settings.ListenAddr = strings.TrimSpace(settings.ListenAddr)
	return config.Normalize(settings)
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
