package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"image-harvester/internal/browser"
	"image-harvester/internal/collector"
	"image-harvester/internal/config"
	"image-harvester/internal/domain"
	"image-harvester/internal/harvest"
	"image-harvester/internal/tui"
)

func main() {
	var folder string
	var configPath string
	var outDir string
	var showBrowser bool

	flag.StringVar(&folder, "folder", "", "Folder name for downloaded images")
	flag.StringVar(&configPath, "config", "", "Path to settings file (.json or .yaml)")
	flag.StringVar(&outDir, "out", "", "Download directory (overrides settings)")
	flag.BoolVar(&showBrowser, "show-browser", false, "Run the browser with a visible window")
	flag.Parse()

	if flag.NArg() != 1 || folder == "" {
		fmt.Fprintln(os.Stderr, "Usage: harvest -folder <name> [-out <dir>] [-config <path>] <url>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), folder, configPath, outDir, showBrowser); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(targetURL, folder, configPath, outDir string, showBrowser bool) error {
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	settings, err := config.NewFileStore(configPath).Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if outDir != "" {
		settings.DownloadDir = outDir
	}
	if showBrowser {
		settings.ShowBrowser = true
	}

	// The job log is rendered by the TUI, so the service stays quiet.
	svc := collector.New(collector.Options{
		DownloadDir: settings.DownloadDir,
		Runner:      harvest.FromSettings(settings, browser.NewFactory(browser.OptionsFromSettings(settings))),
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	}()

	id, err := svc.Submit(targetURL, folder)
	if err != nil {
		return err
	}

	final, err := tea.NewProgram(tui.NewWatch(svc, id)).Run()
	if err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}

	watch := final.(tui.Watch)
	if watch.Err() != nil {
		return watch.Err()
	}
	job := watch.Job()
	switch job.State {
	case domain.JobStateDone:
		fmt.Printf("Saved %d of %d images to %s\n", job.DownloadedCount, job.AssetCount, job.ArchivePath)
		return nil
	case domain.JobStateFailed:
		return fmt.Errorf("job failed: %s", job.FailureReason)
	default:
		return fmt.Errorf("job interrupted in state %s", job.State)
	}
}
