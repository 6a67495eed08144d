package config

import (
	"os"
	"path/filepath"

	"image-harvester/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		DownloadDir:         filepath.Join(homeDir, "Downloads", "image-harvester"),
		ListenAddr:          ":8080",
		RenderTimeoutSec:    30,
		ElementWaitSec:      10,
		FilterPauseMs:       2000,
		ImagesPauseMs:       3000,
		ScrollIterations:    12,
		ScrollPauseMs:       2000,
		StopOnStableHeight:  true,
		FetchTimeoutSec:     20,
		FetchAttempts:       2,
		MinImageBytes:       1024,
		MaxImageBytes:       50 << 20,
		DownloadConcurrency: 4,
	}
}

// Normalize fills zero or out-of-range numeric fields from defaults and trims paths.
func Normalize(s domain.Settings) domain.Settings {
	d := DefaultSettings()

	if s.DownloadDir == "" {
		s.DownloadDir = d.DownloadDir
	}
	if s.ListenAddr == "" {
		s.ListenAddr = d.ListenAddr
	}
	if s.RenderTimeoutSec <= 0 {
		s.RenderTimeoutSec = d.RenderTimeoutSec
	}
	if s.ElementWaitSec <= 0 {
		s.ElementWaitSec = d.ElementWaitSec
	}
	if s.FilterPauseMs < 0 {
		s.FilterPauseMs = d.FilterPauseMs
	}
	if s.ImagesPauseMs < 0 {
		s.ImagesPauseMs = d.ImagesPauseMs
	}
	if s.ScrollIterations <= 0 {
		s.ScrollIterations = d.ScrollIterations
	}
	if s.ScrollPauseMs < 0 {
		s.ScrollPauseMs = d.ScrollPauseMs
	}
	if s.FetchTimeoutSec <= 0 {
		s.FetchTimeoutSec = d.FetchTimeoutSec
	}
	if s.FetchAttempts <= 0 {
		s.FetchAttempts = d.FetchAttempts
	}
	if s.MinImageBytes < 0 {
		s.MinImageBytes = 0
	}
	if s.MaxImageBytes <= 0 {
		s.MaxImageBytes = d.MaxImageBytes
	}
	if s.DownloadConcurrency <= 0 {
		s.DownloadConcurrency = d.DownloadConcurrency
	}
	return s
}
