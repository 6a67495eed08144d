package diagnostics

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"image-harvester/internal/domain"
)

// browserNames are the executables chromedp can drive, in lookup order.
var browserNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// browserPaths are well-known install locations that are usually not on PATH.
var browserPaths = []string{
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// Checker validates the browser, download folder, and related settings.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkBrowser(settings.BrowserPath),
		c.checkDownloadDir(settings.DownloadDir),
		checkListenAddr(settings.ListenAddr),
		checkImageLimits(settings.MinImageBytes, settings.MaxImageBytes),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkBrowser verifies a Chrome-compatible browser can be launched.
func (c *Checker) checkBrowser(configured string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "browser",
		Name: "Browser",
	}

	if path := strings.TrimSpace(configured); path != "" {
		info, err := c.stat(path)
		if err != nil || info.IsDir() {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Configured browser not found: %s", path)
			item.Hint = "Point browser path at a Chrome or Chromium executable, or clear it to use auto-detection."
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Using configured browser: %s", path)
		return item
	}

	for _, name := range browserNames {
		if path, err := c.lookPath(name); err == nil {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Found %s at %s", name, path)
			return item
		}
	}
	for _, path := range browserPaths {
		if info, err := c.stat(path); err == nil && !info.IsDir() {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Found browser at %s", path)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = "No Chrome or Chromium browser found."
	item.Hint = "Install Google Chrome or Chromium, or set browser path in settings."
	return item
}

// checkDownloadDir validates download directory existence and write access.
func (c *Checker) checkDownloadDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "download_dir",
		Name: "Download directory",
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Download directory is empty."
		item.Hint = "Set a directory where image folders and archives can be written."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create download directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Download directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for downloaded images."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkListenAddr warns about an address the HTTP server cannot bind.
func checkListenAddr(addr string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "listen_addr",
		Name: "Listen address",
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Invalid listen address: %q", addr)
		item.Hint = "Use host:port, for example :8080."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("HTTP server address: %s", addr)
	return item
}

// checkImageLimits warns when the size window rejects every image.
func checkImageLimits(minBytes, maxBytes int64) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "image_limits",
		Name: "Image size limits",
	}
	if maxBytes > 0 && minBytes > maxBytes {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Minimum size %d exceeds maximum %d; every image will be skipped.", minBytes, maxBytes)
		item.Hint = "Lower min image bytes or raise max image bytes."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Accepting images from %d bytes", minBytes)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

