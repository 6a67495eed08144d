package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"image-harvester/internal/domain"
)

func fakeInstaller(goos string, available map[string]bool, run func(name string, args ...string) error) (*installer, *[]string) {
	var calls []string
	return &installer{
		goos: goos,
		lookPath: func(name string) (string, error) {
			if available[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		run: func(name string, args ...string) error {
			calls = append(calls, formatCommand(name, args))
			if run == nil {
				return nil
			}
			return run(name, args...)
		},
	}, &calls
}

// TestFixBrowserSkipsInstallWhenPresent ensures an existing browser is left alone.
func TestFixBrowserSkipsInstallWhenPresent(t *testing.T) {
	inst, calls := fakeInstaller("linux", map[string]bool{"chromium": true, "apt-get": true}, nil)

	_, changed, err := inst.fixBrowser(domain.Settings{})
	if err != nil || changed {
		t.Fatalf("fixBrowser() = %v, %v", changed, err)
	}
	if len(*calls) != 0 {
		t.Fatalf("unexpected commands: %v", *calls)
	}
}

// TestFixBrowserClearsBrokenOverride ensures a missing configured path is reset.
func TestFixBrowserClearsBrokenOverride(t *testing.T) {
	inst, _ := fakeInstaller("linux", map[string]bool{"google-chrome": true}, nil)

	fixed, changed, err := inst.fixBrowser(domain.Settings{BrowserPath: filepath.Join(t.TempDir(), "missing-chrome")})
	if err != nil {
		t.Fatalf("fixBrowser() error = %v", err)
	}
	if !changed || fixed.BrowserPath != "" {
		t.Fatalf("changed = %v path = %q", changed, fixed.BrowserPath)
	}
}

// TestFixBrowserFallsBackToElevation ensures apt-get retries through sudo.
func TestFixBrowserFallsBackToElevation(t *testing.T) {
	inst, calls := fakeInstaller("linux", map[string]bool{"apt-get": true, "sudo": true}, func(name string, args ...string) error {
		if name == "apt-get" {
			return errors.New("permission denied")
		}
		return nil
	})

	if _, _, err := inst.fixBrowser(domain.Settings{}); err != nil {
		t.Fatalf("fixBrowser() error = %v", err)
	}
	want := []string{
		"apt-get update",
		"sudo -n apt-get update",
		"apt-get install -y chromium",
		"sudo -n apt-get install -y chromium",
	}
	if strings.Join(*calls, ";") != strings.Join(want, ";") {
		t.Fatalf("calls = %v, want %v", *calls, want)
	}
}

// TestFixBrowserWithoutPackageManager ensures a clear error is returned.
func TestFixBrowserWithoutPackageManager(t *testing.T) {
	inst, _ := fakeInstaller("darwin", map[string]bool{}, nil)

	_, _, err := inst.fixBrowser(domain.Settings{})
	if err == nil || !strings.Contains(err.Error(), "no supported package manager") {
		t.Fatalf("error = %v", err)
	}
}

// TestInstallOrFixDownloadDirCreatesDirectory ensures download dir fix creates missing directories.
func TestInstallOrFixDownloadDirCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "nested", "images")

	fixed, changed, err := installOrFixDownloadDir(domain.Settings{DownloadDir: dir})
	if err != nil {
		t.Fatalf("fix download dir: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if fixed.DownloadDir != dir {
		t.Fatalf("DownloadDir = %s, want %s", fixed.DownloadDir, dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("stat download dir: %v", err)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownItem ensures unsupported ids error out.
func TestInstallOrFixDiagnosticRejectsUnknownItem(t *testing.T) {
	app, _, _ := newTestApp(t, &fakeRunner{})

	if _, err := app.InstallOrFixDiagnostic("listen_addr"); err == nil {
		t.Fatal("expected error for unsupported item")
	}
	if _, err := app.InstallOrFixDiagnostic("  "); err == nil {
		t.Fatal("expected error for empty item")
	}
}

// TestInstallOrFixDiagnosticBrowserSavesSettings ensures settings changes are persisted.
func TestInstallOrFixDiagnosticBrowserSavesSettings(t *testing.T) {
	app, store, _ := newTestApp(t, &fakeRunner{})
	store.settings.BrowserPath = filepath.Join(t.TempDir(), "gone")
	app.installer, _ = fakeInstaller("linux", map[string]bool{"chromium": true}, nil)

	report, err := app.InstallOrFixDiagnostic("browser")
	if err != nil {
		t.Fatalf("InstallOrFixDiagnostic() error = %v", err)
	}
	if store.saved != 1 || store.settings.BrowserPath != "" {
		t.Fatalf("saved = %d path = %q", store.saved, store.settings.BrowserPath)
	}
	if len(report.Items) == 0 {
		t.Fatal("expected refreshed report")
	}
}
