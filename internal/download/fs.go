package download

import (
	"fmt"
	"os"
)

// TempPrefix marks in-flight files so readers of the directory can skip them.
const TempPrefix = ".tmp-"

// stageFile writes data to a temp file inside dir and returns its path.
// The file only becomes visible under its final name through commitFile.
func stageFile(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	return tmpPath, nil
}

// commitFile renames a staged file into place, removing it on failure.
func commitFile(tmpPath, path string) error {
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
