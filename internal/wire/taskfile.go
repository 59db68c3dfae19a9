package wire

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CreateTaskFile writes content to a correctly named message file in dir,
// creating dir if needed, and returns the file's path.
func CreateTaskFile(dir string, now time.Time, from, to Agent, typ Type, subject, content string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("wire: dir is required")
	}
	name, err := FormatName(now, from, to, typ, subject)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("wire: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("wire: write %s: %w", path, err)
	}
	return path, nil
}
