package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}

// CleanSegmentDir removes stray segment part-files under dir that do not
// belong to any of the given video ids. Best effort; the first error is
// returned after attempting the rest.
func CleanSegmentDir(dir string, keepIDs []string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = true
	}
	var firstErr error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if keep[entry.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SanitizeLocator strips path traversal elements from a server-supplied
// source locator before it is used in a local path.
func SanitizeLocator(locator string) string {
	locator = strings.ReplaceAll(locator, "\\", "/")
	return filepath.Base(locator)
}
