package manager

import (
	"os"

	"llmcore/internal/locator"
)

// displayName is the model file name without directory or extension.
func displayName(path string) string { return locator.DisplayName(path) }

// fileSize returns the size of path in bytes, or 0 when it cannot be stat'ed.
func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
