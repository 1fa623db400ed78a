package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.kbresolve/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kbresolve", "logs")
	}
	return filepath.Join(home, ".kbresolve", "logs")
}

// DefaultLogPath returns the default resolver log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "kbresolve.log")
}

// FindLogFile attempts to find the log file for viewing.
// An explicit path takes precedence; otherwise the default path is checked.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Run a command with --debug first.\nExpected at: %s", globalPath)
}
