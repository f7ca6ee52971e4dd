package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the log directory (~/.flashgrep/logs/) that the
// logging hook in cmd/flashgrep/cmd/root.go writes to and the log viewer
// reads from. Falls back to the temp directory if the home directory is
// unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".flashgrep", "logs")
	}
	return filepath.Join(home, ".flashgrep", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "flashgrep.log")
}

// FindLogFile locates the log file to view: an explicit path if given,
// otherwise the global default.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no log file found. Run a flashgrep command first.\nExpected at: %s", path)
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
