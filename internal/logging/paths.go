package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.metaindexer/logs, or a temp-dir location when the
// home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".metaindexer", "logs")
	}
	return filepath.Join(home, ".metaindexer", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "metaindexer.log")
}
