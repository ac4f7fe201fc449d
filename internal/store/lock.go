package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
)

// Lock is an exclusive cross-process lock guarding index writes.
type Lock struct {
	mu    sync.Mutex
	flock *flock.Flock
	path  string
}

// LockPathFor returns the lock file used for the index at indexPath.
func LockPathFor(indexPath string) string {
	return filepath.Clean(indexPath) + ".lock"
}

// OwnedPaths lists the on-disk locations the stores write: the index
// directory, its lock file, and the manifest with its WAL companions. Empty
// paths (in-memory stores) contribute nothing.
func OwnedPaths(indexPath, manifestPath string) []string {
	var paths []string
	if indexPath != "" {
		paths = append(paths, filepath.Clean(indexPath), LockPathFor(indexPath))
	}
	if manifestPath != "" {
		m := filepath.Clean(manifestPath)
		paths = append(paths, m, m+"-wal", m+"-shm", m+"-journal")
	}
	return paths
}

// NewLock creates a lock backed by the file at path. The directory is created if needed.
func NewLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Lock{flock: flock.New(path), path: path}, nil
}

// TryLock acquires the lock without blocking. It fails with ERR_208 when
// another process holds it.
func (l *Lock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.flock.TryLock()
	if err != nil {
		return merrors.New(merrors.ErrCodeIndexLocked, "failed to acquire index lock", err).
			WithDetail("lock", l.path)
	}
	if !ok {
		return merrors.New(merrors.ErrCodeIndexLocked, "index is being written by another process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Wait for the other metaindexer process to finish")
	}
	return nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flock.Unlock()
}

// Locked reports whether this Lock currently holds the file lock.
func (l *Lock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flock.Locked()
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }
