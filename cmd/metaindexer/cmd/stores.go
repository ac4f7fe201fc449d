package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/store"
)

// stores bundles the index, its manifest and the writer lock.
type stores struct {
	index    *store.Index
	manifest *store.Manifest
	lock     *store.Lock
}

// openStores opens the index and manifest named by cfg. The index lock is
// taken first, so a second process fails fast with ERR_208 instead of
// blocking on the bleve files.
func openStores(cfg *config.Config) (*stores, error) {
	s := &stores{}

	if cfg.Index.Path != "" {
		l, err := store.NewLock(store.LockPathFor(cfg.Index.Path))
		if err != nil {
			return nil, merrors.New(merrors.ErrCodeFilePermission, "failed to create index lock", err)
		}
		if err := l.TryLock(); err != nil {
			return nil, err
		}
		s.lock = l
	}

	idx, err := store.Open(cfg.Index.Path)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.index = idx

	manifest, err := store.OpenManifest(cfg.Index.Manifest)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.manifest = manifest

	slog.Debug("stores_opened",
		slog.String("index", cfg.Index.Path),
		slog.String("manifest", cfg.Index.Manifest),
		slog.Bool("locked", s.lock != nil))
	return s, nil
}

// indexExists reports whether an on-disk index is present at path.
func indexExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Close closes the stores and releases the lock.
func (s *stores) Close() error {
	var errs []error
	if s.index != nil {
		errs = append(errs, s.index.Close())
		s.index = nil
	}
	if s.manifest != nil {
		errs = append(errs, s.manifest.Close())
		s.manifest = nil
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
		s.lock = nil
	}
	return errors.Join(errs...)
}
