package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marcinmilkowski/metaindexer/internal/scanner"
)

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options
	excluded  map[string]bool

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu      sync.RWMutex
	root    string
	dirs    map[string]bool
	stopped bool

	droppedBatches atomic.Uint64
}

// New creates a watcher. Start must be called to begin watching.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fs:        fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		opts:      opts,
		excluded:  scanner.AbsPaths(opts.ExcludePaths),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		dirs:      make(map[string]bool),
	}, nil
}

// Start registers every directory under path and processes events until
// ctx is cancelled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root is not a directory: %s", root)
	}

	w.mu.Lock()
	w.root = root
	w.mu.Unlock()

	if err := w.addTree(root, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	slog.Debug("watcher_started", slog.String("root", root), slog.Int("dirs", w.watchedDirs()))

	go w.forward(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// addTree watches dir and its subdirectories. When announce is set, files
// already inside are reported as created; a directory moved into the tree
// produces no per-file events of its own.
func (w *Watcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && (w.skipDir(d.Name()) || w.excluded[path]) {
				return filepath.SkipDir
			}
			if err := w.fs.Add(path); err != nil {
				return err
			}
			w.mu.Lock()
			w.dirs[path] = true
			w.mu.Unlock()
			return nil
		}
		if announce && w.accept(path) {
			w.debouncer.Add(w.event(path, OpCreate, false))
		}
		return nil
	})
}

func (w *Watcher) skipDir(name string) bool {
	return scanner.SkippedDir(name) || slices.Contains(w.opts.ExcludeDirs, name)
}

func (w *Watcher) accept(path string) bool {
	if w.excluded[path] {
		return false
	}
	return len(w.opts.Extensions) == 0 || scanner.HasExtension(path, w.opts.Extensions)
}

func (w *Watcher) event(abs string, op Operation, isDir bool) FileEvent {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		rel = abs
	}
	return FileEvent{Path: rel, AbsPath: abs, Operation: op, IsDir: isDir, Timestamp: time.Now()}
}

// handle converts an fsnotify event. Renames report the old name as deleted;
// the new name arrives as its own create event.
func (w *Watcher) handle(ev fsnotify.Event) {
	abs := filepath.Clean(ev.Name)
	if w.hidden(abs) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.mu.Lock()
		wasDir := w.dirs[abs]
		if wasDir {
			for d := range w.dirs {
				if d == abs || isWithin(d, abs) {
					delete(w.dirs, d)
				}
			}
		}
		w.mu.Unlock()
		if wasDir || w.accept(abs) {
			w.debouncer.Add(w.event(abs, OpDelete, wasDir))
		}

	case ev.Has(fsnotify.Create):
		info, err := os.Stat(abs)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.skipDir(filepath.Base(abs)) {
				return
			}
			if err := w.addTree(abs, true); err != nil {
				w.emitError(fmt.Errorf("watch %s: %w", abs, err))
			}
			return
		}
		if w.accept(abs) {
			w.debouncer.Add(w.event(abs, OpCreate, false))
		}

	case ev.Has(fsnotify.Write):
		if w.accept(abs) {
			w.debouncer.Add(w.event(abs, OpModify, false))
		}
	}
}

// hidden reports whether abs is excluded or lies in a skipped directory
// below the root.
func (w *Watcher) hidden(abs string) bool {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return false
	}
	if rel == "." || w.excluded[abs] {
		return true
	}
	for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
		if w.skipDir(filepath.Base(dir)) || w.excluded[filepath.Join(w.root, dir)] {
			return true
		}
	}
	return false
}

func isWithin(path, dir string) bool {
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

func (w *Watcher) watchedDirs() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.dirs)
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.droppedBatches.Add(1)
		slog.Warn("event_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases the fsnotify watcher and closes both channels. Safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	err := w.fs.Close()
	close(w.events)
	close(w.errors)
	return err
}

// Events returns debounced batches. Closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watcher errors. Closed by Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// DroppedBatches counts batches lost to a full event buffer.
func (w *Watcher) DroppedBatches() uint64 { return w.droppedBatches.Load() }

// Root returns the watched directory.
func (w *Watcher) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}
