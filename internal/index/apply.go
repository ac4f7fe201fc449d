package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcinmilkowski/metaindexer/internal/scanner"
	"github.com/marcinmilkowski/metaindexer/internal/watcher"
)

// Apply updates the index for a batch of watcher events: created and
// modified documents are (re)indexed, deleted files and directories are
// removed. Per-file problems are counted, not returned.
func (r *Runner) Apply(ctx context.Context, events []watcher.FileEvent) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	b := newBatch(r, r.opts.BatchSize)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		abs := ev.AbsPath
		if abs == "" {
			abs = filepath.Join(r.root, ev.Path)
		}
		abs = filepath.Clean(abs)

		if ev.Operation == watcher.OpDelete {
			paths, err := r.indexedUnder(ctx, abs, ev.IsDir)
			if err != nil {
				return nil, err
			}
			b.removes = append(b.removes, paths...)
			summary.Removed += len(paths)
			continue
		}

		if ev.IsDir || !scanner.HasExtension(abs, r.opts.Extensions) {
			continue
		}
		summary.Scanned++
		o := r.parse(ev.Path, abs)
		r.tally(o, summary)
		if err := b.add(ctx, o); err != nil {
			return nil, err
		}
	}

	if err := b.flush(ctx); err != nil {
		return nil, err
	}
	summary.Duration = time.Since(start)

	slog.Info("index_updated",
		slog.Int("events", len(events)),
		slog.Int("indexed", summary.Indexed),
		slog.Int("invalid", summary.Invalid),
		slog.Int("failed", summary.Failed),
		slog.Int("removed", summary.Removed),
		slog.Duration("duration", summary.Duration))

	return summary, nil
}

// indexedUnder returns the manifest paths affected by deleting path. For a
// directory every record below it is included.
func (r *Runner) indexedUnder(ctx context.Context, path string, isDir bool) ([]string, error) {
	if !isDir {
		rec, err := r.manifest.Get(ctx, path)
		if err != nil || rec == nil {
			return nil, err
		}
		return []string{path}, nil
	}

	records, err := r.manifest.All(ctx)
	if err != nil {
		return nil, err
	}
	prefix := path + string(filepath.Separator)
	var paths []string
	for _, rec := range records {
		if rec.Path == path || strings.HasPrefix(rec.Path, prefix) {
			paths = append(paths, rec.Path)
		}
	}
	return paths, nil
}
