// Package index runs JSON indexing: it scans a directory, validates and
// converts each file, and keeps the full-text index and the manifest in step.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcinmilkowski/metaindexer/internal/document"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/scanner"
	"github.com/marcinmilkowski/metaindexer/internal/schema"
	"github.com/marcinmilkowski/metaindexer/internal/store"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

// DefaultBatchSize is the number of documents written per index batch.
const DefaultBatchSize = 500

// Options configures a Runner.
type Options struct {
	// Root is the directory holding the JSON documents.
	Root string

	// Extensions selects document files. Empty means [".json"].
	Extensions []string

	// BatchSize is the number of documents per index write (0 = DefaultBatchSize).
	BatchSize int

	// Workers bounds concurrent file parsing (0 = NumCPU).
	Workers int

	// Strict keeps documents that fail schema validation out of the index.
	Strict bool

	// Force reprocesses files even when the manifest says they are unchanged.
	Force bool

	// ExcludePaths are skipped while scanning, typically the store files
	// when they live under Root.
	ExcludePaths []string
}

// Dependencies are the stores and collaborators a Runner needs.
type Dependencies struct {
	Index    *store.Index
	Manifest *store.Manifest

	// Validator may be nil, in which case every document is valid.
	Validator *schema.Validator

	// Renderer may be nil (progress is discarded).
	Renderer ui.Renderer
}

// Summary is the outcome of a run.
type Summary struct {
	Scanned  int           `json:"scanned"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Invalid  int           `json:"invalid"`
	Failed   int           `json:"failed"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Runner indexes a directory of JSON documents.
type Runner struct {
	index     *store.Index
	manifest  *store.Manifest
	validator *schema.Validator
	renderer  ui.Renderer
	opts      Options
	root      string
}

// NewRunner validates the dependencies and applies option defaults.
func NewRunner(deps Dependencies, opts Options) (*Runner, error) {
	if deps.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if deps.Manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}

	if opts.Root == "" {
		opts.Root = "."
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeInvalidPath, "failed to resolve documents directory", err).
			WithDetail("path", opts.Root)
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".json"}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.Discard{}
	}

	return &Runner{
		index:     deps.Index,
		manifest:  deps.Manifest,
		validator: deps.Validator,
		renderer:  renderer,
		opts:      opts,
		root:      root,
	}, nil
}

// Root returns the absolute documents directory.
func (r *Runner) Root() string { return r.root }

// outcome is the result of processing one file.
type outcome struct {
	rel    string
	doc    *document.Document
	record *store.FileRecord
	// remove drops any previous index entry and manifest record for the path.
	remove  string
	invalid bool
	err     error
}

// Run indexes every document under the root. Per-file problems are counted
// and reported; only store failures and cancellation abort the run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: r.root})
	files, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	summary.Scanned = len(files)

	known, err := r.manifest.All(ctx)
	if err != nil {
		return nil, err
	}
	records := make(map[string]*store.FileRecord, len(known))
	for _, rec := range known {
		records[rec.Path] = rec
	}

	var pending []*scanner.FileInfo
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		id := filepath.Clean(f.AbsPath)
		seen[id] = true
		if !r.opts.Force && records[id].Unchanged(f.Size, f.ModTime) {
			summary.Skipped++
			continue
		}
		pending = append(pending, f)
	}

	var gone []string
	for path := range records {
		if !seen[path] {
			gone = append(gone, path)
		}
	}

	if err := r.process(ctx, pending, summary); err != nil {
		return nil, err
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "removing deleted files"})
	if err := r.remove(ctx, gone); err != nil {
		return nil, err
	}
	summary.Removed = len(gone)

	if err := r.manifest.SetState(ctx, store.StateKeyRoot, r.root); err != nil {
		slog.Warn("failed to record documents root", slog.String("error", err.Error()))
	}

	summary.Duration = time.Since(start)
	r.renderer.Complete(ui.CompletionStats{
		Title:    "Indexing",
		Files:    summary.Scanned,
		Items:    summary.Indexed,
		ItemUnit: "documents",
		Skipped:  summary.Skipped,
		Removed:  summary.Removed,
		Duration: summary.Duration,
		Errors:   summary.Failed,
		Warnings: summary.Invalid,
	})

	slog.Info("index_complete",
		slog.String("root", r.root),
		slog.Int("scanned", summary.Scanned),
		slog.Int("indexed", summary.Indexed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("invalid", summary.Invalid),
		slog.Int("failed", summary.Failed),
		slog.Int("removed", summary.Removed),
		slog.Duration("duration", summary.Duration))

	return summary, nil
}

// scan lists the document files under the root. Unreadable entries are
// reported as warnings and skipped.
func (r *Runner) scan(ctx context.Context) ([]*scanner.FileInfo, error) {
	ch, err := scanner.Scan(ctx, scanner.Options{
		Root:         r.root,
		Extensions:   r.opts.Extensions,
		ExcludePaths: r.opts.ExcludePaths,
	})
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeFileNotFound, "failed to scan documents directory", err).
			WithDetail("path", r.root)
	}

	var files []*scanner.FileInfo
	for res := range ch {
		if res.Error != nil {
			r.renderer.AddError(ui.ErrorEvent{Err: res.Error, IsWarn: true})
			slog.Warn("scan_entry_failed", slog.String("error", res.Error.Error()))
			continue
		}
		files = append(files, res.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// process parses files on a bounded worker pool and streams the outcomes to
// a single writer goroutine that owns the batches.
func (r *Runner) process(ctx context.Context, files []*scanner.FileInfo, summary *Summary) error {
	if len(files) == 0 {
		return nil
	}
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageParsing, Total: len(files)})

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan *scanner.FileInfo)
	results := make(chan outcome, r.opts.Workers)

	g.Go(func() error {
		defer close(work)
		for _, f := range files {
			select {
			case work <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for range r.opts.Workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for f := range work {
				o := r.parse(f.Path, f.AbsPath)
				select {
				case results <- o:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		b := newBatch(r, r.opts.BatchSize)
		done := 0
		for o := range results {
			done++
			r.tally(o, summary)
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage: ui.StageParsing, Current: done, Total: len(files), CurrentFile: o.rel,
			})
			if err := b.add(gctx, o); err != nil {
				return err
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "writing final batch"})
		return b.flush(gctx)
	})

	return g.Wait()
}

// parse reads, validates and converts one file. It never returns an error
// directly; problems are carried in the outcome.
func (r *Runner) parse(rel, abs string) outcome {
	id := filepath.Clean(abs)
	o := outcome{rel: rel}

	info, err := os.Stat(id)
	if err != nil {
		o.err = merrors.New(merrors.ErrCodeFileNotFound, "failed to stat file", err)
		o.remove = id
		return o
	}
	data, err := os.ReadFile(id)
	if err != nil {
		o.err = merrors.New(merrors.ErrCodeFilePermission, "failed to read file", err)
		o.remove = id
		return o
	}

	doc, err := document.FromJSON(id, info, data)
	if err != nil {
		o.err = merrors.New(merrors.ErrCodeFileCorrupt, "malformed JSON", err)
		o.remove = id
		return o
	}

	o.record = &store.FileRecord{
		Path:      id,
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		Valid:     true,
		IndexedAt: time.Now(),
	}

	if err := r.validator.ValidateBytes(data); err != nil {
		o.invalid = true
		o.record.Valid = false
		o.record.ValidationError = err.Error()
		o.err = err
		if r.opts.Strict {
			o.remove = id
			return o
		}
	}

	o.doc = doc
	return o
}

// tally counts an outcome and reports its problem, if any.
func (r *Runner) tally(o outcome, summary *Summary) {
	switch {
	case o.invalid:
		summary.Invalid++
		r.renderer.AddError(ui.ErrorEvent{File: o.rel, Err: o.err, IsWarn: true})
		slog.Warn("document_invalid", slog.String("file", o.rel), slog.String("error", o.err.Error()))
	case o.err != nil:
		summary.Failed++
		r.renderer.AddError(ui.ErrorEvent{File: o.rel, Err: o.err})
		slog.Warn("document_failed", slog.String("file", o.rel), slog.String("error", o.err.Error()))
	}
	if o.doc != nil {
		summary.Indexed++
	}
}

// remove deletes documents and manifest records for the given paths.
func (r *Runner) remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := r.index.Delete(ctx, paths); err != nil {
		return err
	}
	return r.manifest.Delete(ctx, paths...)
}

// batch accumulates outcomes until size documents are pending.
type batch struct {
	r       *Runner
	size    int
	docs    []*document.Document
	records []*store.FileRecord
	removes []string
}

func newBatch(r *Runner, size int) *batch {
	return &batch{r: r, size: size}
}

func (b *batch) add(ctx context.Context, o outcome) error {
	if o.remove != "" {
		b.removes = append(b.removes, o.remove)
	}
	if o.record != nil {
		b.records = append(b.records, o.record)
	}
	if o.doc != nil {
		b.docs = append(b.docs, o.doc)
	}
	if len(b.docs) >= b.size || len(b.records)+len(b.removes) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

// flush writes removals first so a strict-invalid file never lingers, then
// the documents, then their manifest records.
func (b *batch) flush(ctx context.Context) error {
	if err := b.r.remove(ctx, b.removes); err != nil {
		return err
	}
	if len(b.docs) > 0 {
		if err := b.r.index.Index(ctx, b.docs); err != nil {
			return err
		}
	}
	if len(b.records) > 0 {
		if err := b.r.manifest.Upsert(ctx, b.records...); err != nil {
			return err
		}
	}
	b.docs, b.records, b.removes = b.docs[:0], b.records[:0], b.removes[:0]
	return nil
}
