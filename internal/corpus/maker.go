package corpus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/panjf2000/ants/v2"

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/scanner"
	"github.com/marcinmilkowski/metaindexer/internal/srx"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

// Stats summarizes the word counts of the review files in a corpus run.
type Stats struct {
	Files     int     `json:"files"`
	Reviews   int     `json:"reviews"`
	Total     int     `json:"total"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	Sentences int     `json:"sentences,omitempty"`
}

func (s *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d in %d files.\n", s.Total, s.Files)
	fmt.Fprintf(&b, "Reviews: %d\n", s.Reviews)
	fmt.Fprintf(&b, "Mean: %s\n", formatFloat(s.Mean))
	fmt.Fprintf(&b, "Median: %s\n", formatFloat(s.Median))
	return b.String()
}

// formatFloat always keeps a fractional part, so 12 prints as "12.0".
func formatFloat(v float64) string {
	s := fmt.Sprintf("%g", v)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// ComputeStats derives Stats from per-file word counts.
func ComputeStats(counts map[string]int, reviews int) *Stats {
	st := &Stats{Files: len(counts), Reviews: reviews}
	if len(counts) == 0 {
		return st
	}
	sorted := make([]int, 0, len(counts))
	for _, n := range counts {
		sorted = append(sorted, n)
		st.Total += n
	}
	sort.Ints(sorted)
	st.Mean = float64(st.Total) / float64(len(sorted))
	st.Median = float64(sorted[len(sorted)/2])
	return st
}

// Options configures a Maker.
type Options struct {
	// Segmenter splits cleaned article text into sentences. Required for Build.
	Segmenter *srx.Segmenter

	// Filter selects sentences by full match. Empty means DefaultFilter.
	Filter string

	// ReviewPattern selects review files by base name. Empty means
	// DefaultReviewPattern.
	ReviewPattern string

	// Workers sizes the processing pool (0 = NumCPU).
	Workers int

	// ReviewsOnly limits the corpus to review files.
	ReviewsOnly bool

	// Words selects word counting. Empty means WordsWhitespace.
	Words WordMode

	// Renderer may be nil (progress is discarded).
	Renderer ui.Renderer
}

// Maker builds sentence corpora and word statistics from XML articles.
type Maker struct {
	seg         *srx.Segmenter
	filter      *regexp2.Regexp
	review      *regexp2.Regexp
	workers     int
	reviewsOnly bool
	words       WordMode
	renderer    ui.Renderer
}

// NewMaker compiles the patterns and applies option defaults.
func NewMaker(opts Options) (*Maker, error) {
	if opts.Filter == "" {
		opts.Filter = DefaultFilter
	}
	if opts.ReviewPattern == "" {
		opts.ReviewPattern = DefaultReviewPattern
	}
	filter, err := CompilePattern(opts.Filter)
	if err != nil {
		return nil, err
	}
	review, err := CompilePattern(opts.ReviewPattern)
	if err != nil {
		return nil, err
	}
	words, err := ParseWordMode(string(opts.Words))
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = ui.Discard{}
	}
	return &Maker{
		seg:         opts.Segmenter,
		filter:      filter,
		review:      review,
		workers:     opts.Workers,
		reviewsOnly: opts.ReviewsOnly,
		words:       words,
		renderer:    renderer,
	}, nil
}

// fileResult is what one worker produces for one XML file.
type fileResult struct {
	path      string
	review    bool
	words     int
	sentences []string
	err       error
}

// Stats counts the words of every review file under dir.
func (m *Maker) Stats(ctx context.Context, dir string) (*Stats, error) {
	st, _, err := m.run(ctx, dir, false)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Build writes the filtered sentences of the XML files under dir to out in
// lexical path order and returns the review statistics.
func (m *Maker) Build(ctx context.Context, dir string, out io.Writer) (*Stats, error) {
	if m.seg == nil {
		return nil, merrors.New(merrors.ErrCodeInvalidInput, "corpus build needs a segmenter", nil)
	}
	st, results, err := m.run(ctx, dir, true)
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriter(out)
	for _, res := range results {
		for _, s := range res.sentences {
			if _, err := w.WriteString(s); err != nil {
				return nil, merrors.IOError("failed to write corpus", err)
			}
			st.Sentences++
		}
	}
	if err := w.Flush(); err != nil {
		return nil, merrors.IOError("failed to write corpus", err)
	}
	return st, nil
}

// BuildFile appends the corpus for dir to the file at path, creating it if
// needed.
func (m *Maker) BuildFile(ctx context.Context, dir, path string) (*Stats, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, merrors.IOError("failed to open corpus file", err).WithDetail("path", path)
	}
	st, err := m.Build(ctx, dir, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		return nil, merrors.IOError("failed to close corpus file", cerr).WithDetail("path", path)
	}
	return st, err
}

// run processes every XML file on the worker pool. Results come back in
// path order once all workers are done.
func (m *Maker) run(ctx context.Context, dir string, sentences bool) (*Stats, []fileResult, error) {
	start := time.Now()

	m.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: dir})
	files, err := m.scan(ctx, dir)
	if err != nil {
		return nil, nil, err
	}

	pool, err := ants.NewPool(m.workers)
	if err != nil {
		return nil, nil, merrors.InternalError("failed to start worker pool", err)
	}
	defer pool.Release()

	m.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageParsing, Total: len(files)})

	results := make([]fileResult, len(files))
	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)
	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i] = m.process(f, sentences)
			n := done.Add(1)
			m.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageParsing,
				Current:     int(n),
				Total:       len(files),
				CurrentFile: f.Path,
			})
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, nil, merrors.InternalError("failed to schedule file", err)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	counts := make(map[string]int)
	reviews, failed := 0, 0
	for _, res := range results {
		if res.review {
			reviews++
		}
		if res.err != nil {
			failed++
			m.renderer.AddError(ui.ErrorEvent{File: res.path, Err: res.err})
			slog.Warn("corpus_file_failed", slog.String("path", res.path), slog.String("error", res.err.Error()))
			continue
		}
		if res.review {
			counts[res.path] = res.words
		}
	}
	st := ComputeStats(counts, reviews)

	title, unit := "Statistics", "reviews"
	items := reviews
	if sentences {
		title, unit = "Corpus", "sentences"
		items = 0
		for _, res := range results {
			items += len(res.sentences)
		}
	}
	m.renderer.Complete(ui.CompletionStats{
		Title:    title,
		Files:    len(files),
		Items:    items,
		ItemUnit: unit,
		Duration: time.Since(start),
		Errors:   failed,
	})
	slog.Info("corpus_complete",
		slog.String("dir", dir),
		slog.Int("files", len(files)),
		slog.Int("reviews", reviews),
		slog.Int("failed", failed),
		slog.Int("words", st.Total),
		slog.Duration("duration", time.Since(start)))

	return st, results, nil
}

func (m *Maker) scan(ctx context.Context, dir string) ([]*scanner.FileInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeInvalidPath, "failed to resolve articles directory", err).
			WithDetail("path", dir)
	}
	ch, err := scanner.Scan(ctx, scanner.Options{Root: abs, Extensions: []string{".xml"}})
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeFileNotFound, "failed to scan articles directory", err).
			WithDetail("path", dir)
	}
	var files []*scanner.FileInfo
	for res := range ch {
		if res.Error != nil {
			m.renderer.AddError(ui.ErrorEvent{Err: res.Error, IsWarn: true})
			continue
		}
		files = append(files, res.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

func (m *Maker) process(f *scanner.FileInfo, sentences bool) fileResult {
	res := fileResult{path: f.Path, review: IsReview(f.Path, m.review)}
	if !res.review && (!sentences || m.reviewsOnly) {
		return res
	}

	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		res.err = err
		return res
	}
	text := CleanText(string(data))

	if res.review {
		res.words = CountWords(text, m.words)
	}
	if sentences {
		res.sentences = FilterSentences(m.seg, text, m.filter)
	}
	return res
}
