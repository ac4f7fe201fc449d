// Package matcher reports which identifiers listed in a CSV file are present
// in the index.
package matcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
)

// Defaults for the identifier column and index field.
const (
	DefaultColumn    = "DOI"
	DefaultField     = "doi"
	DefaultCacheSize = 4096
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Index answers exact-match lookups.
type Index interface {
	Contains(ctx context.Context, field, value string) (bool, error)
}

// Options configures a Matcher.
type Options struct {
	// Column is the CSV header naming the identifier column.
	Column string
	// Field is the index field holding identifiers.
	Field string
	// CacheSize bounds the lookup cache (0 = DefaultCacheSize).
	CacheSize int
}

// Result summarizes a match run.
type Result struct {
	// Total counts data records, blanks included.
	Total int `json:"total"`
	// Matched counts distinct identifiers found in the index.
	Matched int `json:"matched"`
	// Found lists matched identifiers in order of first appearance.
	Found []string `json:"found,omitempty"`
	// Missing lists identifiers absent from the index, in order of first appearance.
	Missing []string `json:"missing,omitempty"`
	// Empty counts records with a blank identifier.
	Empty int `json:"empty"`
}

// Summary renders the one-line report.
func (r *Result) Summary() string {
	return fmt.Sprintf("Number of matching DOIs: %d out of %d", r.Matched, r.Total)
}

// Matcher checks identifiers against an index field.
type Matcher struct {
	index  Index
	column string
	field  string
	cache  *lru.Cache[string, bool]
}

// New creates a Matcher.
func New(index Index, opts Options) (*Matcher, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if opts.Column == "" {
		opts.Column = DefaultColumn
	}
	if opts.Field == "" {
		opts.Field = DefaultField
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, bool](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}
	return &Matcher{index: index, column: opts.Column, field: opts.Field, cache: cache}, nil
}

// MatchFile matches the CSV file at path.
func (m *Matcher) MatchFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeCSVUnreadable, "cannot open CSV file", err).
			WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	res, err := m.MatchCSV(ctx, f)
	if err != nil {
		var me *merrors.MetaError
		if errors.As(err, &me) {
			return nil, me.WithDetail("path", path)
		}
		return nil, err
	}
	return res, nil
}

// MatchCSV reads CSV with a header row and matches the configured column.
func (m *Matcher) MatchCSV(ctx context.Context, r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, merrors.New(merrors.ErrCodeCSVColumnMissing, "CSV file is empty", nil).
			WithDetail("column", m.column)
	}
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeCSVUnreadable, "cannot read CSV header", err)
	}

	col := -1
	for i, name := range header {
		if name == m.column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, merrors.New(merrors.ErrCodeCSVColumnMissing,
			fmt.Sprintf("CSV has no %q column", m.column), nil).
			WithDetail("columns", strings.Join(header, ",")).
			WithSuggestion("Pass the identifier column with --column")
	}

	t := newTally()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, merrors.New(merrors.ErrCodeCSVUnreadable, "malformed CSV record", err)
		}

		var id string
		if col < len(record) {
			id = record[col]
		}
		if err := m.check(ctx, t, id); err != nil {
			return nil, err
		}
	}

	slog.Debug("csv_matched",
		slog.String("column", m.column),
		slog.String("field", m.field),
		slog.Int("total", t.res.Total),
		slog.Int("matched", t.res.Matched),
		slog.Int("empty", t.res.Empty))
	return t.res, nil
}

// MatchIDs matches identifiers given directly.
func (m *Matcher) MatchIDs(ctx context.Context, ids []string) (*Result, error) {
	t := newTally()
	for _, id := range ids {
		if err := m.check(ctx, t, id); err != nil {
			return nil, err
		}
	}
	return t.res, nil
}

type tally struct {
	res  *Result
	seen map[string]bool
}

func newTally() *tally {
	return &tally{res: &Result{}, seen: make(map[string]bool)}
}

func (m *Matcher) check(ctx context.Context, t *tally, raw string) error {
	t.res.Total++
	id := strings.TrimSpace(raw)
	if id == "" {
		t.res.Empty++
		return nil
	}
	if t.seen[id] {
		return nil
	}
	t.seen[id] = true

	found, err := m.contains(ctx, id)
	if err != nil {
		return err
	}
	if found {
		t.res.Matched++
		t.res.Found = append(t.res.Found, id)
	} else {
		t.res.Missing = append(t.res.Missing, id)
	}
	return nil
}

// contains consults the cache before the index. The cache survives across
// calls so repeated runs against the same index stay cheap.
func (m *Matcher) contains(ctx context.Context, id string) (bool, error) {
	if found, ok := m.cache.Get(id); ok {
		return found, nil
	}
	found, err := m.index.Contains(ctx, m.field, id)
	if err != nil {
		return false, err
	}
	m.cache.Add(id, found)
	return found, nil
}

// Reset clears the lookup cache, e.g. after the index changed.
func (m *Matcher) Reset() {
	m.cache.Purge()
}
