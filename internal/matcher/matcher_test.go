package matcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcinmilkowski/metaindexer/internal/document"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/store"
)

// fakeIndex records lookups against a fixed set of identifiers.
type fakeIndex struct {
	ids   map[string]bool
	calls int
	err   error
}

func (f *fakeIndex) Contains(_ context.Context, field, value string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return field == DefaultField && f.ids[value], nil
}

func newFake(ids ...string) *fakeIndex {
	f := &fakeIndex{ids: make(map[string]bool)}
	for _, id := range ids {
		f.ids[id] = true
	}
	return f
}

func TestMatchCSV_CountsDistinctMatches(t *testing.T) {
	// Given: a CSV with a duplicate, a missing and a blank identifier
	idx := newFake("10.1/a", "10.1/b")
	m, err := New(idx, Options{})
	require.NoError(t, err)
	csvData := "Title,DOI\r\nA,10.1/a\r\nA again,10.1/a\r\nB,10.1/b\r\nC,10.1/c\r\nBlank,\r\n"

	// When: matching
	res, err := m.MatchCSV(context.Background(), strings.NewReader(csvData))

	// Then: duplicates count once, all records are counted
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, []string{"10.1/a", "10.1/b"}, res.Found)
	assert.Equal(t, []string{"10.1/c"}, res.Missing)
	assert.Equal(t, 1, res.Empty)
	assert.Equal(t, 3, idx.calls)
	assert.Equal(t, "Number of matching DOIs: 2 out of 5", res.Summary())
}

func TestMatchCSV_DialectQuirks(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bom and lf", "\ufeffDOI,Note\n10.1/a,x\n"},
		{"quoted with comma", "DOI,Note\n\"10.1/a\",\"a, b\"\n"},
		{"short record", "Note,DOI\nonly-note\n10.1/a\n"},
		{"stray quote", "DOI,Note\n10.1/a,say \"hi\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(newFake("10.1/a"), Options{})
			require.NoError(t, err)

			res, err := m.MatchCSV(context.Background(), strings.NewReader(tt.data))

			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.Total, 1)
			assert.LessOrEqual(t, res.Matched, 1)
		})
	}
}

func TestMatchCSV_ShortRecordCountsAsBlank(t *testing.T) {
	m, err := New(newFake("10.1/a"), Options{})
	require.NoError(t, err)

	res, err := m.MatchCSV(context.Background(), strings.NewReader("Note,DOI\nonly-note\nx,10.1/a\n"))

	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Empty)
	assert.Equal(t, 1, res.Matched)
}

func TestMatchCSV_MissingColumn(t *testing.T) {
	// Given: a CSV without the identifier column
	m, err := New(newFake(), Options{Column: "DOI"})
	require.NoError(t, err)

	// When: matching
	_, err = m.MatchCSV(context.Background(), strings.NewReader("Title,Year\nA,2020\n"))

	// Then: the column error names the available headers
	require.Error(t, err)
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeCSVColumnMissing))
	var me *merrors.MetaError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "Title,Year", me.Details["columns"])
}

func TestMatchCSV_EmptyInput(t *testing.T) {
	m, err := New(newFake(), Options{})
	require.NoError(t, err)

	_, err = m.MatchCSV(context.Background(), strings.NewReader(""))

	assert.True(t, merrors.HasCode(err, merrors.ErrCodeCSVColumnMissing))
}

func TestMatchCSV_HeaderOnly(t *testing.T) {
	m, err := New(newFake(), Options{})
	require.NoError(t, err)

	res, err := m.MatchCSV(context.Background(), strings.NewReader("DOI\n"))

	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Equal(t, "Number of matching DOIs: 0 out of 0", res.Summary())
}

func TestMatchCSV_IndexError(t *testing.T) {
	idx := newFake()
	idx.err = errors.New("index closed")
	m, err := New(idx, Options{})
	require.NoError(t, err)

	_, err = m.MatchCSV(context.Background(), strings.NewReader("DOI\n10.1/a\n"))

	assert.EqualError(t, err, "index closed")
}

func TestMatcher_CacheAcrossRuns(t *testing.T) {
	// Given: a matcher that already answered an identifier
	idx := newFake("10.1/a")
	m, err := New(idx, Options{})
	require.NoError(t, err)
	_, err = m.MatchIDs(context.Background(), []string{"10.1/a"})
	require.NoError(t, err)

	// When: asked again
	res, err := m.MatchIDs(context.Background(), []string{"10.1/a", " 10.1/a "})

	// Then: the cache answers and whitespace is ignored
	require.NoError(t, err)
	assert.Equal(t, 1, idx.calls)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 2, res.Total)

	m.Reset()
	_, err = m.MatchIDs(context.Background(), []string{"10.1/a"})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.calls)
}

func TestMatchFile(t *testing.T) {
	m, err := New(newFake("10.1/a"), Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dois.csv")
	require.NoError(t, os.WriteFile(path, []byte("DOI\n10.1/a\n10.1/z\n"), 0o644))

	res, err := m.MatchFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Number of matching DOIs: 1 out of 2", res.Summary())

	_, err = m.MatchFile(context.Background(), filepath.Join(t.TempDir(), "none.csv"))
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeCSVUnreadable))
}

func TestMatch_AgainstBleveIndex(t *testing.T) {
	// Given: a real in-memory index with one DOI
	idx, err := store.Open("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	doc := &document.Document{ID: "/x/a.json", Fields: map[string][]string{"doi": {"10.7554/eLife.00001"}}}
	require.NoError(t, idx.Index(context.Background(), []*document.Document{doc}))

	m, err := New(idx, Options{})
	require.NoError(t, err)

	// When: matching a CSV that also carries a differently-cased DOI
	res, err := m.MatchCSV(context.Background(), strings.NewReader("DOI\n10.7554/eLife.00001\n10.7554/ELIFE.00001\n"))

	// Then: lookups are exact
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 2, res.Total)
}

func TestNew_RequiresIndex(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}
