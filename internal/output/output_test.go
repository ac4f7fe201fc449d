package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcinmilkowski/metaindexer/internal/corpus"
	"github.com/marcinmilkowski/metaindexer/internal/index"
	"github.com/marcinmilkowski/metaindexer/internal/matcher"
	"github.com/marcinmilkowski/metaindexer/internal/store"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "text": FormatText, "JSON": FormatJSON, " json ": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status(">", "Scanning documents...")

	// Then: output contains icon and message
	assert.Equal(t, "> Scanning documents...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")
	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("Indexed %d", 3)
	w.Warning("slow disk")
	w.Error("broken")

	assert.Equal(t, "✓ Indexed 3\n! slow disk\n✗ broken\n", buf.String())
}

func TestWriter_Newline_PrintsEmptyLine(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Newline()
	assert.Equal(t, "\n", buf.String())
}

func sampleResult() *store.SearchResult {
	return &store.SearchResult{
		Total: 3,
		Hits: []store.Hit{
			{ID: "/data/a.json", Score: 1.5, Fields: map[string][]string{
				"doi": {"10.7554/eLife.1"}, "title": {"Alpha"}, "path": {"/data/a.json"},
			}},
			{ID: "/data/b.json", Score: 0.25},
		},
	}
}

func TestWriter_SearchResults_Text(t *testing.T) {
	// Given: two hits, one with fields
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing them
	require.NoError(t, w.SearchResults("alpha", sampleResult(), nil))

	// Then: metadata fields are hidden and the rest are sorted
	want := "Results: 2 of 3 documents for \"alpha\"\n" +
		" 1. /data/a.json (1.500)\n" +
		"      doi: 10.7554/eLife.1\n" +
		"      title: Alpha\n" +
		" 2. /data/b.json (0.250)\n"
	assert.Equal(t, want, buf.String())
}

func TestWriter_SearchResults_SelectedFields(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.SearchResults("alpha", sampleResult(), []string{"title", "missing"}))

	assert.Contains(t, buf.String(), "title: Alpha")
	assert.NotContains(t, buf.String(), "doi:")
}

func TestWriter_SearchResults_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.SearchResults("nothing", &store.SearchResult{}, nil))

	assert.Contains(t, buf.String(), `No documents match "nothing"`)
}

func TestWriter_SearchResults_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithFormat(buf, FormatJSON)

	require.NoError(t, w.SearchResults("alpha", sampleResult(), nil))

	var got struct {
		Query string      `json:"query"`
		Total uint64      `json:"total"`
		Hits  []store.Hit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "alpha", got.Query)
	assert.Equal(t, uint64(3), got.Total)
	assert.Len(t, got.Hits, 2)
}

func TestWriter_MatchResult(t *testing.T) {
	res := &matcher.Result{Total: 4, Matched: 2, Found: []string{"a", "b"}, Missing: []string{"c"}, Empty: 1}

	t.Run("summary only", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, New(buf).MatchResult(res, false))
		assert.Equal(t, "Number of matching DOIs: 2 out of 4\n! 1 records have an empty identifier\n", buf.String())
	})

	t.Run("with missing", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, New(buf).MatchResult(res, true))
		assert.Contains(t, buf.String(), "   c\n")
	})

	t.Run("json drops missing unless asked", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, NewWithFormat(buf, FormatJSON).MatchResult(res, false))
		assert.NotContains(t, buf.String(), `"missing"`)
		assert.Contains(t, buf.String(), `"matched": 2`)
		assert.Len(t, res.Missing, 1)
	})
}

func TestWriter_CorpusStats(t *testing.T) {
	st := &corpus.Stats{Files: 2, Reviews: 2, Total: 11, Mean: 5.5, Median: 7}

	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).CorpusStats(st))
	assert.Equal(t, "Total: 11 in 2 files.\nReviews: 2\nMean: 5.5\nMedian: 7.0\n", buf.String())

	buf.Reset()
	require.NoError(t, NewWithFormat(buf, FormatJSON).CorpusStats(st))
	assert.Contains(t, buf.String(), `"median": 7`)
}

func TestWriter_IndexSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	s := &index.Summary{Scanned: 5, Indexed: 3, Skipped: 1, Invalid: 1, Failed: 1}

	require.NoError(t, New(buf).IndexSummary(s))

	out := buf.String()
	assert.Contains(t, out, "✓ Indexed 3 of 5 files (1 unchanged, 0 removed)")
	assert.Contains(t, out, "! 1 documents failed schema validation")
	assert.Contains(t, out, "✗ 1 files could not be read")
}
