package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcinmilkowski/metaindexer/internal/document"
	"github.com/marcinmilkowski/metaindexer/internal/store"
)

type fixture struct {
	server   *Server
	index    *store.Index
	manifest *store.Manifest
	dir      string
}

// newFixture indexes two review documents and records them in the manifest.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx, err := store.Open("")
	require.NoError(t, err)
	man, err := store.OpenManifest("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idx.Close()
		_ = man.Close()
	})

	dir := t.TempDir()
	docs := []*document.Document{
		{
			ID:      filepath.Join(dir, "a.json"),
			Fields:  map[string][]string{"doi": {"10.7554/eLife.00001"}, "title": {"Cell division"}, "type": {"json"}},
			Content: "Cell division\nOur understanding of cells is limited.",
		},
		{
			ID:      filepath.Join(dir, "b.json"),
			Fields:  map[string][]string{"doi": {"10.7554/eLife.00002"}, "title": {"Neurons"}, "type": {"json"}},
			Content: "Neurons\nSignals travel fast.",
		},
	}
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, docs))

	var records []*store.FileRecord
	for i, d := range docs {
		body := `{"doi":"` + d.Get("doi") + `"}`
		require.NoError(t, os.WriteFile(d.ID, []byte(body), 0o644))
		records = append(records, &store.FileRecord{
			Path:      d.ID,
			Size:      int64(len(body)),
			ModTime:   time.Now().UnixNano(),
			Valid:     i == 0,
			IndexedAt: time.Now(),
		})
	}
	records[1].ValidationError = "missing title"
	require.NoError(t, man.Upsert(ctx, records...))
	require.NoError(t, man.SetState(ctx, store.StateKeyRoot, dir))

	s, err := NewServer(Options{Index: idx, Manifest: man})
	require.NoError(t, err)
	return &fixture{server: s, index: idx, manifest: man, dir: dir}
}

// connect attaches an in-memory client session to the server.
func (f *fixture) connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()
	_, err := f.server.MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func decode[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, "tool returned an error: %+v", res.Content)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestNewServer_RequiresIndex(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	// Given: a connected client
	f := newFixture(t)
	cs := f.connect(t)

	// When: listing tools
	res, err := cs.ListTools(context.Background(), nil)

	// Then: all four tools are advertised
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearch, ToolLookup, ToolMatchIDs, ToolIndexStatus}, names)
	assert.Len(t, f.server.ListTools(), 4)
}

func TestServer_SearchTool(t *testing.T) {
	// Given: an index with a document about understanding cells
	f := newFixture(t)
	cs := f.connect(t)

	// When: searching the text
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolSearch,
		Arguments: map[string]any{"query": "understanding"},
	})

	// Then: the matching document comes back with its fields and markdown
	require.NoError(t, err)
	out := decode[SearchOutput](t, res)
	assert.Equal(t, uint64(1), out.Total)
	require.Len(t, out.Results, 1)
	assert.Equal(t, filepath.Join(f.dir, "a.json"), out.Results[0].Path)
	assert.Equal(t, []string{"Cell division"}, out.Results[0].Fields["title"])

	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "## Search Results for \"understanding\"")
	assert.Contains(t, text.Text, "- **title**: Cell division")
	assert.NotContains(t, text.Text, "**type**")
}

func TestServer_SearchTool_EmptyQueryIsToolError(t *testing.T) {
	f := newFixture(t)
	cs := f.connect(t)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolSearch,
		Arguments: map[string]any{"query": "   "},
	})

	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_Search_FieldMatchesExactly(t *testing.T) {
	f := newFixture(t)

	out, err := f.server.Search(context.Background(), SearchInput{Query: "10.7554/eLife.00002", Field: "doi"})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, filepath.Join(f.dir, "b.json"), out.Results[0].Path)
}

func TestServer_Search_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.server.Search(context.Background(), SearchInput{Query: "cells", Offset: -1})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestServer_LookupTool(t *testing.T) {
	f := newFixture(t)
	cs := f.connect(t)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolLookup,
		Arguments: map[string]any{"value": " 10.7554/eLife.00001 "},
	})

	require.NoError(t, err)
	out := decode[LookupOutput](t, res)
	assert.True(t, out.Found)
	assert.Equal(t, "doi", out.Field)
	assert.Equal(t, []string{filepath.Join(f.dir, "a.json")}, out.Paths)
}

func TestServer_Lookup_NotFound(t *testing.T) {
	f := newFixture(t)

	out, err := f.server.Lookup(context.Background(), LookupInput{Field: "title", Value: "cell division"})

	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Empty(t, out.Paths)
}

func TestServer_MatchIDsTool(t *testing.T) {
	// Given: one known and one unknown DOI, plus a duplicate and a blank
	f := newFixture(t)
	cs := f.connect(t)

	// When: matching them
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolMatchIDs,
		Arguments: map[string]any{"ids": []string{
			"10.7554/eLife.00001", "10.7554/eLife.99999", "10.7554/eLife.00001", "",
		}},
	})

	// Then: distinct matches are counted against all records
	require.NoError(t, err)
	out := decode[MatchIDsOutput](t, res)
	assert.Equal(t, 4, out.Total)
	assert.Equal(t, 1, out.Matched)
	assert.Equal(t, 1, out.Empty)
	assert.Equal(t, []string{"10.7554/eLife.99999"}, out.Missing)
	assert.Equal(t, "Number of matching DOIs: 1 out of 4", out.Summary)
}

func TestServer_MatchIDs_RequiresIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.server.MatchIDs(context.Background(), MatchIDsInput{})

	assert.Error(t, err)
}

func TestServer_MatchIDs_CacheInvalidation(t *testing.T) {
	// Given: a DOI that is missing at first
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.server.MatchIDs(ctx, MatchIDsInput{IDs: []string{"10.7554/eLife.00003"}})
	require.NoError(t, err)
	require.Equal(t, 0, first.Matched)

	// When: the document is indexed and the cache dropped
	doc := &document.Document{ID: "/c.json", Fields: map[string][]string{"doi": {"10.7554/eLife.00003"}}}
	require.NoError(t, f.index.Index(ctx, []*document.Document{doc}))
	f.server.invalidateCache()

	// Then: the next match sees it
	second, err := f.server.MatchIDs(ctx, MatchIDsInput{IDs: []string{"10.7554/eLife.00003"}})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Matched)
}

func TestServer_IndexStatusTool(t *testing.T) {
	f := newFixture(t)
	cs := f.connect(t)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: ToolIndexStatus})

	require.NoError(t, err)
	out := decode[IndexStatusOutput](t, res)
	assert.Equal(t, uint64(2), out.Documents)
	assert.Equal(t, 2, out.Files)
	assert.Equal(t, 1, out.Invalid)
	assert.Equal(t, f.dir, out.Root)
	assert.NotEmpty(t, out.LastIndexed)
}

func TestServer_IndexStatus_WithoutManifest(t *testing.T) {
	f := newFixture(t)
	s, err := NewServer(Options{Index: f.index})
	require.NoError(t, err)

	out, err := s.IndexStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, uint64(2), out.Documents)
	assert.Zero(t, out.Files)
}

func TestServer_Resources(t *testing.T) {
	// Given: registered document resources
	f := newFixture(t)
	n, err := f.server.RegisterResources(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	cs := f.connect(t)

	// When: reading one
	path := filepath.Join(f.dir, "a.json")
	res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: DocumentURI(path)})

	// Then: the raw JSON comes back
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	assert.JSONEq(t, `{"doi":"10.7554/eLife.00001"}`, res.Contents[0].Text)
}

func TestServer_ReadDocument_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Not in the manifest.
	_, err := f.server.readDocument(ctx, filepath.Join(f.dir, "nope.json"))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)

	// In the manifest but gone from disk.
	path := filepath.Join(f.dir, "b.json")
	require.NoError(t, os.Remove(path))
	_, err = f.server.readDocument(ctx, path)
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
}

func TestRegisterResources_RequiresManifest(t *testing.T) {
	f := newFixture(t)
	s, err := NewServer(Options{Index: f.index})
	require.NoError(t, err)

	_, err = s.RegisterResources(context.Background())

	assert.Error(t, err)
}

func TestServe_UnknownTransport(t *testing.T) {
	f := newFixture(t)

	err := f.server.Serve(context.Background(), "sse")

	assert.ErrorContains(t, err, "unknown transport")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, clampLimit(0, DefaultLimit, 1, MaxLimit))
	assert.Equal(t, MaxLimit, clampLimit(1000, DefaultLimit, 1, MaxLimit))
	assert.Equal(t, 5, clampLimit(5, DefaultLimit, 1, MaxLimit))
}

func TestFormatMatch(t *testing.T) {
	text := FormatMatch(MatchIDsOutput{Summary: "Number of matching DOIs: 1 out of 2", Missing: []string{"x"}})
	assert.Equal(t, "Number of matching DOIs: 1 out of 2\n\nMissing:\n- x\n", text)
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No documents found for "q"`, FormatSearchResults(SearchOutput{Query: "q"}))
}
