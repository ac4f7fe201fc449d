package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/marcinmilkowski/metaindexer/internal/document"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
)

// pageSize bounds a single bleve request when collecting every hit.
const pageSize = 1000

// Index is a bleve full-text index of documents. Every field except content
// is stored and indexed untokenized for exact matching.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// Query describes a search request.
type Query struct {
	// Text is a bleve query string when Field is empty, or an exact term otherwise.
	Text   string
	Field  string
	Limit  int
	Offset int
}

// Hit is one search result.
type Hit struct {
	ID     string              `json:"id"`
	Score  float64             `json:"score"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// SearchResult is a page of hits plus the total match count.
type SearchResult struct {
	Total uint64 `json:"total"`
	Hits  []Hit  `json:"hits"`
}

// validateIndexIntegrity checks index_meta.json before opening so a half-written
// index is recreated instead of failing every command.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return err == bleve.ErrorIndexMetaCorrupt ||
		strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// Open opens the index at path, creating it when missing. An empty path gives
// an in-memory index. A corrupt index is cleared and recreated empty.
func Open(path string) (*Index, error) {
	m, err := newMapping()
	if err != nil {
		return nil, merrors.InternalError("failed to build index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = openOnDisk(path, m)
	}
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeCorruptIndex, "failed to open index", err).
			WithDetail("path", path).
			WithSuggestion("Remove the index directory and run 'metaindexer index' again")
	}

	return &Index{index: idx, path: path}, nil
}

func openOnDisk(path string, m mapping.IndexMapping) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if verr := validateIndexIntegrity(path); verr != nil {
		slog.Warn("index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("cannot clear corrupted index: %w (original: %v)", err, verr)
		}
		slog.Info("index_cleared", slog.String("path", path))
	}

	idx, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		return bleve.New(path, m)
	case isCorruptionError(err):
		slog.Warn("index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("cannot clear corrupted index: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, m)
	default:
		return idx, err
	}
}

// newMapping stores every dynamic field untokenized (keyword analyzer) and
// routes field-less query strings to the analyzed content field.
func newMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := addContentAnalyzer(m); err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = keyword.Name
	m.DefaultField = document.FieldContent
	m.StoreDynamic = true
	m.IndexDynamic = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = ContentAnalyzerName
	content.Store = false
	content.IncludeInAll = false
	content.IncludeTermVectors = true

	dm := bleve.NewDocumentMapping()
	dm.AddFieldMappingsAt(document.FieldContent, content)
	m.DefaultMapping = dm

	return m, nil
}

// Path returns the on-disk location, or "" for in-memory indexes.
func (x *Index) Path() string { return x.path }

// Index upserts docs in a single batch.
func (x *Index) Index(ctx context.Context, docs []*document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return errClosed()
	}

	batch := x.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, doc.IndexValue()); err != nil {
			return merrors.New(merrors.ErrCodeIndexFailed, "failed to index document", err).
				WithDetail("id", doc.ID)
		}
	}
	if err := x.index.Batch(batch); err != nil {
		return merrors.New(merrors.ErrCodeIndexFailed, "failed to execute batch", err)
	}
	return nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return errClosed()
	}

	batch := x.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := x.index.Batch(batch); err != nil {
		return merrors.New(merrors.ErrCodeIndexFailed, "failed to delete documents", err)
	}
	return nil
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

// Lookup returns the IDs of documents whose field holds exactly value.
func (x *Index) Lookup(ctx context.Context, field, value string) ([]string, error) {
	return x.collectIDs(ctx, termQuery(field, value))
}

// Contains reports whether any document's field holds exactly value.
func (x *Index) Contains(ctx context.Context, field, value string) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return false, errClosed()
	}

	req := bleve.NewSearchRequestOptions(termQuery(field, value), 0, 0, false)
	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return false, merrors.New(merrors.ErrCodeSearchFailed, "lookup failed", err).
			WithDetail("field", field)
	}
	return res.Total > 0, nil
}

// Search runs q and returns hits with their stored fields.
func (x *Index) Search(ctx context.Context, q Query) (*SearchResult, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, merrors.New(merrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var bq query.Query
	if q.Field == "" {
		bq = bleve.NewQueryStringQuery(text)
	} else {
		bq = termQuery(q.Field, q.Text)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, errClosed()
	}

	req := bleve.NewSearchRequestOptions(bq, q.Limit, q.Offset, false)
	req.Fields = []string{"*"}

	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		code := merrors.ErrCodeSearchFailed
		if q.Field == "" {
			code = merrors.ErrCodeInvalidQuery
		}
		return nil, merrors.New(code, "search failed", err).WithDetail("query", text)
	}

	out := &SearchResult{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score, Fields: storedFields(h.Fields)})
	}
	return out, nil
}

// storedFields normalizes bleve's single or multi-valued field values.
func storedFields(in map[string]interface{}) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = []string{val}
		case []interface{}:
			for _, item := range val {
				out[k] = append(out[k], fmt.Sprint(item))
			}
		default:
			out[k] = []string{fmt.Sprint(val)}
		}
	}
	return out
}

// AllIDs returns every document ID, sorted.
func (x *Index) AllIDs(ctx context.Context) ([]string, error) {
	ids, err := x.collectIDs(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (x *Index) collectIDs(ctx context.Context, q query.Query) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, errClosed()
	}

	var ids []string
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		res, err := x.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, merrors.New(merrors.ErrCodeSearchFailed, "search failed", err)
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		if len(res.Hits) < pageSize {
			return ids, nil
		}
	}
}

// DocCount returns the number of indexed documents.
func (x *Index) DocCount() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0, errClosed()
	}
	return x.index.DocCount()
}

// Close closes the index. Closing twice is a no-op.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	return x.index.Close()
}

func errClosed() error {
	return merrors.InternalError("index is closed", nil)
}
