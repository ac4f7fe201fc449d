package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marcinmilkowski/metaindexer/internal/matcher"
	"github.com/marcinmilkowski/metaindexer/internal/store"
	"github.com/marcinmilkowski/metaindexer/pkg/version"
)

// Options configures a Server.
type Options struct {
	// Index is the document index. Required.
	Index *store.Index

	// Manifest enables index_status file statistics and document resources.
	Manifest *store.Manifest

	// Field is the default identifier field for lookup and match_ids.
	Field string

	// MatchCacheSize bounds the per-server identifier lookup cache.
	MatchCacheSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the MCP server for metaindexer. It answers searches and
// identifier lookups against an existing index.
type Server struct {
	mcp      *mcp.Server
	index    *store.Index
	manifest *store.Manifest
	field    string
	logger   *slog.Logger

	// matchers caches one matcher per field so repeated lookups hit the LRU.
	matchers  map[string]*matcher.Matcher
	cacheSize int

	mu sync.Mutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolSearch,
		Description: "Full-text search over the indexed JSON documents. The query uses bleve query string syntax: plain words search the text, field:value matches a field exactly, +term requires and -term excludes.",
	},
	{
		Name:        ToolLookup,
		Description: "Find documents whose field holds exactly the given value, for example a DOI.",
	},
	{
		Name:        ToolMatchIDs,
		Description: "Check a list of identifiers against the index and report which are present and which are missing.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report the number of indexed documents, files, schema-invalid files and the time of the last indexing run.",
	},
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(opts Options) (*Server, error) {
	if opts.Index == nil {
		return nil, errors.New("index is required")
	}
	if opts.Field == "" {
		opts.Field = matcher.DefaultField
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		index:     opts.Index,
		manifest:  opts.Manifest,
		field:     opts.Field,
		logger:    opts.Logger,
		matchers:  make(map[string]*matcher.Matcher),
		cacheSize: opts.MatchCacheSize,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	for _, t := range tools {
		tool := &mcp.Tool{Name: t.Name, Description: t.Description}
		switch t.Name {
		case ToolSearch:
			mcp.AddTool(s.mcp, tool, s.mcpSearchHandler)
		case ToolLookup:
			mcp.AddTool(s.mcp, tool, s.mcpLookupHandler)
		case ToolMatchIDs:
			mcp.AddTool(s.mcp, tool, s.mcpMatchIDsHandler)
		case ToolIndexStatus:
			mcp.AddTool(s.mcp, tool, s.mcpIndexStatusHandler)
		}
		s.logger.Debug("registered tool", slog.String("name", t.Name))
	}
	s.logger.Info("mcp_tools_registered", slog.Int("count", len(tools)))
}

// Search runs a search tool request.
func (s *Server) Search(ctx context.Context, input SearchInput) (SearchOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.Offset < 0 {
		return SearchOutput{}, NewInvalidParamsError("offset cannot be negative")
	}
	limit := clampLimit(input.Limit, DefaultLimit, 1, MaxLimit)

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.String("field", input.Field),
		slog.Int("limit", limit))

	res, err := s.index.Search(ctx, store.Query{
		Text:   input.Query,
		Field:  input.Field,
		Limit:  limit,
		Offset: input.Offset,
	})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(res.Hits)))

	return SearchOutput{
		Query:   input.Query,
		Total:   res.Total,
		Results: toDocumentOutputs(res.Hits),
	}, nil
}

// Lookup runs a lookup tool request.
func (s *Server) Lookup(ctx context.Context, input LookupInput) (LookupOutput, error) {
	value := strings.TrimSpace(input.Value)
	if value == "" {
		return LookupOutput{}, NewInvalidParamsError("value is required")
	}
	field := input.Field
	if field == "" {
		field = s.field
	}

	paths, err := s.index.Lookup(ctx, field, value)
	if err != nil {
		return LookupOutput{}, MapError(err)
	}
	if paths == nil {
		paths = []string{}
	}
	s.logger.Debug("lookup completed",
		slog.String("field", field),
		slog.String("value", value),
		slog.Int("matches", len(paths)))

	return LookupOutput{Field: field, Value: value, Found: len(paths) > 0, Paths: paths}, nil
}

// MatchIDs runs a match_ids tool request.
func (s *Server) MatchIDs(ctx context.Context, input MatchIDsInput) (MatchIDsOutput, error) {
	if len(input.IDs) == 0 {
		return MatchIDsOutput{}, NewInvalidParamsError("ids must list at least one identifier")
	}
	field := input.Field
	if field == "" {
		field = s.field
	}

	m, err := s.matcherFor(field)
	if err != nil {
		return MatchIDsOutput{}, MapError(err)
	}
	res, err := m.MatchIDs(ctx, input.IDs)
	if err != nil {
		return MatchIDsOutput{}, MapError(err)
	}

	out := MatchIDsOutput{
		Total:   res.Total,
		Matched: res.Matched,
		Found:   res.Found,
		Missing: res.Missing,
		Empty:   res.Empty,
		Summary: res.Summary(),
	}
	if out.Found == nil {
		out.Found = []string{}
	}
	if out.Missing == nil {
		out.Missing = []string{}
	}
	return out, nil
}

func (s *Server) matcherFor(field string) (*matcher.Matcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.matchers[field]; ok {
		return m, nil
	}
	m, err := matcher.New(s.index, matcher.Options{Field: field, CacheSize: s.cacheSize})
	if err != nil {
		return nil, err
	}
	s.matchers[field] = m
	return m, nil
}

// invalidateCache drops cached identifier lookups.
func (s *Server) invalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matchers {
		m.Reset()
	}
}

// IndexStatus runs an index_status tool request.
func (s *Server) IndexStatus(ctx context.Context) (IndexStatusOutput, error) {
	count, err := s.index.DocCount()
	if err != nil {
		return IndexStatusOutput{}, MapError(err)
	}
	out := IndexStatusOutput{IndexPath: s.index.Path(), Documents: count}

	if s.manifest != nil {
		stats, err := s.manifest.Stats(ctx)
		if err != nil {
			return IndexStatusOutput{}, MapError(err)
		}
		out.Files = stats.Files
		out.Invalid = stats.Invalid
		out.SourceBytes = stats.TotalBytes
		if !stats.LastIndexed.IsZero() {
			out.LastIndexed = stats.LastIndexed.Format(time.RFC3339)
		}
		root, err := s.manifest.GetState(ctx, store.StateKeyRoot)
		if err != nil {
			s.logger.Warn("failed to read documents root", slog.String("error", err.Error()))
		}
		out.Root = root
	}
	return out, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, err := s.Search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return textResult(FormatSearchResults(out)), out, nil
}

func (s *Server) mcpLookupHandler(ctx context.Context, _ *mcp.CallToolRequest, input LookupInput) (
	*mcp.CallToolResult,
	LookupOutput,
	error,
) {
	out, err := s.Lookup(ctx, input)
	if err != nil {
		return nil, LookupOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpMatchIDsHandler(ctx context.Context, _ *mcp.CallToolRequest, input MatchIDsInput) (
	*mcp.CallToolResult,
	MatchIDsOutput,
	error,
) {
	out, err := s.MatchIDs(ctx, input)
	if err != nil {
		return nil, MatchIDsOutput{}, err
	}
	return textResult(FormatMatch(out)), out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	out, err := s.IndexStatus(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, err
	}
	return nil, out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server on the named transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
