package mcp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marcinmilkowski/metaindexer/internal/store"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

// MaxResourceSize is the maximum document size returned as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// RegisterResources publishes every indexed document as a file:// resource.
// Documents that failed schema validation are included; they are still
// readable JSON. It returns the number of resources registered.
func (s *Server) RegisterResources(ctx context.Context) (int, error) {
	if s.manifest == nil {
		return 0, fmt.Errorf("manifest is required to register resources")
	}

	records, err := s.manifest.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	for _, rec := range records {
		s.registerDocumentResource(rec)
	}
	s.logger.Info("registered resources", "count", len(records))
	return len(records), nil
}

// DocumentURI returns the resource URI of a document path.
func DocumentURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func (s *Server) registerDocumentResource(rec *store.FileRecord) {
	uri := DocumentURI(rec.Path)
	desc := fmt.Sprintf("%s (%s)", rec.Path, ui.FormatBytes(rec.Size))
	if !rec.Valid {
		desc += " - invalid: " + rec.ValidationError
	}
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(rec.Path),
			URI:         uri,
			Description: desc,
			MIMEType:    "application/json",
		},
		s.makeDocumentHandler(rec.Path),
	)
}

func (s *Server) makeDocumentHandler(path string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readDocument(ctx, path)
	}
}

// readDocument returns the JSON text of an indexed document.
func (s *Server) readDocument(ctx context.Context, path string) (*mcp.ReadResourceResult, error) {
	uri := DocumentURI(path)

	rec, err := s.manifest.Get(ctx, path)
	if err != nil {
		return nil, MapError(err)
	}
	if rec == nil {
		return nil, NewResourceNotFoundError(uri)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", path)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(content)},
		},
	}, nil
}
