package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/mcp"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server over stdio.

The server answers searches, identifier lookups and CSV-style identifier
matching against the existing index, and publishes every indexed document
as a file:// resource. stdout belongs to the protocol; logs go to
~/.metaindexer/logs/metaindexer.log or logging.file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if transport == "" {
				transport = root.cfg.Server.Transport
			}
			return runServe(ctx, root.cfg, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio (default: server.transport)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, transport string) error {
	if transport != "" && transport != "stdio" {
		return merrors.ValidationError(fmt.Sprintf("unknown transport: %s (supported: stdio)", transport), nil)
	}

	// bleve holds the index open exclusively, so the server takes the lock
	// and a concurrent 'metaindexer index' fails fast instead of hanging.
	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	server, err := mcp.NewServer(mcp.Options{
		Index:          s.index,
		Manifest:       s.manifest,
		Field:          cfg.Search.Field,
		MatchCacheSize: cfg.Search.CacheSize,
		Logger:         slog.Default(),
	})
	if err != nil {
		return err
	}

	if _, err := server.RegisterResources(ctx); err != nil {
		slog.Warn("failed to register document resources", slog.String("error", err.Error()))
	}

	return server.Serve(ctx, transport)
}
