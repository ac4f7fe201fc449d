package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/index"
	"github.com/marcinmilkowski/metaindexer/internal/output"
	"github.com/marcinmilkowski/metaindexer/internal/schema"
	"github.com/marcinmilkowski/metaindexer/internal/store"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

type indexOptions struct {
	schema string
	strict bool
	force  bool
	noTUI  bool
	format string
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Index a directory of JSON documents",
		Long: heredoc.Doc(`
			Index every JSON document under a directory.

			Top-level scalar values of each document become searchable fields;
			nested objects and arrays of objects are skipped. When a schema is
			given, documents are validated first. Invalid documents are indexed
			and counted, unless --strict keeps them out.

			Files whose size and modification time are unchanged since the last
			run are skipped, and files that disappeared are removed from the
			index. Use --force to reprocess everything.
		`),
		Example: heredoc.Doc(`
			metaindexer index ./records --schema review-schema.json
			metaindexer index --strict --no-tui
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir := root.cfg.Documents.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			if !cmd.Flags().Changed("strict") {
				opts.strict = root.cfg.Documents.Strict
			}
			if opts.schema == "" {
				opts.schema = root.cfg.Documents.Schema
			}
			return runIndex(ctx, cmd, root.cfg, opts, dir)
		},
	}

	cmd.Flags().StringVar(&opts.schema, "schema", "", "JSON Schema (draft 2020-12) to validate documents against")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Leave documents that fail validation out of the index")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Reprocess files even when unchanged")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *indexOptions, dir string) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return merrors.ValidationError(err.Error(), err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return merrors.New(merrors.ErrCodeInvalidPath, "failed to resolve path", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return merrors.IOError(fmt.Sprintf("documents directory not found: %s", absDir), err)
	}
	if !info.IsDir() {
		return merrors.New(merrors.ErrCodeInvalidPath, fmt.Sprintf("path is not a directory: %s", absDir), nil)
	}

	var validator *schema.Validator
	if opts.schema != "" {
		validator, err = schema.Load(opts.schema)
		if err != nil {
			return err
		}
	}

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	// JSON output owns stdout; progress goes to stderr instead.
	progressOut := cmd.OutOrStdout()
	if format == output.FormatJSON {
		progressOut = cmd.ErrOrStderr()
	}
	renderer := ui.NewRenderer(ui.NewConfig(progressOut, ui.WithForcePlain(opts.noTUI), ui.WithHeader(absDir)))

	runner, err := index.NewRunner(
		index.Dependencies{
			Index:     s.index,
			Manifest:  s.manifest,
			Validator: validator,
			Renderer:  renderer,
		},
		index.Options{
			Root:         absDir,
			Extensions:   cfg.Documents.Extensions,
			BatchSize:    cfg.Index.BatchSize,
			Workers:      cfg.Index.Workers,
			Strict:       opts.strict,
			Force:        opts.force,
			ExcludePaths: store.OwnedPaths(cfg.Index.Path, cfg.Index.Manifest),
		},
	)
	if err != nil {
		return err
	}

	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	summary, err := runner.Run(ctx)
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	slog.Info("index_complete",
		slog.String("root", absDir),
		slog.Int("indexed", summary.Indexed),
		slog.Int("invalid", summary.Invalid),
		slog.Duration("duration", summary.Duration))

	return output.NewWithFormat(cmd.OutOrStdout(), format).IndexSummary(summary)
}
