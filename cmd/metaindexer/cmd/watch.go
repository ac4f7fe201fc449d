package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/index"
	"github.com/marcinmilkowski/metaindexer/internal/output"
	"github.com/marcinmilkowski/metaindexer/internal/schema"
	"github.com/marcinmilkowski/metaindexer/internal/store"
	"github.com/marcinmilkowski/metaindexer/internal/watcher"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep the index in sync with a directory",
		Long: heredoc.Doc(`
			Index a directory, then watch it and update the index as JSON
			documents are created, modified or deleted. Runs until interrupted.
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir := root.cfg.Documents.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			if schemaPath == "" {
				schemaPath = root.cfg.Documents.Schema
			}
			return runWatch(ctx, cmd, root.cfg, dir, schemaPath)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON Schema (draft 2020-12) to validate documents against")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, dir, schemaPath string) error {
	out := output.New(cmd.OutOrStdout())

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return merrors.New(merrors.ErrCodeInvalidPath, "failed to resolve path", err)
	}

	debounce := 200 * time.Millisecond
	if cfg.Index.WatchDebounce != "" {
		d, err := time.ParseDuration(cfg.Index.WatchDebounce)
		if err != nil {
			return merrors.ConfigError(fmt.Sprintf("invalid index.watch_debounce %q", cfg.Index.WatchDebounce), err)
		}
		debounce = d
	}

	var validator *schema.Validator
	if schemaPath != "" {
		if validator, err = schema.Load(schemaPath); err != nil {
			return err
		}
	}

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	owned := store.OwnedPaths(cfg.Index.Path, cfg.Index.Manifest)
	runner, err := index.NewRunner(
		index.Dependencies{Index: s.index, Manifest: s.manifest, Validator: validator},
		index.Options{
			Root:         absDir,
			Extensions:   cfg.Documents.Extensions,
			BatchSize:    cfg.Index.BatchSize,
			Workers:      cfg.Index.Workers,
			Strict:       cfg.Documents.Strict,
			ExcludePaths: owned,
		},
	)
	if err != nil {
		return err
	}

	// Catch up with changes made while nothing was watching.
	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if err := out.IndexSummary(summary); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow: debounce,
		Extensions:     cfg.Documents.Extensions,
		ExcludePaths:   owned,
	})
	if err != nil {
		return merrors.InternalError("failed to create watcher", err)
	}
	defer func() { _ = w.Stop() }()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, absDir) }()

	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", absDir)
	slog.Info("watch_started", slog.String("root", absDir), slog.Duration("debounce", debounce))

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch_stopped", slog.Uint64("dropped_batches", w.DroppedBatches()))
			return nil

		case err := <-startErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return merrors.IOError("watcher stopped", err)
			}
			return nil

		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			summary, err := runner.Apply(ctx, events)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			out.Statusf("↻", "%d updated, %d removed, %d invalid, %d failed",
				summary.Indexed, summary.Removed, summary.Invalid, summary.Failed)

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}
