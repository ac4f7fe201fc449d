package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/index"
	"github.com/marcinmilkowski/metaindexer/internal/output"
	"github.com/marcinmilkowski/metaindexer/internal/store"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

type statusOptions struct {
	jsonOutput bool
	check      bool
	repair     bool
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long: `Show the number of indexed documents and files, schema validation
failures, storage sizes and whether another process holds the index lock.

Use --check to compare the manifest with the index and --repair to fix
the differences found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.repair {
				opts.check = true
			}
			return runStatus(cmd.Context(), cmd, root.cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Check the index against the manifest")
	cmd.Flags().BoolVar(&opts.repair, "repair", false, "Fix differences found by --check")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *statusOptions) error {
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
	render := func(info ui.StatusInfo) error {
		if opts.jsonOutput {
			return renderer.RenderJSON(info)
		}
		return renderer.Render(info)
	}

	info := ui.StatusInfo{
		IndexPath: cfg.Index.Path,
		Schema:    cfg.Documents.Schema,
		Lock:      "n/a",
	}

	if !indexExists(cfg.Index.Path) {
		if opts.jsonOutput {
			return render(info)
		}
		out := output.New(cmd.OutOrStdout())
		out.Warningf("No index found at %s", cfg.Index.Path)
		out.Status("💡", "Run 'metaindexer index' to create one")
		return nil
	}

	s, err := openStores(cfg)
	if merrors.HasCode(err, merrors.ErrCodeIndexLocked) {
		// Opening the index would block behind the writer.
		info.Lock = "held"
		return render(info)
	}
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	info.Lock = "free"

	if err := fillStatus(ctx, s, cfg, &info); err != nil {
		return err
	}
	if err := render(info); err != nil {
		return err
	}

	if !opts.check {
		return nil
	}
	return runCheck(ctx, cmd, s, opts)
}

func fillStatus(ctx context.Context, s *stores, cfg *config.Config, info *ui.StatusInfo) error {
	count, err := s.index.DocCount()
	if err != nil {
		return err
	}
	info.Documents = count

	stats, err := s.manifest.Stats(ctx)
	if err != nil {
		return err
	}
	info.Files = stats.Files
	info.Invalid = stats.Invalid
	info.SourceBytes = stats.TotalBytes
	info.LastIndexed = stats.LastIndexed

	if info.Root, err = s.manifest.GetState(ctx, store.StateKeyRoot); err != nil {
		return err
	}

	info.IndexSize = dirSize(cfg.Index.Path)
	if fi, err := os.Stat(cfg.Index.Manifest); err == nil {
		info.ManifestSize = fi.Size()
	}
	return nil
}

func runCheck(ctx context.Context, cmd *cobra.Command, s *stores, opts *statusOptions) error {
	checker := index.NewConsistencyChecker(s.index, s.manifest)
	result, err := checker.Check(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		if err := out.JSON(result); err != nil {
			return err
		}
	} else {
		out.Newline()
		if result.Consistent() {
			out.Successf("Index matches the manifest (%d files checked)", result.Checked)
		} else {
			out.Warningf("%d orphaned documents, %d files missing from the index",
				len(result.Orphans), len(result.Missing))
		}
	}

	if !opts.repair || result.Consistent() {
		return nil
	}
	if err := checker.Repair(ctx, result); err != nil {
		return err
	}
	if !opts.jsonOutput {
		out.Success("Repaired; run 'metaindexer index' to reindex missing files")
	}
	return nil
}

// dirSize sums the sizes of the regular files under dir.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
