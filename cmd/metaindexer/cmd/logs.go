package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dlclark/regexp2"
	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/corpus"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/logging"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd(root *rootOptions) *cobra.Command {
	opts := &logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View metaindexer logs",
		Long: heredoc.Doc(`
			Show the last lines of the JSON log file written by 'serve',
			--debug runs and logging.file. Use -f to follow new entries.
		`),
		Example: heredoc.Doc(`
			metaindexer logs -n 100
			metaindexer logs -f --level warn
			metaindexer logs --filter 'search (started|failed)'
		`),
		Annotations: map[string]string{annotationNoConfig: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.file == "" {
				opts.file = root.cfg.Logging.File
			}
			if opts.file == "" {
				opts.file = logging.DefaultLogPath()
			}
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level to show (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this regular expression")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default: logging.file or ~/.metaindexer/logs/metaindexer.log)")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts *logsOptions) error {
	if opts.level != "" && !logging.ValidLevel(opts.level) {
		return merrors.ValidationError(fmt.Sprintf("unknown level %q", opts.level), nil)
	}
	var pattern *regexp2.Regexp
	if opts.filter != "" {
		var err error
		pattern, err = regexp2.Compile(opts.filter, regexp2.None)
		if err != nil {
			return merrors.New(merrors.ErrCodePatternInvalid, fmt.Sprintf("invalid filter %q", opts.filter), err)
		}
		pattern.MatchTimeout = corpus.MatchTimeout
	}
	if _, err := os.Stat(opts.file); err != nil {
		return merrors.IOError("log file not found: "+opts.file, err).
			WithSuggestion("Logs are written by 'metaindexer serve', --debug, or when logging.file is set")
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || ui.DetectNoColor() || !ui.IsTTY(out),
	}, out)

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n---\n", opts.file)

	if !opts.follow {
		entries, err := viewer.Tail(opts.file, opts.lines)
		if err != nil {
			return merrors.IOError("failed to read log file", err)
		}
		viewer.Print(entries)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, opts.file, entries) }()

	for {
		select {
		case e := <-entries:
			_, _ = fmt.Fprintln(out, viewer.Format(e))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
