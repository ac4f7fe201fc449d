package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	"github.com/marcinmilkowski/metaindexer/internal/corpus"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/output"
	"github.com/marcinmilkowski/metaindexer/internal/srx"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

// corpusOptions holds flags for the corpus subcommands.
type corpusOptions struct {
	output      string
	filter      string
	language    string
	srx         string
	reviewsOnly bool
	words       string
	noTUI       bool
	format      string
}

func newCorpusCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Build sentence corpora from XML articles",
		Long: heredoc.Doc(`
			Work with a directory of XML articles, such as eLife articles and
			their peer reviews. Markup, comments and character references are
			stripped before words are counted or sentences are split.

			Review files are recognised by name (corpus.review_pattern), for
			example eLife.00003.r001.xml or eLife.00003.a013.xml.
		`),
	}

	cmd.AddCommand(newCorpusBuildCmd(root))
	cmd.AddCommand(newCorpusStatsCmd(root))

	return cmd
}

func newCorpusBuildCmd(root *rootOptions) *cobra.Command {
	opts := &corpusOptions{}

	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Write filtered sentences of every article to a corpus file",
		Long: heredoc.Doc(`
			Split the text of every XML file into sentences with SRX rules and
			append the sentences that fully match --filter to the output file,
			one per line, in file path order. Use --output - for stdout.

			Word statistics of the review files are printed afterwards.
		`),
		Example: heredoc.Doc(`
			metaindexer corpus build ./articles --output understanding.txt
			metaindexer corpus build --filter '.*\bexplain(s|ed)?\b.*' --reviews-only
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts.applyDefaults(cmd, root.cfg)
			dir := root.cfg.Corpus.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			return runCorpusBuild(ctx, cmd, root.cfg, opts, dir)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Corpus file to append to, - for stdout (default: corpus.output)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Regular expression a sentence must fully match (default: corpus.filter)")
	cmd.Flags().StringVar(&opts.language, "language", "", "Language code matched against the SRX language maps (default: corpus.language)")
	cmd.Flags().StringVar(&opts.srx, "srx", "", "SRX 2.0 rules file (default: embedded rules)")
	cmd.Flags().BoolVar(&opts.reviewsOnly, "reviews-only", false, "Only take sentences from review files")
	cmd.Flags().StringVar(&opts.words, "words", "", "Word counting: whitespace or unicode (default: corpus.words)")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Statistics format: text, json")

	return cmd
}

func newCorpusStatsCmd(root *rootOptions) *cobra.Command {
	opts := &corpusOptions{}

	cmd := &cobra.Command{
		Use:   "stats [dir]",
		Short: "Print word statistics of the review files",
		Long: heredoc.Doc(`
			Count the words of every review file and print the total, the
			number of files and the mean and median word counts.
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts.applyDefaults(cmd, root.cfg)
			dir := root.cfg.Corpus.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			return runCorpusStats(ctx, cmd, root.cfg, opts, dir)
		},
	}

	cmd.Flags().StringVar(&opts.words, "words", "", "Word counting: whitespace or unicode (default: corpus.words)")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func (o *corpusOptions) applyDefaults(cmd *cobra.Command, cfg *config.Config) {
	if o.output == "" {
		o.output = cfg.Corpus.Output
	}
	if o.filter == "" {
		o.filter = cfg.Corpus.Filter
	}
	if o.language == "" {
		o.language = cfg.Corpus.Language
	}
	if o.srx == "" {
		o.srx = cfg.Corpus.SRX
	}
	if o.words == "" {
		o.words = cfg.Corpus.Words
	}
	if !cmd.Flags().Changed("reviews-only") {
		o.reviewsOnly = cfg.Corpus.ReviewsOnly
	}
}

// loadSegmenter reads the SRX rules, falling back to the embedded ones.
func loadSegmenter(path, language string) (*srx.Segmenter, error) {
	var (
		doc *srx.Document
		err error
	)
	if path == "" {
		doc, err = srx.Default()
	} else {
		doc, err = srx.Load(path)
	}
	if err != nil {
		return nil, err
	}
	return doc.Segmenter(language)
}

func runCorpusBuild(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *corpusOptions, dir string) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return merrors.ValidationError(err.Error(), err)
	}

	seg, err := loadSegmenter(opts.srx, opts.language)
	if err != nil {
		return err
	}

	toStdout := opts.output == "-"
	// Stats and progress must not interleave with corpus text on stdout.
	infoOut := cmd.OutOrStdout()
	if toStdout {
		infoOut = cmd.ErrOrStderr()
	}
	renderer := ui.NewRenderer(ui.NewConfig(infoOut, ui.WithForcePlain(opts.noTUI || toStdout), ui.WithHeader(dir)))

	maker, err := corpus.NewMaker(corpus.Options{
		Segmenter:     seg,
		Filter:        opts.filter,
		ReviewPattern: cfg.Corpus.ReviewPattern,
		Workers:       cfg.Corpus.Workers,
		ReviewsOnly:   opts.reviewsOnly,
		Words:         corpus.WordMode(opts.words),
		Renderer:      renderer,
	})
	if err != nil {
		return err
	}

	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	var st *corpus.Stats
	if toStdout {
		st, err = maker.Build(ctx, dir, cmd.OutOrStdout())
	} else {
		st, err = maker.BuildFile(ctx, dir, opts.output)
	}
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	slog.Info("corpus_written",
		slog.String("output", opts.output),
		slog.Int("sentences", st.Sentences),
		slog.String("language", seg.Language()))

	return writeCorpusStats(infoOut, format, st)
}

func runCorpusStats(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *corpusOptions, dir string) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return merrors.ValidationError(err.Error(), err)
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(), ui.WithForcePlain(opts.noTUI), ui.WithHeader(dir)))
	maker, err := corpus.NewMaker(corpus.Options{
		ReviewPattern: cfg.Corpus.ReviewPattern,
		Workers:       cfg.Corpus.Workers,
		Words:         corpus.WordMode(opts.words),
		Renderer:      renderer,
	})
	if err != nil {
		return err
	}

	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	st, err := maker.Stats(ctx, dir)
	_ = renderer.Stop()
	if err != nil {
		return err
	}
	return writeCorpusStats(cmd.OutOrStdout(), format, st)
}

func writeCorpusStats(w io.Writer, format output.Format, st *corpus.Stats) error {
	return output.NewWithFormat(w, format).CorpusStats(st)
}
