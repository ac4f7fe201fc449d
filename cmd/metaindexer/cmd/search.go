package cmd

import (
	"context"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/output"
	"github.com/marcinmilkowski/metaindexer/internal/store"
)

// searchOptions holds flags for the search command.
type searchOptions struct {
	field  string
	limit  int
	offset int
	format string
	show   []string
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the indexed documents",
		Long: heredoc.Doc(`
			Search the index with a bleve query string. Plain words search the
			document text with English stemming, field:value matches one field,
			+term requires a term and -term excludes it.

			With --field the whole query is matched exactly against that field,
			which is how identifiers such as DOIs are looked up.
		`),
		Example: heredoc.Doc(`
			metaindexer search understanding
			metaindexer search "+title:cell -retracted"
			metaindexer search --field doi 10.7554/eLife.00003
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if opts.limit <= 0 {
				opts.limit = root.cfg.Search.Limit
			}
			return runSearch(cmd.Context(), cmd, root.cfg, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.field, "field", "", "Match the query exactly against this field")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default: search.limit)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of results to skip")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringSliceVar(&opts.show, "show", nil, "Extra stored fields to print, e.g. --show filename,modified")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, query string, opts *searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return merrors.New(merrors.ErrCodeQueryEmpty, "query cannot be empty", nil)
	}
	if opts.offset < 0 {
		return merrors.ValidationError("offset cannot be negative", nil)
	}
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return merrors.ValidationError(err.Error(), err)
	}

	if !indexExists(cfg.Index.Path) {
		return merrors.New(merrors.ErrCodeFileNotFound, "no index found at "+cfg.Index.Path, nil).
			WithSuggestion("Run 'metaindexer index' first")
	}

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	res, err := s.index.Search(ctx, store.Query{
		Text:   query,
		Field:  opts.field,
		Limit:  opts.limit,
		Offset: opts.offset,
	})
	if err != nil {
		return err
	}

	return output.NewWithFormat(cmd.OutOrStdout(), format).SearchResults(query, res, opts.show)
}
