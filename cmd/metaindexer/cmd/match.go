package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/matcher"
	"github.com/marcinmilkowski/metaindexer/internal/output"
)

// matchOptions holds flags shared by the match command and the root command.
type matchOptions struct {
	column      string
	field       string
	showMissing bool
	format      string
}

func (o *matchOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.column, "column", "", "CSV header of the identifier column (default: search.csv_column)")
	cmd.Flags().StringVar(&o.field, "field", "", "Index field holding the identifiers (default: search.field)")
	cmd.Flags().BoolVar(&o.showMissing, "show-missing", false, "List identifiers not found in the index")
	cmd.Flags().StringVarP(&o.format, "format", "f", "text", "Output format: text, json")
}

func newMatchCmd(root *rootOptions) *cobra.Command {
	opts := &matchOptions{}

	cmd := &cobra.Command{
		Use:   "match [csv]",
		Short: "Count CSV identifiers present in the index",
		Long: heredoc.Doc(`
			Read a CSV file with a header row and look up the identifier column
			of every record in the index. Each distinct identifier is counted
			once; blank identifiers count as records but never match.

			Prints "Number of matching DOIs: M out of N", where N is the number
			of data records.
		`),
		Example: heredoc.Doc(`
			metaindexer match export.csv
			metaindexer match export.csv --column "Article DOI" --show-missing
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.cfg.Search.CSVFile
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return merrors.ValidationError("no CSV file given", nil).
					WithSuggestion("Pass a file or set search.csv_file in .metaindexer.yaml")
			}
			return runMatch(cmd, root, opts, path)
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func runMatch(cmd *cobra.Command, root *rootOptions, opts *matchOptions, path string) error {
	cfg := root.cfg
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return merrors.ValidationError(err.Error(), err)
	}
	column := opts.column
	if column == "" {
		column = cfg.Search.CSVColumn
	}
	field := opts.field
	if field == "" {
		field = cfg.Search.Field
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

	m, err := matcher.New(s.index, matcher.Options{
		Column:    column,
		Field:     field,
		CacheSize: cfg.Search.CacheSize,
	})
	if err != nil {
		return err
	}

	res, err := m.MatchFile(cmd.Context(), path)
	if err != nil {
		return err
	}

	return output.NewWithFormat(cmd.OutOrStdout(), format).MatchResult(res, opts.showMissing)
}
