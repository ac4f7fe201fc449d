// Package cmd provides the CLI commands for metaindexer.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/marcinmilkowski/metaindexer/internal/config"
	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
	"github.com/marcinmilkowski/metaindexer/internal/logging"
	"github.com/marcinmilkowski/metaindexer/internal/profiling"
	"github.com/marcinmilkowski/metaindexer/pkg/version"
)

// annotationNoConfig marks commands that run with defaults when the
// configuration cannot be loaded.
const annotationNoConfig = "metaindexer/no-config"

// rootOptions holds the global flags and the state they produce.
type rootOptions struct {
	configPath string
	indexPath  string
	debug      bool
	profile    profiling.Options

	cfg        *config.Config
	profiler   *profiling.Session
	logCleanup func()
}

// NewRootCmd creates the root command for the metaindexer CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	match := &matchOptions{}

	cmd := &cobra.Command{
		Use:   "metaindexer",
		Short: "Index, validate and search research metadata kept as JSON files",
		Long: heredoc.Doc(`
			metaindexer keeps a full-text index of JSON metadata records, checks
			them against a JSON Schema, matches identifier lists such as DOIs
			from CSV files against the index, and builds sentence corpora from
			XML articles.

			Run without a subcommand it matches search.csv_file from the
			configuration against the index and prints the summary line.
		`),
		Example: heredoc.Doc(`
			# Index the documents in ./records
			metaindexer index ./records

			# Count how many DOIs of a CSV export are indexed
			metaindexer match export.csv --column DOI

			# Free-text search
			metaindexer search "cell division"
		`),
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.Search.CSVFile == "" {
				return cmd.Help()
			}
			return runMatch(cmd, opts, match, opts.cfg.Search.CSVFile)
		},
	}

	cmd.SetVersionTemplate("metaindexer version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file (default: .metaindexer.yaml in the working directory)")
	cmd.PersistentFlags().StringVar(&opts.indexPath, "index", "", "Index directory; the manifest is kept next to it")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr and ~/.metaindexer/logs/")

	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")
	_ = cmd.PersistentFlags().MarkHidden("profile-trace")

	match.addFlags(cmd)

	cmd.PersistentPreRunE = opts.setup
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return opts.close()
	}

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newMatchCmd(opts))
	cmd.AddCommand(newCorpusCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	opts := &rootOptions{}
	err := newRootCmd(opts).Execute()
	if cerr := opts.close(); err == nil {
		err = cerr
	}
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, merrors.FormatForCLI(err))
	}
	return err
}

// setup loads the configuration, then starts logging and profiling.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := o.loadConfig()
	if err != nil {
		if cmd.Annotations[annotationNoConfig] == "" {
			return err
		}
		slog.Warn("using default configuration", slog.String("error", err.Error()))
		cfg = config.NewConfig()
	}
	o.cfg = cfg

	logger, cleanup, err := logging.Setup(loggingConfig(cfg, o.debug, cmd.Name() == "serve"))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.logCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled",
		slog.String("log_file", cfg.Logging.File),
		slog.String("version", version.Version))

	if o.profile.Enabled() {
		o.profiler, err = profiling.Start(o.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

// close stops profiling and flushes logs. It is safe to call more than once.
func (o *rootOptions) close() error {
	var err error
	if o.profiler != nil {
		err = o.profiler.Stop()
		o.profiler = nil
	}
	if o.logCleanup != nil {
		o.logCleanup()
		o.logCleanup = nil
	}
	return err
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg  *config.Config
		base string
		err  error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
		base = filepath.Dir(o.configPath)
	} else {
		base, err = os.Getwd()
		if err != nil {
			return nil, merrors.IOError("failed to get working directory", err)
		}
		cfg, err = config.Load(base)
	}
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeConfigInvalid, fmt.Sprintf("failed to load configuration: %v", err), err).
			WithSuggestion("Check the file with 'metaindexer config show'")
	}

	resolveConfigPaths(cfg, base)

	if o.indexPath != "" {
		cfg.Index.Path = o.indexPath
		cfg.Index.Manifest = filepath.Join(filepath.Dir(o.indexPath), "manifest.db")
	}
	return cfg, nil
}

// resolveConfigPaths makes relative paths in cfg relative to base, the
// directory of the configuration file.
func resolveConfigPaths(cfg *config.Config, base string) {
	for _, p := range []*string{
		&cfg.Index.Path,
		&cfg.Index.Manifest,
		&cfg.Documents.Dir,
		&cfg.Documents.Schema,
		&cfg.Search.CSVFile,
		&cfg.Corpus.Dir,
		&cfg.Corpus.Output,
		&cfg.Corpus.SRX,
		&cfg.Logging.File,
	} {
		*p = config.ResolvePath(base, *p)
	}
}

// loggingConfig derives the log setup for a command. The CLI logs to a file
// only when one is configured; --debug adds stderr and the default log file.
// serve never writes to stderr and always keeps a log file.
func loggingConfig(cfg *config.Config, debug, serve bool) logging.Config {
	lc := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if debug {
		lc.Level = "debug"
		lc.Stderr = true
		if lc.FilePath == "" {
			lc.FilePath = logging.DefaultLogPath()
		}
	}
	if serve {
		base := logging.ServeConfig(lc.Level)
		lc.Stderr = base.Stderr
		if lc.FilePath == "" {
			lc.FilePath = base.FilePath
		}
	}
	return lc
}
