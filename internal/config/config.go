package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigName is the project configuration file looked up in the working directory.
	ProjectConfigName = ".metaindexer.yaml"
	// ProjectConfigAltName is accepted when ProjectConfigName is absent.
	ProjectConfigAltName = ".metaindexer.yml"
	// DataDirName holds the index, manifest and lock file.
	DataDirName = ".metaindexer"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "METAINDEXER_"
)

// Config represents the complete metaindexer configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Documents DocumentsConfig `yaml:"documents" json:"documents"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// IndexConfig locates the persistent index state.
type IndexConfig struct {
	// Path is the bleve index directory. Empty means in-memory.
	Path string `yaml:"path" json:"path"`
	// Manifest is the sqlite file tracking indexed files.
	Manifest  string `yaml:"manifest" json:"manifest"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	// Workers bounds concurrent file parsing. Zero means runtime.NumCPU.
	Workers int `yaml:"workers" json:"workers"`
	// WatchDebounce is a duration string such as "200ms".
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// DocumentsConfig selects and validates the JSON documents to index.
type DocumentsConfig struct {
	Dir        string   `yaml:"dir" json:"dir"`
	Extensions []string `yaml:"extensions" json:"extensions"`
	// Schema is a JSON Schema file. Empty disables validation.
	Schema string `yaml:"schema" json:"schema"`
	// Strict drops documents that fail validation instead of indexing them.
	Strict bool `yaml:"strict" json:"strict"`
}

// SearchConfig configures CSV identifier matching and free-text search.
type SearchConfig struct {
	CSVFile   string `yaml:"csv_file" json:"csv_file"`
	CSVColumn string `yaml:"csv_column" json:"csv_column"`
	Field     string `yaml:"field" json:"field"`
	Limit     int    `yaml:"limit" json:"limit"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// CorpusConfig configures the XML text corpus maker.
type CorpusConfig struct {
	Dir    string `yaml:"dir" json:"dir"`
	Output string `yaml:"output" json:"output"`
	// Filter is a regular expression a sentence must fully match to be kept.
	Filter string `yaml:"filter" json:"filter"`
	// Language is the code matched against SRX language maps.
	Language string `yaml:"language" json:"language"`
	// SRX is a rules file. Empty uses the embedded rules.
	SRX           string `yaml:"srx" json:"srx"`
	ReviewPattern string `yaml:"review_pattern" json:"review_pattern"`
	ReviewsOnly   bool   `yaml:"reviews_only" json:"reviews_only"`
	// Words selects word counting: "whitespace" tokens or "unicode" words.
	Words   string `yaml:"words" json:"words"`
	Workers int    `yaml:"workers" json:"workers"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// Default corpus expressions.
const (
	DefaultFilter        = `.*\bunderstandings?\b.*`
	DefaultReviewPattern = `eLife\.\d+\.[ra](sa)?\d+\.xml`
	DefaultLanguage      = "EN_one"
)

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Path:          filepath.Join(DataDirName, "index"),
			Manifest:      filepath.Join(DataDirName, "manifest.db"),
			BatchSize:     500,
			Workers:       runtime.NumCPU(),
			WatchDebounce: "200ms",
		},
		Documents: DocumentsConfig{
			Dir:        ".",
			Extensions: []string{".json"},
		},
		Search: SearchConfig{
			CSVColumn: "DOI",
			Field:     "doi",
			Limit:     10,
			CacheSize: 4096,
		},
		Corpus: CorpusConfig{
			Dir:           ".",
			Output:        "corpus.txt",
			Filter:        DefaultFilter,
			Language:      DefaultLanguage,
			ReviewPattern: DefaultReviewPattern,
			Words:         "whitespace",
			Workers:       runtime.NumCPU(),
		},
		Server: ServerConfig{
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/metaindexer/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/metaindexer/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "metaindexer", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "metaindexer", "config.yaml")
	}
	return filepath.Join(home, ".config", "metaindexer", "config.yaml")
}

// Load loads configuration for dir. Precedence, lowest first:
//  1. Defaults
//  2. User config
//  3. Project config (.metaindexer.yaml in dir)
//  4. Environment variables (METAINDEXER_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := FindProjectConfig(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults, then path, then environment overrides.
// Used when --config names an explicit file.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FindProjectConfig returns the project config path in dir, or "" when none exists.
// The .yaml name wins over .yml.
func FindProjectConfig(dir string) string {
	for _, name := range []string{ProjectConfigName, ProjectConfigAltName} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// fileConfig mirrors Config with pointer booleans so an explicit false in a
// file can override a true from a lower layer.
type fileConfig struct {
	Version   int `yaml:"version"`
	Index     IndexConfig `yaml:"index"`
	Documents struct {
		Dir        string   `yaml:"dir"`
		Extensions []string `yaml:"extensions"`
		Schema     string   `yaml:"schema"`
		Strict     *bool    `yaml:"strict"`
	} `yaml:"documents"`
	Search SearchConfig `yaml:"search"`
	Corpus struct {
		Dir           string `yaml:"dir"`
		Output        string `yaml:"output"`
		Filter        string `yaml:"filter"`
		Language      string `yaml:"language"`
		SRX           string `yaml:"srx"`
		ReviewPattern string `yaml:"review_pattern"`
		ReviewsOnly   *bool  `yaml:"reviews_only"`
		Words         string `yaml:"words"`
		Workers       int    `yaml:"workers"`
	} `yaml:"corpus"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *fileConfig) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Index
	setString(&c.Index.Path, other.Index.Path)
	setString(&c.Index.Manifest, other.Index.Manifest)
	setInt(&c.Index.BatchSize, other.Index.BatchSize)
	setInt(&c.Index.Workers, other.Index.Workers)
	setString(&c.Index.WatchDebounce, other.Index.WatchDebounce)

	// Documents
	setString(&c.Documents.Dir, other.Documents.Dir)
	if len(other.Documents.Extensions) > 0 {
		c.Documents.Extensions = other.Documents.Extensions
	}
	setString(&c.Documents.Schema, other.Documents.Schema)
	if other.Documents.Strict != nil {
		c.Documents.Strict = *other.Documents.Strict
	}

	// Search
	setString(&c.Search.CSVFile, other.Search.CSVFile)
	setString(&c.Search.CSVColumn, other.Search.CSVColumn)
	setString(&c.Search.Field, other.Search.Field)
	setInt(&c.Search.Limit, other.Search.Limit)
	setInt(&c.Search.CacheSize, other.Search.CacheSize)

	// Corpus
	oc := other.Corpus
	setString(&c.Corpus.Dir, oc.Dir)
	setString(&c.Corpus.Output, oc.Output)
	setString(&c.Corpus.Filter, oc.Filter)
	setString(&c.Corpus.Language, oc.Language)
	setString(&c.Corpus.SRX, oc.SRX)
	setString(&c.Corpus.ReviewPattern, oc.ReviewPattern)
	setString(&c.Corpus.Words, oc.Words)
	setInt(&c.Corpus.Workers, oc.Workers)
	if other.Corpus.ReviewsOnly != nil {
		c.Corpus.ReviewsOnly = *other.Corpus.ReviewsOnly
	}

	setString(&c.Server.Transport, other.Server.Transport)

	// Logging
	setString(&c.Logging.Level, other.Logging.Level)
	setString(&c.Logging.File, other.Logging.File)
	setInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies METAINDEXER_* environment variable overrides.
// Empty variables are ignored.
func (c *Config) applyEnvOverrides() {
	strs := map[string]*string{
		"INDEX_PATH":     &c.Index.Path,
		"MANIFEST":       &c.Index.Manifest,
		"DOCUMENTS_DIR":  &c.Documents.Dir,
		"SCHEMA":         &c.Documents.Schema,
		"CSV_FILE":       &c.Search.CSVFile,
		"CSV_COLUMN":     &c.Search.CSVColumn,
		"SEARCH_FIELD":   &c.Search.Field,
		"CORPUS_DIR":     &c.Corpus.Dir,
		"CORPUS_OUTPUT":  &c.Corpus.Output,
		"CORPUS_FILTER":  &c.Corpus.Filter,
		"LANGUAGE":       &c.Corpus.Language,
		"SRX":            &c.Corpus.SRX,
		"REVIEW_PATTERN": &c.Corpus.ReviewPattern,
		"CORPUS_WORDS":   &c.Corpus.Words,
		"TRANSPORT":      &c.Server.Transport,
		"LOG_LEVEL":      &c.Logging.Level,
		"LOG_FILE":       &c.Logging.File,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"BATCH_SIZE":     &c.Index.BatchSize,
		"WORKERS":        &c.Index.Workers,
		"SEARCH_LIMIT":   &c.Search.Limit,
		"CORPUS_WORKERS": &c.Corpus.Workers,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	if v := os.Getenv(EnvPrefix + "EXTENSIONS"); v != "" {
		var exts []string
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
		c.Documents.Extensions = exts
	}

	bools := map[string]*bool{
		"STRICT":       &c.Documents.Strict,
		"REVIEWS_ONLY": &c.Corpus.ReviewsOnly,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("index.workers must be non-negative, got %d", c.Index.Workers)
	}
	if c.Corpus.Workers < 0 {
		return fmt.Errorf("corpus.workers must be non-negative, got %d", c.Corpus.Workers)
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be non-negative, got %d", c.Search.Limit)
	}
	if strings.TrimSpace(c.Search.Field) == "" {
		return fmt.Errorf("search.field must not be empty")
	}
	if strings.TrimSpace(c.Search.CSVColumn) == "" {
		return fmt.Errorf("search.csv_column must not be empty")
	}
	if len(c.Documents.Extensions) == 0 {
		return fmt.Errorf("documents.extensions must list at least one extension")
	}

	// Corpus expressions run on regexp2 (lookarounds, backreferences).
	for name, expr := range map[string]string{
		"corpus.filter":         c.Corpus.Filter,
		"corpus.review_pattern": c.Corpus.ReviewPattern,
	} {
		if _, err := regexp2.Compile(expr, regexp2.None); err != nil {
			return fmt.Errorf("%s is not a valid regular expression: %w", name, err)
		}
	}
	switch c.Corpus.Words {
	case "whitespace", "unicode":
	default:
		return fmt.Errorf("corpus.words must be 'whitespace' or 'unicode', got %s", c.Corpus.Words)
	}
	if c.Index.WatchDebounce != "" {
		if d, err := time.ParseDuration(c.Index.WatchDebounce); err != nil || d < 0 {
			return fmt.Errorf("index.watch_debounce must be a duration like 200ms, got %s", c.Index.WatchDebounce)
		}
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ResolvePath makes a relative path absolute against base. Empty stays empty.
func ResolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
