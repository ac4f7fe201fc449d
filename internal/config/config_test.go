package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config somewhere empty so host files never leak in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, filepath.Join(".metaindexer", "index"), cfg.Index.Path)
	assert.Equal(t, filepath.Join(".metaindexer", "manifest.db"), cfg.Index.Manifest)
	assert.Equal(t, 500, cfg.Index.BatchSize)
	assert.Equal(t, runtime.NumCPU(), cfg.Index.Workers)
	assert.Equal(t, []string{".json"}, cfg.Documents.Extensions)
	assert.Empty(t, cfg.Documents.Schema)
	assert.False(t, cfg.Documents.Strict)
	assert.Equal(t, "DOI", cfg.Search.CSVColumn)
	assert.Equal(t, "doi", cfg.Search.Field)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Equal(t, "corpus.txt", cfg.Corpus.Output)
	assert.Equal(t, `.*\bunderstandings?\b.*`, cfg.Corpus.Filter)
	assert.Equal(t, "EN_one", cfg.Corpus.Language)
	assert.Equal(t, `eLife\.\d+\.[ra](sa)?\d+\.xml`, cfg.Corpus.ReviewPattern)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_ProjectFile_OverridesDefaults(t *testing.T) {
	// Given: a project config with a few overrides
	isolate(t)
	dir := t.TempDir()
	yaml := `
index:
  batch_size: 50
documents:
  schema: schema.json
  strict: true
search:
  csv_column: Identifier
corpus:
  reviews_only: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".metaindexer.yaml"), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: overrides apply and other defaults survive
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Index.BatchSize)
	assert.Equal(t, "schema.json", cfg.Documents.Schema)
	assert.True(t, cfg.Documents.Strict)
	assert.Equal(t, "Identifier", cfg.Search.CSVColumn)
	assert.Equal(t, "doi", cfg.Search.Field)
	assert.True(t, cfg.Corpus.ReviewsOnly)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".metaindexer.yml"), []byte("search:\n  field: id\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.Search.Field)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".metaindexer.yaml"), []byte("search:\n  field: a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".metaindexer.yml"), []byte("search:\n  field: b\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.Search.Field)
}

func TestLoad_ProjectFalseOverridesUserTrue(t *testing.T) {
	// Given: user config enables strict, project config disables it
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	userDir := filepath.Join(xdg, "metaindexer")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte("documents:\n  strict: true\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".metaindexer.yaml"), []byte("documents:\n  strict: false\n"), 0o644))

	// When
	cfg, err := Load(dir)

	// Then: the project layer wins
	require.NoError(t, err)
	assert.False(t, cfg.Documents.Strict)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".metaindexer.yaml"), []byte("index: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("METAINDEXER_CSV_COLUMN", "ID")
	t.Setenv("METAINDEXER_BATCH_SIZE", "7")
	t.Setenv("METAINDEXER_EXTENSIONS", ".json, .jsonld")
	t.Setenv("METAINDEXER_STRICT", "true")
	t.Setenv("METAINDEXER_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "ID", cfg.Search.CSVColumn)
	assert.Equal(t, 7, cfg.Index.BatchSize)
	assert.Equal(t, []string{".json", ".jsonld"}, cfg.Documents.Extensions)
	assert.True(t, cfg.Documents.Strict)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvEmptyString_DoesNotOverride(t *testing.T) {
	isolate(t)
	t.Setenv("METAINDEXER_SEARCH_FIELD", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "doi", cfg.Search.Field)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch", func(c *Config) { c.Index.BatchSize = 0 }},
		{"negative workers", func(c *Config) { c.Index.Workers = -1 }},
		{"empty field", func(c *Config) { c.Search.Field = " " }},
		{"empty column", func(c *Config) { c.Search.CSVColumn = "" }},
		{"no extensions", func(c *Config) { c.Documents.Extensions = nil }},
		{"bad filter", func(c *Config) { c.Corpus.Filter = "(" }},
		{"bad review pattern", func(c *Config) { c.Corpus.ReviewPattern = "[a" }},
		{"unknown word mode", func(c *Config) { c.Corpus.Words = "tokens" }},
		{"bad debounce", func(c *Config) { c.Index.WatchDebounce = "soon" }},
		{"bad transport", func(c *Config) { c.Server.Transport = "sse" }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corpus:\n  language: EN\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "EN", cfg.Corpus.Language)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.Field = "identifier"

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".metaindexer.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "identifier", loaded.Search.Field)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "metaindexer", "config.yaml"), GetUserConfigPath())
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "", ResolvePath("/base", ""))
	assert.Equal(t, "/abs/x", ResolvePath("/base", "/abs/x"))
	assert.Equal(t, filepath.Join("/base", "rel"), ResolvePath("/base", "rel"))
}

func TestBackupFile(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), ".metaindexer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: backing it up
	backup, err := BackupFile(path)

	// Then: the backup holds the same bytes
	require.NoError(t, err)
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))

	list, err := ListBackups(path)
	require.NoError(t, err)
	assert.Equal(t, []string{backup}, list)
}

func TestBackupFile_Missing(t *testing.T) {
	backup, err := BackupFile(filepath.Join(t.TempDir(), "none.yaml"))
	assert.NoError(t, err)
	assert.Empty(t, backup)
}
