package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
)

// FileRecord is the manifest entry of one indexed file.
type FileRecord struct {
	Path            string    `json:"path"`
	Size            int64     `json:"size"`
	ModTime         int64     `json:"mod_time"` // Unix nanoseconds
	Valid           bool      `json:"valid"`
	ValidationError string    `json:"validation_error,omitempty"`
	IndexedAt       time.Time `json:"indexed_at"`
}

// Unchanged reports whether the record still describes a file of the given size and mtime.
func (r *FileRecord) Unchanged(size int64, modTime time.Time) bool {
	return r != nil && r.Size == size && r.ModTime == modTime.UnixNano()
}

// ManifestStats summarizes the manifest.
type ManifestStats struct {
	Files       int       `json:"files"`
	Invalid     int       `json:"invalid"`
	TotalBytes  int64     `json:"total_bytes"`
	LastIndexed time.Time `json:"last_indexed,omitempty"`
}

// Manifest tracks indexed files in sqlite so reruns can skip unchanged files
// and remove documents whose files disappeared.
type Manifest struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

const manifestSchema = `
CREATE TABLE IF NOT EXISTS files (
	path             TEXT PRIMARY KEY,
	size             INTEGER NOT NULL,
	mod_time         INTEGER NOT NULL,
	valid            INTEGER NOT NULL DEFAULT 1,
	validation_error TEXT NOT NULL DEFAULT '',
	indexed_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// validateManifestIntegrity runs PRAGMA integrity_check on an existing file.
func validateManifestIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// OpenManifest opens or creates the manifest at path. An empty path keeps it in memory.
func OpenManifest(path string) (*Manifest, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, merrors.New(merrors.ErrCodeFilePermission, "failed to create manifest directory", err).
				WithDetail("path", path)
		}

		if verr := validateManifestIntegrity(path); verr != nil {
			slog.Warn("manifest_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, merrors.New(merrors.ErrCodeCorruptIndex, "manifest corrupted and cannot be removed", err).
					WithDetail("path", path)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("manifest_cleared", slog.String("path", path))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeCorruptIndex, "failed to open manifest", err)
	}

	// One connection: sqlite has a single writer, and :memory: is per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, merrors.New(merrors.ErrCodeCorruptIndex, "failed to configure manifest", err)
		}
	}

	if _, err := db.Exec(manifestSchema); err != nil {
		_ = db.Close()
		return nil, merrors.New(merrors.ErrCodeCorruptIndex, "failed to create manifest schema", err)
	}

	return &Manifest{db: db, path: path}, nil
}

// Path returns the database file, or "" when in memory.
func (m *Manifest) Path() string { return m.path }

// Get returns the record for path, or nil when the file was never indexed.
func (m *Manifest) Get(ctx context.Context, path string) (*FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errManifestClosed()
	}

	row := m.db.QueryRowContext(ctx,
		`SELECT path, size, mod_time, valid, validation_error, indexed_at FROM files WHERE path = ?`, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest get %s: %w", path, err)
	}
	return rec, nil
}

// Upsert inserts or replaces records in one transaction.
func (m *Manifest) Upsert(ctx context.Context, records ...*FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errManifestClosed()
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (path, size, mod_time, valid, validation_error, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			valid = excluded.valid,
			validation_error = excluded.validation_error,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("manifest prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		indexedAt := r.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.Path, r.Size, r.ModTime, boolToInt(r.Valid),
			r.ValidationError, indexedAt.UnixNano()); err != nil {
			return fmt.Errorf("manifest upsert %s: %w", r.Path, err)
		}
	}
	return tx.Commit()
}

// Delete removes records for paths.
func (m *Manifest) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errManifestClosed()
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, p); err != nil {
			return fmt.Errorf("manifest delete %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// All returns every record ordered by path.
func (m *Manifest) All(ctx context.Context) ([]*FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errManifestClosed()
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT path, size, mod_time, valid, validation_error, indexed_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("manifest list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("manifest scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats aggregates the manifest.
func (m *Manifest) Stats(ctx context.Context) (*ManifestStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errManifestClosed()
	}

	var (
		stats   ManifestStats
		invalid sql.NullInt64
		bytes   sql.NullInt64
		last    sql.NullInt64
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN valid = 0 THEN 1 ELSE 0 END), SUM(size), MAX(indexed_at)
		FROM files`).Scan(&stats.Files, &invalid, &bytes, &last)
	if err != nil {
		return nil, fmt.Errorf("manifest stats: %w", err)
	}
	stats.Invalid = int(invalid.Int64)
	stats.TotalBytes = bytes.Int64
	if last.Valid {
		stats.LastIndexed = time.Unix(0, last.Int64)
	}
	return &stats, nil
}

// SetState stores a key/value pair, such as the last indexed root.
func (m *Manifest) SetState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errManifestClosed()
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// GetState returns the value for key, or "" when unset.
func (m *Manifest) GetState(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", errManifestClosed()
	}
	var v string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// Close closes the database. Closing twice is a no-op.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*FileRecord, error) {
	var (
		rec       FileRecord
		valid     int
		indexedAt int64
	)
	if err := row.Scan(&rec.Path, &rec.Size, &rec.ModTime, &valid, &rec.ValidationError, &indexedAt); err != nil {
		return nil, err
	}
	rec.Valid = valid != 0
	rec.IndexedAt = time.Unix(0, indexedAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func errManifestClosed() error {
	return merrors.InternalError("manifest is closed", nil)
}

// State keys.
const (
	StateKeyRoot = "root"
)
