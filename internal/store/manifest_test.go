package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_UpsertGetDelete(t *testing.T) {
	m, err := OpenManifest("")
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	mod := time.Unix(1700000000, 123)
	require.NoError(t, m.Upsert(ctx,
		&FileRecord{Path: "/d/a.json", Size: 10, ModTime: mod.UnixNano(), Valid: true},
		&FileRecord{Path: "/d/b.json", Size: 20, ModTime: mod.UnixNano(), Valid: false, ValidationError: "missing doi"},
	))

	rec, err := m.Get(ctx, "/d/a.json")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(10), rec.Size)
	assert.True(t, rec.Valid)
	assert.True(t, rec.Unchanged(10, mod))
	assert.False(t, rec.Unchanged(11, mod))
	assert.False(t, rec.IndexedAt.IsZero())

	rec, err = m.Get(ctx, "/d/missing.json")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Upsert replaces
	require.NoError(t, m.Upsert(ctx, &FileRecord{Path: "/d/b.json", Size: 21, ModTime: 1, Valid: true}))
	rec, err = m.Get(ctx, "/d/b.json")
	require.NoError(t, err)
	assert.Equal(t, int64(21), rec.Size)
	assert.Empty(t, rec.ValidationError)

	require.NoError(t, m.Delete(ctx, "/d/a.json"))
	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/d/b.json", all[0].Path)
}

func TestManifest_Stats(t *testing.T) {
	m, err := OpenManifest("")
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
	assert.True(t, stats.LastIndexed.IsZero())

	require.NoError(t, m.Upsert(ctx,
		&FileRecord{Path: "a", Size: 5, Valid: true},
		&FileRecord{Path: "b", Size: 7, Valid: false},
	))
	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, int64(12), stats.TotalBytes)
	assert.False(t, stats.LastIndexed.IsZero())
}

func TestManifest_State(t *testing.T) {
	m, err := OpenManifest("")
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	v, err := m.GetState(ctx, StateKeyRoot)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, m.SetState(ctx, StateKeyRoot, "/data"))
	require.NoError(t, m.SetState(ctx, StateKeyRoot, "/data2"))
	v, err = m.GetState(ctx, StateKeyRoot)
	require.NoError(t, err)
	assert.Equal(t, "/data2", v)
}

func TestManifest_PersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "manifest.db")
	m, err := OpenManifest(path)
	require.NoError(t, err)
	require.NoError(t, m.Upsert(context.Background(), &FileRecord{Path: "x", Size: 1, Valid: true}))
	require.NoError(t, m.Close())

	m, err = OpenManifest(path)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	all, err := m.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestManifest_ReplacesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0o644))

	m, err := OpenManifest(path)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	all, err := m.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManifest_Closed(t *testing.T) {
	m, err := OpenManifest("")
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.All(context.Background())
	assert.Error(t, err)
}
