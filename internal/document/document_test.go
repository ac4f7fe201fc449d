package document

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, name, body string) (string, os.FileInfo) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return path, info
}

func TestFromJSON_TopLevelScalars(t *testing.T) {
	// Given: a record mixing scalars and nested values
	body := `{
  "doi": "10.7554/eLife.00003",
  "year": 2012,
  "score": 3.50,
  "big": 1e3,
  "open": true,
  "retracted": false,
  "authors": ["A", "B"],
  "journal": {"name": "eLife"},
  "note": null,
  "title": "On understanding"
}`
	path, info := writeJSON(t, "a.json", body)

	// When
	doc, err := FromJSON(path, info, []byte(body))

	// Then: scalars become fields, nested values are skipped
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(path), doc.ID)
	assert.Equal(t, "10.7554/eLife.00003", doc.Get("doi"))
	assert.Equal(t, "2012", doc.Get("year"))
	assert.Equal(t, "3.50", doc.Get("score"))
	assert.Equal(t, "1e3", doc.Get("big"))
	assert.Equal(t, "true", doc.Get("open"))
	assert.Equal(t, "false", doc.Get("retracted"))
	assert.NotContains(t, doc.Fields, "authors")
	assert.NotContains(t, doc.Fields, "journal")
	assert.NotContains(t, doc.Fields, "note")
	assert.Equal(t, "10.7554/eLife.00003\nOn understanding", doc.Content)
}

func TestFromJSON_Metadata(t *testing.T) {
	path, info := writeJSON(t, "meta.json", `{}`)
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	info, err := os.Stat(path)
	require.NoError(t, err)

	doc, err := FromJSON(path, info, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, path, doc.Get(FieldFilename))
	assert.Equal(t, path, doc.Get(FieldPath))
	assert.Equal(t, strconv.FormatInt(mtime.UnixMilli(), 10), doc.Get(FieldModified))
	assert.Equal(t, strconv.FormatInt(mtime.UnixMilli(), 10), doc.Get(FieldAccessed))
	assert.NotEmpty(t, doc.Get(FieldCreated))
	assert.Equal(t, TypeJSON, doc.Get(FieldType))
	for _, f := range MetadataFields {
		assert.Len(t, doc.Fields[f], 1, f)
	}
}

func TestFromJSON_MetadataNameCollision(t *testing.T) {
	body := `{"type":"review","path":"/elsewhere"}`
	path, info := writeJSON(t, "c.json", body)

	doc, err := FromJSON(path, info, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, []string{TypeJSON, "review"}, doc.Fields[FieldType])
	assert.Equal(t, []string{path, "/elsewhere"}, doc.Fields[FieldPath])
}

func TestFromJSON_NonObjectRoot(t *testing.T) {
	for _, body := range []string{`[1, {"a": 2}]`, `"text"`, `42`, `null`} {
		t.Run(body, func(t *testing.T) {
			path, info := writeJSON(t, "r.json", body)
			doc, err := FromJSON(path, info, []byte(body))
			require.NoError(t, err)
			assert.Len(t, doc.Fields, len(MetadataFields))
			assert.Empty(t, doc.Content)
		})
	}
}

func TestFromJSON_Malformed(t *testing.T) {
	for _, body := range []string{``, `{"a":`, `{"a":1}}`, `{"a":1} {"b":2}`, `{1:2}`} {
		t.Run(body, func(t *testing.T) {
			path, info := writeJSON(t, "bad.json", body)
			_, err := FromJSON(path, info, []byte(body))
			assert.Error(t, err)
		})
	}
}

func TestIndexValue(t *testing.T) {
	doc := &Document{
		ID:      "x",
		Fields:  map[string][]string{"doi": {"10.1/a"}, "type": {"json", "review"}},
		Content: "hello",
	}

	v := doc.IndexValue()

	assert.Equal(t, "10.1/a", v["doi"])
	assert.Equal(t, []string{"json", "review"}, v["type"])
	assert.Equal(t, "hello", v[FieldContent])
}

func TestFileTimes_Nil(t *testing.T) {
	assert.Equal(t, Times{}, FileTimes(nil))
}
