// Package document converts JSON files into index documents.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Metadata field names present on every document.
const (
	FieldFilename = "filename"
	FieldPath     = "path"
	FieldModified = "modified"
	FieldCreated  = "created"
	FieldAccessed = "accessed"
	FieldType     = "type"

	// FieldContent holds the analyzed full text. It is not stored.
	FieldContent = "content"

	// TypeJSON is the value of FieldType for JSON documents.
	TypeJSON = "json"
)

// MetadataFields lists the metadata field names in document order.
var MetadataFields = []string{FieldFilename, FieldPath, FieldModified, FieldCreated, FieldAccessed, FieldType}

// Document is one indexed JSON file.
type Document struct {
	// ID is the cleaned file path.
	ID string
	// Fields holds exact-match string values. A key may carry several values.
	Fields map[string][]string
	// Content is the newline-joined text of all top-level string members.
	Content string
}

// Add appends a value to field.
func (d *Document) Add(field, value string) {
	d.Fields[field] = append(d.Fields[field], value)
}

// Get returns the first value of field, or "".
func (d *Document) Get(field string) string {
	if vs := d.Fields[field]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// FromJSON builds a document for the file at path with the given contents.
// Top-level string, number and boolean members become fields; nested
// objects, arrays and nulls are skipped. Non-object roots yield metadata only.
func FromJSON(path string, info os.FileInfo, data []byte) (*Document, error) {
	id := filepath.Clean(path)
	doc := &Document{ID: id, Fields: make(map[string][]string)}

	times := FileTimes(info)
	doc.Add(FieldFilename, id)
	doc.Add(FieldPath, id)
	doc.Add(FieldModified, millis(times.Modified))
	doc.Add(FieldCreated, millis(times.Created))
	doc.Add(FieldAccessed, millis(times.Accessed))
	doc.Add(FieldType, TypeJSON)

	var text []string
	if err := walkMembers(data, func(key string, raw json.RawMessage) error {
		value, isString, ok, err := scalar(raw)
		if err != nil {
			return fmt.Errorf("member %q: %w", key, err)
		}
		if !ok {
			return nil
		}
		doc.Add(key, value)
		if isString {
			text = append(text, value)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	doc.Content = strings.Join(text, "\n")
	return doc, nil
}

// walkMembers calls fn for each top-level member of a JSON object, in order.
// A valid non-object root produces no calls.
func walkMembers(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		// Consume the rest of an array root so trailing data is still detected.
		if ok && delim == '[' {
			for dec.More() {
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
		return expectEOF(dec)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return expectEOF(dec)
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return fmt.Errorf("unexpected data after top-level value")
		}
		return err
	}
	return nil
}

// scalar renders a JSON scalar as field text. Numbers keep their literal form.
func scalar(raw json.RawMessage) (value string, isString, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false, false, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, false, err
		}
		return s, true, true, nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return "", false, false, err
		}
		return strconv.FormatBool(b), false, true, nil
	case '{', '[', 'n':
		return "", false, false, nil
	default:
		return string(raw), false, true, nil
	}
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// IndexValue returns the value handed to the index: single-valued fields as
// strings, multi-valued fields as []string, and the content text.
func (d *Document) IndexValue() map[string]any {
	out := make(map[string]any, len(d.Fields)+1)
	for k, vs := range d.Fields {
		if k == FieldContent {
			continue
		}
		if len(vs) == 1 {
			out[k] = vs[0]
		} else {
			out[k] = append([]string(nil), vs...)
		}
	}
	out[FieldContent] = d.Content
	return out
}
