// Package schema loads JSON Schema documents and validates JSON values against them.
//
// Only draft 2020-12 is supported. A schema without $schema is treated as 2020-12.
// Relative $ref values are resolved against the directory of the schema file.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	merrors "github.com/marcinmilkowski/metaindexer/internal/errors"
)

// Draft is the only $schema value accepted.
const Draft = "https://json-schema.org/draft/2020-12/schema"

// Validator validates JSON values against a resolved schema.
// A nil *Validator accepts every value.
type Validator struct {
	source   string
	resolved *jsonschema.Resolved
}

// Load reads and resolves the schema file at path.
func Load(path string) (*Validator, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeInvalidPath, "invalid schema path", err).
			WithDetail("path", path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeFileNotFound, "cannot read schema file", err).
			WithDetail("path", path).
			WithSuggestion("Check documents.schema in .metaindexer.yaml or the --schema flag")
	}

	v, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		if me, ok := err.(*merrors.MetaError); ok {
			me.WithDetail("path", path)
		}
		return nil, err
	}
	v.source = abs
	return v, nil
}

// Parse resolves schema data. baseDir anchors relative $ref lookups; empty
// disables them.
func Parse(data []byte, baseDir string) (*Validator, error) {
	s, err := decode(data)
	if err != nil {
		return nil, err
	}

	opts := &jsonschema.ResolveOptions{Loader: fileLoader}
	if baseDir != "" {
		opts.BaseURI = dirURI(baseDir)
	}

	resolved, err := s.Resolve(opts)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeSchemaInvalid, "cannot resolve schema", err)
	}
	return &Validator{resolved: resolved}, nil
}

func decode(data []byte) (*jsonschema.Schema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, merrors.New(merrors.ErrCodeSchemaInvalid, "schema is not valid JSON", err)
	}
	if s.Schema != "" && strings.TrimSuffix(s.Schema, "#") != Draft {
		return nil, merrors.New(merrors.ErrCodeSchemaInvalid,
			fmt.Sprintf("unsupported schema draft %q", s.Schema), nil).
			WithSuggestion("Declare \"$schema\": \"" + Draft + "\"")
	}
	// The resolver compares against the exact draft URI.
	s.Schema = strings.TrimSuffix(s.Schema, "#")
	return &s, nil
}

// fileLoader loads schemas referenced through file: URIs.
func fileLoader(uri *url.URL) (*jsonschema.Schema, error) {
	if uri.Scheme != "file" {
		return nil, fmt.Errorf("cannot load remote schema %s", uri)
	}
	data, err := os.ReadFile(filepath.FromSlash(uri.Path))
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func dirURI(dir string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dir)}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// Source returns the schema file path, or "" for parsed schemas.
func (v *Validator) Source() string {
	if v == nil {
		return ""
	}
	return v.source
}

// Validate checks a decoded JSON value (as produced by encoding/json into any).
func (v *Validator) Validate(instance any) error {
	if v == nil {
		return nil
	}
	if err := v.resolved.Validate(instance); err != nil {
		return merrors.New(merrors.ErrCodeDocumentInvalid, err.Error(), err)
	}
	return nil
}

// ValidateBytes decodes data and validates it.
func (v *Validator) ValidateBytes(data []byte) error {
	if v == nil {
		return nil
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&instance); err != nil {
		return merrors.New(merrors.ErrCodeFileCorrupt, "malformed JSON", err)
	}
	return v.Validate(instance)
}
