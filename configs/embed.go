// Package configs provides files embedded into the metaindexer binary.
//
// Templates are embedded at build time so they ship with every build:
//   - config.example.yaml: written by `metaindexer config init`
//   - segment.srx: default SRX sentence rules used by the corpus maker
//   - review-schema.json: example JSON Schema (draft 2020-12) for review records
package configs

import _ "embed"

// ProjectConfigTemplate is written to .metaindexer.yaml by `metaindexer config init`.
//
//go:embed config.example.yaml
var ProjectConfigTemplate string

// DefaultSRX holds the default SRX 2.0 rules. Language code EN_one selects the
// English rules plus a break at every line break.
//
//go:embed segment.srx
var DefaultSRX []byte

// ReviewSchema is an example schema for review metadata records.
//
//go:embed review-schema.json
var ReviewSchema []byte
