package mcp

// Tool names.
const (
	ToolSearch      = "search"
	ToolLookup      = "lookup"
	ToolMatchIDs    = "match_ids"
	ToolIndexStatus = "index_status"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"bleve query string, e.g. title:cell +understanding"`
	Field  string `json:"field,omitempty" jsonschema:"when set, match this field exactly against query instead of parsing it"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of results to skip"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query   string           `json:"query"`
	Total   uint64           `json:"total" jsonschema:"number of matching documents"`
	Results []DocumentOutput `json:"results"`
}

// DocumentOutput is one matching document.
type DocumentOutput struct {
	Path   string              `json:"path" jsonschema:"absolute path of the JSON file"`
	Score  float64             `json:"score"`
	Fields map[string][]string `json:"fields,omitempty" jsonschema:"stored fields of the document"`
}

// LookupInput defines the input schema for the lookup tool.
type LookupInput struct {
	Field string `json:"field,omitempty" jsonschema:"field to match, default doi"`
	Value string `json:"value" jsonschema:"exact value to look for"`
}

// LookupOutput defines the output schema for the lookup tool.
type LookupOutput struct {
	Field string   `json:"field"`
	Value string   `json:"value"`
	Found bool     `json:"found"`
	Paths []string `json:"paths" jsonschema:"documents holding the value"`
}

// MatchIDsInput defines the input schema for the match_ids tool.
type MatchIDsInput struct {
	IDs   []string `json:"ids" jsonschema:"identifiers to check, e.g. DOIs"`
	Field string   `json:"field,omitempty" jsonschema:"field holding the identifiers, default doi"`
}

// MatchIDsOutput defines the output schema for the match_ids tool.
type MatchIDsOutput struct {
	Total   int      `json:"total"`
	Matched int      `json:"matched"`
	Found   []string `json:"found"`
	Missing []string `json:"missing"`
	Empty   int      `json:"empty"`
	Summary string   `json:"summary"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Root        string `json:"root,omitempty" jsonschema:"documents directory of the last run"`
	IndexPath   string `json:"index_path"`
	Documents   uint64 `json:"documents"`
	Files       int    `json:"files"`
	Invalid     int    `json:"invalid" jsonschema:"files that failed schema validation"`
	SourceBytes int64  `json:"source_bytes"`
	LastIndexed string `json:"last_indexed,omitempty"`
}
