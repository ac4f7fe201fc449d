package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marcinmilkowski/metaindexer/internal/document"
	"github.com/marcinmilkowski/metaindexer/internal/store"
)

// Search limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No documents found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", out.Query)
	fmt.Fprintf(&sb, "Showing %d of %d document", len(out.Results), out.Total)
	if out.Total != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. `%s` (score %.3f)\n\n", i+1, r.Path, r.Score)
		for _, name := range contentFields(r.Fields) {
			fmt.Fprintf(&sb, "- **%s**: %s\n", name, strings.Join(r.Fields[name], "; "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatMatch formats an identifier match as markdown.
func FormatMatch(out MatchIDsOutput) string {
	var sb strings.Builder
	sb.WriteString(out.Summary)
	sb.WriteString("\n")
	if len(out.Missing) > 0 {
		sb.WriteString("\nMissing:\n")
		for _, id := range out.Missing {
			fmt.Fprintf(&sb, "- %s\n", id)
		}
	}
	return sb.String()
}

// contentFields returns the non-metadata field names, sorted.
func contentFields(fields map[string][]string) []string {
	var names []string
	for name := range fields {
		if !isMetadata(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func isMetadata(name string) bool {
	for _, f := range document.MetadataFields {
		if f == name {
			return true
		}
	}
	return false
}

func toDocumentOutputs(hits []store.Hit) []DocumentOutput {
	out := make([]DocumentOutput, 0, len(hits))
	for _, h := range hits {
		out = append(out, DocumentOutput{Path: h.ID, Score: h.Score, Fields: h.Fields})
	}
	return out
}

// clampLimit bounds limit between min and max, using defaultVal when unset.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
