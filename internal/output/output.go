// Package output formats command results for the terminal or as JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/marcinmilkowski/metaindexer/internal/corpus"
	"github.com/marcinmilkowski/metaindexer/internal/document"
	"github.com/marcinmilkowski/metaindexer/internal/index"
	"github.com/marcinmilkowski/metaindexer/internal/matcher"
	"github.com/marcinmilkowski/metaindexer/internal/store"
	"github.com/marcinmilkowski/metaindexer/internal/ui"
)

// Format selects how results are written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" (or "") and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	format Format
	styles ui.Styles
}

// New creates a text Writer. Colors are used only on a terminal that does
// not set NO_COLOR.
func New(out io.Writer) *Writer {
	return NewWithFormat(out, FormatText)
}

// NewWithFormat creates a Writer for the given format.
func NewWithFormat(out io.Writer, format Format) *Writer {
	noColor := !ui.IsTTY(out) || ui.DetectNoColor()
	return &Writer{out: out, format: format, styles: ui.GetStyles(noColor)}
}

// JSONMode reports whether results are written as JSON.
func (w *Writer) JSONMode() bool { return w.format == FormatJSON }

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints a page of hits. In text mode each hit shows its path
// and score, followed by the non-metadata fields listed in show (all when
// show is empty).
func (w *Writer) SearchResults(query string, res *store.SearchResult, show []string) error {
	if w.JSONMode() {
		return w.JSON(struct {
			Query string `json:"query"`
			*store.SearchResult
		}{query, res})
	}

	if len(res.Hits) == 0 {
		w.Warningf("No documents match %q", query)
		return nil
	}
	_, _ = fmt.Fprintf(w.out, "%s %d of %d documents for %q\n",
		w.styles.Header.Render("Results:"), len(res.Hits), res.Total, query)
	for i, hit := range res.Hits {
		_, _ = fmt.Fprintf(w.out, "%2d. %s %s\n", i+1, hit.ID, w.styles.Dim.Render(fmt.Sprintf("(%.3f)", hit.Score)))
		for _, name := range displayFields(hit.Fields, show) {
			_, _ = fmt.Fprintf(w.out, "      %s %s\n",
				w.styles.Label.Render(name+":"), strings.Join(hit.Fields[name], "; "))
		}
	}
	return nil
}

// displayFields picks the fields of a hit worth printing, sorted by name.
func displayFields(fields map[string][]string, show []string) []string {
	if len(show) > 0 {
		var out []string
		for _, name := range show {
			if _, ok := fields[name]; ok {
				out = append(out, name)
			}
		}
		return out
	}

	meta := make(map[string]bool, len(document.MetadataFields))
	for _, f := range document.MetadataFields {
		meta[f] = true
	}
	var out []string
	for name := range fields {
		if !meta[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// MatchResult prints the summary line and, when asked, the identifiers
// that were not found.
func (w *Writer) MatchResult(res *matcher.Result, showMissing bool) error {
	if w.JSONMode() {
		out := *res
		if !showMissing {
			out.Missing = nil
		}
		return w.JSON(out)
	}

	_, _ = fmt.Fprintln(w.out, res.Summary())
	if res.Empty > 0 {
		w.Warningf("%d records have an empty identifier", res.Empty)
	}
	if showMissing {
		for _, id := range res.Missing {
			_, _ = fmt.Fprintf(w.out, "   %s\n", id)
		}
	}
	return nil
}

// CorpusStats prints word statistics of the review files.
func (w *Writer) CorpusStats(st *corpus.Stats) error {
	if w.JSONMode() {
		return w.JSON(st)
	}
	_, _ = io.WriteString(w.out, st.String())
	return nil
}

// IndexSummary prints the outcome of an indexing run.
func (w *Writer) IndexSummary(s *index.Summary) error {
	if w.JSONMode() {
		return w.JSON(s)
	}
	w.Successf("Indexed %d of %d files (%d unchanged, %d removed)", s.Indexed, s.Scanned, s.Skipped, s.Removed)
	if s.Invalid > 0 {
		w.Warningf("%d documents failed schema validation", s.Invalid)
	}
	if s.Failed > 0 {
		w.Error(fmt.Sprintf("%d files could not be read", s.Failed))
	}
	return nil
}
