package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the state of an index directory.
type StatusInfo struct {
	Root        string    `json:"root"`
	IndexPath   string    `json:"index_path"`
	Documents   uint64    `json:"documents"`
	Files       int       `json:"files"`
	Invalid     int       `json:"invalid"`
	SourceBytes int64     `json:"source_bytes"`
	LastIndexed time.Time `json:"last_indexed,omitzero"`

	IndexSize    int64 `json:"index_size"`
	ManifestSize int64 `json:"manifest_size"`

	// Lock is "free", "held" or "n/a".
	Lock string `json:"lock"`
	// Schema is the validation schema path, if any.
	Schema string `json:"schema,omitempty"`
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := &errWriter{w: r.out}

	w.printf("%s\n\n", r.styles.Header.Render("Index: "+info.IndexPath))
	if info.Root != "" {
		w.printf("  Documents dir: %s\n", info.Root)
	}
	w.printf("  Documents:     %d\n", info.Documents)
	w.printf("  Files:         %d", info.Files)
	if info.Invalid > 0 {
		w.printf(" (%s)", r.styles.Warning.Render(fmt.Sprintf("%d failed validation", info.Invalid)))
	}
	w.printf("\n")
	if !info.LastIndexed.IsZero() {
		w.printf("  Last indexed:  %s\n", formatTime(info.LastIndexed))
	}
	if info.Schema != "" {
		w.printf("  Schema:        %s\n", info.Schema)
	}
	w.printf("\n  Storage:\n")
	w.printf("    Sources:  %s\n", FormatBytes(info.SourceBytes))
	w.printf("    Index:    %s\n", FormatBytes(info.IndexSize))
	w.printf("    Manifest: %s\n", FormatBytes(info.ManifestSize))

	if info.Lock != "" && info.Lock != "n/a" {
		w.printf("\n  Writer lock: %s\n", r.renderLock(info.Lock))
	}
	return w.err
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderLock(state string) string {
	switch state {
	case "free":
		return r.styles.Success.Render(state)
	case "held":
		return r.styles.Warning.Render(state + " (indexing or watching)")
	default:
		return state
	}
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// formatTime renders t relative to now for recent times.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
