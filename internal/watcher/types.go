package watcher

import "time"

// Operation is the kind of change.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a changed file.
	OpModify
	// OpDelete is a removed or renamed-away file or directory.
	OpDelete
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change.
type FileEvent struct {
	// Path is relative to the watched root.
	Path string
	// AbsPath is the absolute, cleaned path.
	AbsPath   string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted. Default 200ms.
	DebounceWindow time.Duration

	// EventBufferSize is the batch channel capacity. Default 100.
	EventBufferSize int

	// Extensions selects files to report. Empty reports every file.
	Extensions []string

	// ExcludeDirs lists extra directory names to skip. Hidden directories are
	// always skipped.
	ExcludeDirs []string

	// ExcludePaths lists files and directories to ignore by location.
	ExcludePaths []string
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		EventBufferSize: 100,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
