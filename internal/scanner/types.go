// Package scanner discovers document files under a directory tree.
// Files stream over a channel in lexical path order.
package scanner

import "time"

// FileInfo describes a discovered file.
type FileInfo struct {
	Path    string // Relative to the scan root
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Options configures a scan.
type Options struct {
	// Root is the directory to scan. Empty means ".".
	Root string

	// Extensions selects files by extension, case-insensitively (".json").
	// Empty accepts every regular file.
	Extensions []string

	// ExcludeDirs lists extra directory names to skip. Hidden directories
	// are always skipped.
	ExcludeDirs []string

	// ExcludePaths lists files and directories to skip by location, such as
	// an index kept inside the scanned tree. Relative entries resolve against
	// the working directory.
	ExcludePaths []string

	// FollowSymlinks includes symlinked files whose target is a regular file.
	FollowSymlinks bool

	// Buffer is the result channel capacity (0 = 64).
	Buffer int
}

// Result is sent on the scan channel. Exactly one of File and Error is set.
type Result struct {
	File  *FileInfo
	Error error
}
