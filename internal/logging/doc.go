// Package logging configures structured slog logging for metaindexer.
//
// Logs are JSON lines written to a size-rotated file under ~/.metaindexer/logs/
// and, for interactive commands, mirrored to stderr. The serve command keeps
// stderr and stdout clean and logs to the file only.
package logging
