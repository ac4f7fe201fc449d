// Package store holds metaindexer's persistent state: the bleve full-text
// index of JSON documents, the sqlite manifest of indexed files, and the
// file lock that serializes writers across processes.
package store
