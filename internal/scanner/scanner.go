package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Scan walks opts.Root in the background and streams matching files.
// The channel is closed when the walk finishes or ctx is cancelled.
// Problems with individual entries are delivered as error results.
func Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}

	m := newMatcher(opts)
	results := make(chan Result, buffer)

	go func() {
		defer close(results)
		walk(ctx, absRoot, m, opts.FollowSymlinks, results)
	}()

	return results, nil
}

// Collect runs Scan and gathers the files. Entry errors are joined into the
// returned error alongside whatever files were found.
func Collect(ctx context.Context, opts Options) ([]*FileInfo, error) {
	ch, err := Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var (
		files []*FileInfo
		errs  []error
	)
	for r := range ch {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		files = append(files, r.File)
	}
	if err := ctx.Err(); err != nil {
		return files, err
	}
	return files, errors.Join(errs...)
}

func walk(ctx context.Context, absRoot string, m *matcher, followSymlinks bool, results chan<- Result) {
	send := func(r Result) error {
		select {
		case results <- r:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == absRoot {
				return err
			}
			if sendErr := send(Result{Error: fmt.Errorf("scan %s: %w", path, err)}); sendErr != nil {
				return sendErr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != absRoot && (m.skipDir(d.Name()) || m.paths[path]) {
				return filepath.SkipDir
			}
			return nil
		}

		if m.paths[path] || !m.accept(d.Name()) {
			return nil
		}

		info, err := entryInfo(path, d, followSymlinks)
		if err != nil {
			return send(Result{Error: fmt.Errorf("scan %s: %w", path, err)})
		}
		if info == nil {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		return send(Result{File: &FileInfo{
			Path:    rel,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}})
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		_ = send(Result{Error: err})
	}
}

// entryInfo returns nil info for entries that are not (or do not resolve to)
// regular files.
func entryInfo(path string, d fs.DirEntry, followSymlinks bool) (os.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		if !followSymlinks {
			return nil, nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, nil
		}
		return info, nil
	}
	if !d.Type().IsRegular() {
		return nil, nil
	}
	return d.Info()
}

type matcher struct {
	exts    map[string]bool
	exclude map[string]bool
	paths   map[string]bool
}

func newMatcher(opts Options) *matcher {
	m := &matcher{exclude: make(map[string]bool), paths: AbsPaths(opts.ExcludePaths)}
	if len(opts.Extensions) > 0 {
		m.exts = make(map[string]bool, len(opts.Extensions))
		for _, e := range opts.Extensions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			m.exts[e] = true
		}
	}
	for _, d := range opts.ExcludeDirs {
		m.exclude[d] = true
	}
	return m
}

func (m *matcher) skipDir(name string) bool {
	return SkippedDir(name) || m.exclude[name]
}

func (m *matcher) accept(name string) bool {
	if m.exts == nil {
		return true
	}
	return m.exts[strings.ToLower(filepath.Ext(name))]
}

// HasExtension reports whether path ends in one of exts, case-insensitively.
// Empty exts matches everything.
func HasExtension(path string, exts []string) bool {
	return newMatcher(Options{Extensions: exts}).accept(filepath.Base(path))
}

// AbsPaths resolves paths to a set of cleaned absolute paths. Empty and
// unresolvable entries are dropped.
func AbsPaths(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		set[abs] = true
	}
	return set
}

// SkippedDir reports whether a directory name is never scanned.
func SkippedDir(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
