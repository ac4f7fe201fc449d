// Package watcher reports changes to document files under a directory tree.
//
// It wraps fsnotify with recursive directory registration, extension
// filtering and debouncing. Rapid edits to the same file are coalesced into
// a single event and delivered in batches:
//
//	w, err := watcher.New(watcher.Options{Extensions: []string{".json"}})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, "/data/reviews") }()
//
//	for batch := range w.Events() {
//	    // reindex batch
//	}
package watcher
