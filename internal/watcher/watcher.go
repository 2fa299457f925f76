// Package watcher reloads the inventory when the product file is edited
// externally, e.g. by an admin tool writing it directly.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes one file inside a directory and invokes a callback on
// writes to it. Failures are logged, never fatal: a broken watcher degrades
// to manual reloads.
type Watcher struct {
	dir      string
	filename string
	onChange func()
	debounce time.Duration
	log      *zap.Logger
}

// New constructs a Watcher for the given file path. onChange runs on the
// watcher goroutine after each (debounced) modification.
func New(path string, onChange func(), log *zap.Logger) *Watcher {
	return &Watcher{
		dir:      filepath.Dir(path),
		filename: filepath.Base(path),
		onChange: onChange,
		debounce: 100 * time.Millisecond,
		log:      log,
	}
}

// Run watches until the context is cancelled. It returns an error only when
// the watch cannot be established at all.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory, not the file: whole-file rewrites replace the
	// inode on some editors and a direct file watch would go stale.
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching product file",
		zap.String("dir", w.dir),
		zap.String("file", w.filename),
	)

	var pending *time.Timer
	var pendingC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != w.filename {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Debounce: a rewrite arrives as a burst of events.
			if pending == nil {
				pending = time.NewTimer(w.debounce)
				pendingC = pending.C
			} else {
				pending.Reset(w.debounce)
			}

		case <-pendingC:
			pending = nil
			pendingC = nil
			w.log.Info("product file modified, reloading inventory")
			w.onChange()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("file watcher error", zap.Error(err))
		}
	}
}
