// Package watcher raises a flag when the report definitions file changes.
// The scheduler polls the flag every tick, so edits between two ticks cause one reload.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/nadmax/reportd/internal/logger/tag"
)

type Watcher struct {
	path    string
	fs      *fsnotify.Watcher
	changed atomic.Bool
	done    chan struct{}
}

// New watches the directory holding path so that editors which replace the
// file instead of writing it in place are still noticed.
func New(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path: abs,
		fs:   fs,
		done: make(chan struct{}),
	}, nil
}

// Start consumes file events until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if !w.changed.Swap(true) {
					slog.Debug("Report definitions file changed", tag.File(w.path), slog.String("op", event.Op.String()))
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", tag.File(w.path), tag.Error(err))
		}
	}
}

// Changed reports whether the file changed since the last call, and clears
// the flag.
func (w *Watcher) Changed() bool {
	return w.changed.Swap(false)
}

// Mark sets the flag as if the file had changed.
func (w *Watcher) Mark() {
	w.changed.Store(true)
}

func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fs.Close()
}
