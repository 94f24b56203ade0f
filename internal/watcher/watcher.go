// Package watcher notices image files dropped into the inbox directory and
// groups them into capture sessions.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

// Watcher monitors one directory for completed files.
type Watcher struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
}

// New creates a watcher. On Linux it uses inotify and reports files on
// IN_CLOSE_WRITE; elsewhere, or with opts.Portable, it uses fsnotify and
// waits for files to stop changing.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	var (
		backend Backend
		err     error
	)
	if runtime.GOOS == "linux" && !opts.Portable {
		backend, err = newInotifyBackend(logger, opts)
		logger.Debug("using inotify watcher backend")
	} else {
		backend, err = newFsnotifyBackend(logger, opts)
		logger.Debug("using fsnotify watcher backend", "platform", runtime.GOOS)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	return &Watcher{backend: backend, opts: opts, logger: logger}, nil
}

func (w *Watcher) ignores(path string) bool {
	return w.opts.shouldIgnore(path)
}

// Watch adds a directory to monitor.
func (w *Watcher) Watch(dir string) error {
	return w.backend.Watch(dir)
}

// Start begins watching. It returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	return w.backend.Start(ctx)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	return w.backend.Stop()
}

// Events returns the channel for receiving file events.
func (w *Watcher) Events() <-chan Event {
	return w.backend.Events()
}

// Errors returns the channel for receiving errors.
func (w *Watcher) Errors() <-chan error {
	return w.backend.Errors()
}
