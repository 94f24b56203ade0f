package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// CaptureFunc receives the images of one capture session in file-name order.
type CaptureFunc func(ctx context.Context, blobs [][]byte) error

// Inbox turns files dropped into a directory into capture sessions: image
// files that arrive within QuietPeriod of each other are handed to the
// capture function together, then deleted. Files of a session that was not
// persisted stay in the inbox and are captured again on the next start.
type Inbox struct {
	dir     string
	quiet   time.Duration
	capture CaptureFunc
	watcher *Watcher
	logger  *slog.Logger

	pending map[string]struct{}
}

// InboxOptions configures an Inbox.
type InboxOptions struct {
	Dir         string
	QuietPeriod time.Duration
	Watcher     Options
}

// NewInbox creates the inbox directory if needed and prepares a watcher on it.
func NewInbox(opts InboxOptions, capture CaptureFunc, logger *slog.Logger) (*Inbox, error) {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = 2 * time.Second
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	w, err := New(logger, opts.Watcher)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(opts.Dir); err != nil {
		_ = w.Stop() //nolint:errcheck // Already failing
		return nil, err
	}

	return &Inbox{
		dir:     opts.Dir,
		quiet:   opts.QuietPeriod,
		capture: capture,
		watcher: w,
		logger:  logger,
		pending: make(map[string]struct{}),
	}, nil
}

// Run processes sessions until ctx is cancelled. Images already in the
// inbox at startup form the first session. Files of an unfinished session
// are left in place for the next run.
func (in *Inbox) Run(ctx context.Context) error {
	if err := in.watcher.Start(ctx); err != nil {
		return err
	}
	defer in.watcher.Stop() //nolint:errcheck // Best-effort on shutdown

	in.logger.Info("watching inbox", "path", in.dir, "quiet_period", in.quiet)

	timer := time.NewTimer(in.quiet)
	if !in.addExisting() {
		timer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-in.watcher.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case EventReady:
				if !IsImageFile(ev.Path) {
					continue
				}
				in.pending[ev.Path] = struct{}{}
				timer.Reset(in.quiet)
			case EventRemoved:
				delete(in.pending, ev.Path)
			}

		case err, ok := <-in.watcher.Errors():
			if ok {
				in.logger.Warn("inbox watcher error", "error", err)
			}

		case <-timer.C:
			in.flush(ctx)
		}
	}
}

// addExisting queues images left from a previous run. Reports whether any were found.
func (in *Inbox) addExisting() bool {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warn("failed to list inbox", "path", in.dir, "error", err)
		return false
	}
	for _, e := range entries {
		path := filepath.Join(in.dir, e.Name())
		if e.Type().IsRegular() && IsImageFile(path) && !in.watcher.ignores(path) {
			in.pending[path] = struct{}{}
		}
	}
	return len(in.pending) > 0
}

// flush captures the pending session and removes its files once persisted.
func (in *Inbox) flush(ctx context.Context) {
	if len(in.pending) == 0 {
		return
	}

	paths := make([]string, 0, len(in.pending))
	for p := range in.pending {
		paths = append(paths, p)
	}
	clear(in.pending)
	slices.Sort(paths)

	blobs := make([][]byte, 0, len(paths))
	read := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				in.logger.Warn("failed to read inbox file", "path", p, "error", err)
			}
			continue
		}
		blobs = append(blobs, data)
		read = append(read, p)
	}
	if len(blobs) == 0 {
		return
	}

	if err := in.capture(ctx, blobs); err != nil {
		in.logger.Warn("capture session not persisted, keeping files until restart", "files", len(read), "error", err)
		return
	}

	for _, p := range read {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			in.logger.Warn("failed to remove processed file", "path", p, "error", err)
		}
	}
	in.logger.Info("inbox session captured", "files", len(read))
}
