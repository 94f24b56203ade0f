package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend reports a file once its size and mtime have stayed the
// same for SettleDelay.
type fsnotifyBackend struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*pendingFile

	events   chan Event
	errors   chan error
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// closeMu guards sends against Stop closing the channels; settle
	// timers can fire after the event loop has exited.
	closeMu sync.RWMutex
	closed  bool
}

// pendingFile tracks a file that may still be changing.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

func newFsnotifyBackend(logger *slog.Logger, opts Options) (*fsnotifyBackend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &fsnotifyBackend{
		logger:  logger,
		opts:    opts,
		watcher: w,
		pending: make(map[string]*pendingFile),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

func (b *fsnotifyBackend) Watch(dir string) error {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if err := b.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to add watch: %w", err)
	}
	b.logger.Debug("added watch", "path", dir)
	return nil
}

func (b *fsnotifyBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.processEvents(ctx)
	return nil
}

func (b *fsnotifyBackend) processEvents(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handle(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.sendError(err)
		}
	}
}

func (b *fsnotifyBackend) handle(event fsnotify.Event) {
	path := event.Name
	if b.opts.shouldIgnore(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		b.cancelPending(path)
		b.emit(Event{Type: EventRemoved, Path: path})
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		b.startSettling(path)
	}
}

// startSettling (re)starts the settle timer for path.
func (b *fsnotifyBackend) startSettling(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pending[path]; ok {
		p.timer.Stop()
	}
	b.pending[path] = &pendingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
		timer:   time.AfterFunc(b.opts.SettleDelay, func() { b.checkSettled(path) }),
	}
}

func (b *fsnotifyBackend) checkSettled(path string) {
	b.mu.Lock()
	p, ok := b.pending[path]
	if !ok {
		b.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(b.pending, path)
		b.mu.Unlock()
		if errors.Is(err, os.ErrNotExist) {
			b.emit(Event{Type: EventRemoved, Path: path})
		}
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size, p.modTime = info.Size(), info.ModTime()
		p.timer = time.AfterFunc(b.opts.SettleDelay, func() { b.checkSettled(path) })
		b.mu.Unlock()
		return
	}

	delete(b.pending, path)
	b.mu.Unlock()

	b.emit(Event{Type: EventReady, Path: path, Size: info.Size(), ModTime: info.ModTime()})
}

func (b *fsnotifyBackend) cancelPending(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pending[path]; ok {
		p.timer.Stop()
		delete(b.pending, path)
	}
}

func (b *fsnotifyBackend) emit(event Event) {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.events <- event:
	case <-b.done:
	}
}

func (b *fsnotifyBackend) sendError(err error) {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.errors <- err:
	default:
		b.logger.Warn("watcher error dropped", "error", err)
	}
}

func (b *fsnotifyBackend) Events() <-chan Event { return b.events }

func (b *fsnotifyBackend) Errors() <-chan error { return b.errors }

func (b *fsnotifyBackend) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for _, p := range b.pending {
			p.timer.Stop()
		}
		clear(b.pending)
		b.mu.Unlock()

		err = b.watcher.Close()
		b.wg.Wait()

		b.closeMu.Lock()
		b.closed = true
		close(b.events)
		close(b.errors)
		b.closeMu.Unlock()
	})
	return err
}
