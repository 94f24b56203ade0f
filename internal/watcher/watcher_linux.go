//go:build linux

package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long the reader waits before checking for Stop.
const pollTimeoutMs = 250

// inotifyBackend reports files on IN_CLOSE_WRITE, so no settle delay is needed.
type inotifyBackend struct {
	logger  *slog.Logger
	opts    Options
	fd      int
	mu      sync.RWMutex
	wdPaths map[int]string

	events   chan Event
	errors   chan error
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newInotifyBackend(logger *slog.Logger, opts Options) (*inotifyBackend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	return &inotifyBackend{
		logger:  logger,
		opts:    opts,
		fd:      fd,
		wdPaths: make(map[int]string),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

func (b *inotifyBackend) Watch(dir string) error {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	// IN_CLOSE_WRITE: writer finished. IN_MOVED_TO: atomic rename into the inbox.
	mask := uint32(unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_DELETE | unix.IN_MOVED_FROM)
	wd, err := unix.InotifyAddWatch(b.fd, dir, mask)
	if err != nil {
		return fmt.Errorf("inotify_add_watch failed: %w", err)
	}

	b.mu.Lock()
	b.wdPaths[wd] = dir
	b.mu.Unlock()

	b.logger.Debug("added watch", "path", dir, "wd", wd)
	return nil
}

func (b *inotifyBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.readEvents(ctx)
	return nil
}

func (b *inotifyBackend) readEvents(ctx context.Context) {
	defer b.wg.Done()

	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	//nolint:gosec // G115: inotify fds are small non-negative ints
	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		default:
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			b.sendError(fmt.Errorf("failed to poll inotify: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		n, err = unix.Read(b.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			b.sendError(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}
		if n < unix.SizeofInotifyEvent {
			continue
		}

		b.parseEvents(buf[:n])
	}
}

func (b *inotifyBackend) parseEvents(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: inotify records are read straight from the kernel buffer
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		offset = nameStart + int(event.Len)

		b.mu.RLock()
		dir, ok := b.wdPaths[int(event.Wd)]
		b.mu.RUnlock()
		if !ok || event.Len == 0 || offset > len(buf) {
			continue
		}

		name := buf[nameStart:offset]
		path := filepath.Join(dir, string(name[:clen(name)]))
		b.processEvent(path, event.Mask)
	}
}

func (b *inotifyBackend) processEvent(path string, mask uint32) {
	if mask&unix.IN_ISDIR != 0 || b.opts.shouldIgnore(path) {
		return
	}

	switch {
	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		b.emit(Event{Type: EventRemoved, Path: path})
	case mask&(unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0:
		info, err := os.Stat(path)
		if err != nil {
			b.logger.Debug("ready file vanished", "path", path, "error", err)
			return
		}
		b.emit(Event{Type: EventReady, Path: path, Size: info.Size(), ModTime: info.ModTime()})
	}
}

// emit runs only on the reader goroutine, which Stop waits for before
// closing the channels.
func (b *inotifyBackend) emit(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

func (b *inotifyBackend) sendError(err error) {
	select {
	case b.errors <- err:
	default:
		b.logger.Warn("watcher error dropped", "error", err)
	}
}

func (b *inotifyBackend) Events() <-chan Event { return b.events }

func (b *inotifyBackend) Errors() <-chan error { return b.errors }

func (b *inotifyBackend) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()

		err = unix.Close(b.fd)
		close(b.events)
		close(b.errors)
	})
	return err
}

// clen returns the length of a NUL-terminated byte slice.
func clen(n []byte) int {
	for i, c := range n {
		if c == 0 {
			return i
		}
	}
	return len(n)
}
