package watcher

import "context"

// Backend is a platform-specific way of learning that files in one
// directory are complete.
type Backend interface {
	// Watch adds a directory. Subdirectories are not followed.
	Watch(dir string) error

	// Start delivers events until ctx is cancelled or Stop is called.
	// It does not block.
	Start(ctx context.Context) error

	// Stop releases all resources and closes the channels.
	Stop() error

	Events() <-chan Event
	Errors() <-chan error
}
