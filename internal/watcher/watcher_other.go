//go:build !linux

package watcher

import (
	"errors"
	"log/slog"
)

func newInotifyBackend(_ *slog.Logger, _ Options) (Backend, error) {
	return nil, errors.New("inotify is only available on Linux")
}
