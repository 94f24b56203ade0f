package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/scanixapp/scanix-server/internal/config"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/service"
	"github.com/scanixapp/scanix-server/internal/watcher"
)

// InboxHandle runs the hot-folder capture inbox.
type InboxHandle struct {
	*watcher.Inbox
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdowner.
func (h *InboxHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideInbox watches the inbox directory; each capture session becomes a new scan.
// Returns an idle handle when the inbox is disabled.
func ProvideInbox(i do.Injector) (*InboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	scans := do.MustInvoke[*service.ScanService](i)

	if !cfg.InboxEnabled() {
		log.Info("Capture inbox disabled by configuration")
		return &InboxHandle{}, nil
	}

	capture := func(ctx context.Context, blobs [][]byte) error {
		outcome := scans.Append(ctx, "", blobs)
		if outcome.Dropped > 0 {
			log.Warn("inbox images could not be decoded", "dropped", outcome.Dropped)
		}
		return outcome.PersistErr
	}

	inbox, err := watcher.NewInbox(watcher.InboxOptions{
		Dir:         cfg.Capture.InboxPath,
		QuietPeriod: cfg.Capture.QuietPeriod,
		Watcher:     watcher.Options{IgnoreHidden: true},
	}, capture, log.Component("inbox"))
	if err != nil {
		return nil, err
	}

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := inbox.Run(ctx); err != nil {
			log.Error("Capture inbox stopped", "error", err)
		}
	}()

	return &InboxHandle{Inbox: inbox, cancel: cancel, done: done}, nil
}
