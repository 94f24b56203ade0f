package providers

import (
	"context"
	"path/filepath"
	"time"

	"github.com/samber/do/v2"

	"github.com/scanixapp/scanix-server/internal/config"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/sse"
	"github.com/scanixapp/scanix-server/internal/store"
	"github.com/scanixapp/scanix-server/internal/store/sqlite"
)

// shutdownTimeout bounds each handle's graceful shutdown.
const shutdownTimeout = 30 * time.Second

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdowner.
// Queued events are delivered before the broadcast loop is cancelled.
func (h *SSEManagerHandle) Shutdown() error {
	defer h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the repository with shutdown capability.
type StoreHandle struct {
	store.Repository
	Path string
}

// Shutdown implements do.Shutdowner.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured persistence backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	repo, path, err := OpenRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "backend", cfg.Store.Backend, "path", path)

	return &StoreHandle{Repository: repo, Path: path}, nil
}

// OpenRepository opens the backend named by cfg.Store.Backend under the data path.
// Shared with the admin CLI.
func OpenRepository(cfg *config.Config, log *logger.Logger) (store.Repository, string, error) {
	if cfg.Store.Backend == config.BackendBadger {
		path := filepath.Join(cfg.Data.BasePath, "db")
		repo, err := store.New(path, log.Component("store"))
		return repo, path, err
	}

	path := filepath.Join(cfg.Data.BasePath, "scanix.db")
	repo, err := sqlite.Open(path, log.Component("store"))
	return repo, path, err
}
