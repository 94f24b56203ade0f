// Package di provides dependency injection configuration for the Scanix server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/scanixapp/scanix-server/internal/config"
	"github.com/scanixapp/scanix-server/internal/di/providers"
	"github.com/scanixapp/scanix-server/internal/export"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/media/images"
	"github.com/scanixapp/scanix-server/internal/names"
	"github.com/scanixapp/scanix-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Storage layer
	do.Provide(injector, providers.ProvideThumbnailStorage)
	do.Provide(injector, providers.ProvideImageProcessor)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchService)

	// Business services
	do.Provide(injector, providers.ProvideNameGenerator)
	do.Provide(injector, providers.ProvideScanService)
	do.Provide(injector, providers.ProvideExporter)
	do.Provide(injector, providers.ProvideExportService)

	// Workers
	do.Provide(injector, providers.ProvideInbox)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.ThumbnailStorage](injector)
	_ = do.MustInvoke[*images.Processor](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*service.SearchService](injector)

	// Business services
	_ = do.MustInvoke[*names.Generator](injector)
	if _, err := do.Invoke[*service.ScanService](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*export.Exporter](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*service.ExportService](injector)

	// Workers
	if _, err := do.Invoke[*providers.InboxHandle](injector); err != nil {
		return err
	}

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	// Trigger search reindex if needed
	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
