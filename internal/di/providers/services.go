package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/scanixapp/scanix-server/internal/config"
	"github.com/scanixapp/scanix-server/internal/export"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/media/images"
	"github.com/scanixapp/scanix-server/internal/names"
	"github.com/scanixapp/scanix-server/internal/service"
)

// ProvideNameGenerator provides the generator that names new scans.
func ProvideNameGenerator(_ do.Injector) (*names.Generator, error) {
	return names.New(), nil
}

// ProvideScanService provides the scan store and loads persisted scans into it.
func ProvideScanService(i do.Injector) (*service.ScanService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	processor := do.MustInvoke[*images.Processor](i)
	generator := do.MustInvoke[*names.Generator](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	thumbs := do.MustInvoke[*ThumbnailStorage](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewScanService(storeHandle.Repository, processor, generator, log.Component("scans"),
		service.WithEventEmitter(sseHandle.Manager),
		service.WithSearchIndexer(searchService),
		service.WithThumbnailCache(thumbs.Storage),
	)

	n, err := svc.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}
	log.Info("Scans loaded", "scans", n)

	return svc, nil
}

// ProvideExporter provides the PDF/ZIP exporter, uploading to object
// storage when it is configured.
func ProvideExporter(i do.Injector) (*export.Exporter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var opts []export.Option
	if cfg.Export.ObjectStorageEnabled() {
		objects, err := export.NewMinioStore(context.Background(), export.MinioConfig{
			Endpoint:  cfg.Export.ObjectEndpoint,
			AccessKey: cfg.Export.ObjectAccessKey,
			SecretKey: cfg.Export.ObjectSecretKey,
			Bucket:    cfg.Export.ObjectBucket,
			UseSSL:    cfg.Export.ObjectUseSSL,
		})
		if err != nil {
			// Non-fatal: exports still work locally.
			log.Warn("Object storage unavailable, share links disabled", "endpoint", cfg.Export.ObjectEndpoint, "error", err)
		} else {
			opts = append(opts, export.WithObjectStore(objects, cfg.Export.LinkExpiry))
			log.Info("Export share links enabled", "endpoint", cfg.Export.ObjectEndpoint, "bucket", cfg.Export.ObjectBucket)
		}
	}

	return export.New(cfg.Export.Dir, log.Component("export"), opts...)
}

// ProvideExportService provides the export service.
func ProvideExportService(i do.Injector) (*service.ExportService, error) {
	scans := do.MustInvoke[*service.ScanService](i)
	exporter := do.MustInvoke[*export.Exporter](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewExportService(scans, exporter, sseHandle.Manager, log.Component("export")), nil
}
