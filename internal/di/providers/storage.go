package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/scanixapp/scanix-server/internal/config"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/media/images"
)

// ThumbnailStorage is the on-disk cache of rendered scan thumbnails.
type ThumbnailStorage struct {
	*images.Storage
}

// ProvideThumbnailStorage provides the thumbnail cache.
func ProvideThumbnailStorage(i do.Injector) (*ThumbnailStorage, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	thumbs, err := images.NewStorageWithSubdir(cfg.Data.BasePath, "thumbnails")
	if err != nil {
		return nil, fmt.Errorf("thumbnail storage: %w", err)
	}

	log.Info("Thumbnail storage initialized")

	return &ThumbnailStorage{Storage: thumbs}, nil
}

// ProvideImageProcessor provides the processor that turns captures into JPEG pages.
func ProvideImageProcessor(i do.Injector) (*images.Processor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return images.NewProcessor(cfg.Capture.JPEGQuality, log.Component("images")), nil
}
