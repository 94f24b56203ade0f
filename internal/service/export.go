package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/scanixapp/scanix-server/internal/domain"
	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/export"
	"github.com/scanixapp/scanix-server/internal/sse"
	"github.com/scanixapp/scanix-server/internal/store"
)

// ScanReader is the read side of ScanService used by exports.
type ScanReader interface {
	Get(ctx context.Context, scanID string) (*domain.Scan, error)
}

// ExportService writes scans as PDF or ZIP artifacts and announces them.
type ExportService struct {
	scans    ScanReader
	exporter *export.Exporter
	emitter  store.EventEmitter
	logger   *slog.Logger
}

// NewExportService creates a new export service.
func NewExportService(scans ScanReader, exporter *export.Exporter, emitter store.EventEmitter, logger *slog.Logger) *ExportService {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	return &ExportService{
		scans:    scans,
		exporter: exporter,
		emitter:  emitter,
		logger:   logger,
	}
}

// Export writes the scan in the given format ("pdf" or "zip").
// A scan with no exportable page yields an unprocessable error wrapping
// export.ErrNothingToExport.
func (s *ExportService) Export(ctx context.Context, scanID, format string) (*export.Artifact, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}

	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}

	a, err := s.exporter.Export(ctx, scan, f)
	switch {
	case errors.Is(err, export.ErrNothingToExport):
		return nil, domainerrors.Wrapf(err, domainerrors.CodeUnprocessable, "scan %s has no exportable pages", scanID)
	case err != nil:
		s.logger.Error("export failed", "scan_id", scanID, "format", f, "error", err)
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "export failed")
	}

	s.emitter.Emit(sse.NewExportReadyEvent(scanID, a.Handle, string(a.Format), a.FileName))
	return a, nil
}

// Artifact returns a registered artifact.
func (s *ExportService) Artifact(handle string) (*export.Artifact, error) {
	a, err := s.exporter.Get(handle)
	if err != nil {
		return nil, domainerrors.NotFoundf("export %s not found", handle)
	}
	return a, nil
}

// Exporter exposes the underlying exporter for streaming downloads.
func (s *ExportService) Exporter() *export.Exporter {
	return s.exporter
}

// Forget drops the artifacts of a removed scan.
func (s *ExportService) Forget(ctx context.Context, scanID string) {
	s.exporter.Forget(ctx, scanID)
}
