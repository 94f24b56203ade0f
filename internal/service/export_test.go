package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/export"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/sse"
)

func jpegBlob(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 12, 12)), nil))
	return buf.Bytes()
}

func setupExport(t *testing.T) (*ExportService, *scanFixture) {
	t.Helper()
	f := setupScanService(t)
	exporter, err := export.New(filepath.Join(t.TempDir(), "exports"), logger.Discard().Logger)
	require.NoError(t, err)
	return NewExportService(f.svc, exporter, f.emitter, logger.Discard().Logger), f
}

func TestExportService_Export(t *testing.T) {
	svc, f := setupExport(t)
	ctx := context.Background()

	out := f.svc.Append(ctx, "", [][]byte{jpegBlob(t), jpegBlob(t)})
	require.True(t, out.Created)

	a, err := svc.Export(ctx, out.Scan.ID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "Mighty Scan.pdf", a.FileName)
	assert.Equal(t, 2, a.Pages)

	last := f.emitter.Last()
	assert.Equal(t, sse.EventExportReady, last.Type)
	assert.Equal(t, a.Handle, last.Data.(sse.ExportReadyEventData).Handle)

	got, err := svc.Artifact(a.Handle)
	require.NoError(t, err)
	assert.Equal(t, a.Path, got.Path)

	svc.Forget(ctx, out.Scan.ID)
	_, err = svc.Artifact(a.Handle)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestExportService_NothingToExport(t *testing.T) {
	svc, f := setupExport(t)
	ctx := context.Background()

	// The passthrough normalizer stores raw bytes that no codec decodes.
	out := f.svc.Append(ctx, "", blobs("not-a-jpeg"))
	require.True(t, out.Created)

	_, err := svc.Export(ctx, out.Scan.ID, "zip")
	assert.ErrorIs(t, err, domainerrors.ErrUnprocessable)
	assert.True(t, errors.Is(err, export.ErrNothingToExport))
}

func TestExportService_Errors(t *testing.T) {
	svc, f := setupExport(t)
	ctx := context.Background()

	_, err := svc.Export(ctx, "scan-missing", "pdf")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	out := f.svc.Append(ctx, "", [][]byte{jpegBlob(t)})
	_, err = svc.Export(ctx, out.Scan.ID, "docx")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}
