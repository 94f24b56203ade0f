package api

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/scanixapp/scanix-server/internal/export"
)

func (s *Server) registerExportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "exportScan",
		Method:      http.MethodPost,
		Path:        "/api/v1/scans/{id}/export",
		Summary:     "Export scan",
		Description: "Writes the scan's pages, in order, to a PDF or ZIP file. Pages without a loadable image are skipped.",
		Tags:        []string{"Exports"},
	}, s.handleExportScan)

	huma.Register(s.api, huma.Operation{
		OperationID: "downloadExport",
		Method:      http.MethodGet,
		Path:        "/api/v1/exports/{handle}",
		Summary:     "Download export",
		Description: "Streams a previously generated export",
		Tags:        []string{"Exports"},
	}, s.handleDownloadExport)
}

// === DTOs ===

// ExportScanRequest is the request body for exporting a scan.
type ExportScanRequest struct {
	Format string `json:"format" validate:"required,oneof=pdf zip" doc:"pdf or zip"`
}

// ExportScanInput wraps the export request.
type ExportScanInput struct {
	ID   string `path:"id" doc:"Scan ID"`
	Body ExportScanRequest
}

// ExportResponse describes a generated export.
type ExportResponse struct {
	Handle      string    `json:"handle" doc:"Opaque export handle"`
	ScanID      string    `json:"scan_id" doc:"Exported scan"`
	Format      string    `json:"format" doc:"pdf or zip"`
	FileName    string    `json:"file_name" doc:"Suggested file name"`
	ContentType string    `json:"content_type" doc:"MIME type"`
	Size        int64     `json:"size" doc:"Size in bytes"`
	Pages       int       `json:"pages" doc:"Pages written"`
	Skipped     int       `json:"skipped" doc:"Pages skipped because their image could not be loaded"`
	DownloadURL string    `json:"download_url" doc:"Download URL on this server"`
	ShareURL    string    `json:"share_url,omitempty" doc:"Expiring link on object storage, when configured"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation time"`
}

// ExportOutput wraps an export response for Huma.
type ExportOutput struct {
	Body ExportResponse
}

// DownloadExportInput identifies an export.
type DownloadExportInput struct {
	Handle string `path:"handle" doc:"Export handle"`
}

// === Handlers ===

func (s *Server) handleExportScan(ctx context.Context, input *ExportScanInput) (*ExportOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	a, err := s.services.Exports.Export(ctx, input.ID, input.Body.Format)
	if err != nil {
		return nil, err
	}

	return &ExportOutput{Body: toExportResponse(a)}, nil
}

func (s *Server) handleDownloadExport(_ context.Context, input *DownloadExportInput) (*huma.StreamResponse, error) {
	// Resolve through the service for the domain error, then open the file.
	if _, err := s.services.Exports.Artifact(input.Handle); err != nil {
		return nil, err
	}

	f, a, err := s.services.Exports.Exporter().Open(input.Handle)
	if err != nil {
		// ErrArtifactNotFound when the file was removed from disk.
		return nil, err
	}

	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			defer f.Close() //nolint:errcheck // Read-only

			ctx.SetHeader("Content-Type", a.ContentType)
			ctx.SetHeader("Content-Length", strconv.FormatInt(a.Size, 10))
			ctx.SetHeader("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
			ctx.SetHeader("Cache-Control", CacheNoStore)

			if _, err := io.Copy(ctx.BodyWriter(), f); err != nil {
				s.logger.Warn("export download interrupted", "handle", a.Handle, "error", err)
			}
		},
	}, nil
}

func toExportResponse(a *export.Artifact) ExportResponse {
	return ExportResponse{
		Handle:      a.Handle,
		ScanID:      a.ScanID,
		Format:      string(a.Format),
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Size:        a.Size,
		Pages:       a.Pages,
		Skipped:     a.Skipped,
		DownloadURL: "/api/v1/exports/" + a.Handle,
		ShareURL:    a.ShareURL,
		CreatedAt:   a.CreatedAt,
	}
}
