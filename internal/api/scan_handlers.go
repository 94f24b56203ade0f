package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/scanixapp/scanix-server/internal/domain"
	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/service"
)

func (s *Server) registerScanRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listScans",
		Method:      http.MethodGet,
		Path:        "/api/v1/scans",
		Summary:     "List scans",
		Description: "Returns scans newest first, optionally filtered by a case-insensitive name substring",
		Tags:        []string{"Scans"},
	}, s.handleListScans)

	huma.Register(s.api, huma.Operation{
		OperationID: "listRecentScans",
		Method:      http.MethodGet,
		Path:        "/api/v1/scans/recent",
		Summary:     "Recent scans",
		Description: "Returns the most recently created scans",
		Tags:        []string{"Scans"},
	}, s.handleRecentScans)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createScan",
		Method:        http.MethodPost,
		Path:          "/api/v1/scans",
		Summary:       "Create scan",
		Description:   "Creates a scan from uploaded page images, in upload order",
		Tags:          []string{"Scans"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  MaxUploadSize,
		Middlewares:   huma.Middlewares{s.uploadRateLimit},
	}, s.handleCreateScan)

	huma.Register(s.api, huma.Operation{
		OperationID: "getScan",
		Method:      http.MethodGet,
		Path:        "/api/v1/scans/{id}",
		Summary:     "Get scan",
		Description: "Returns a scan with its pages in order",
		Tags:        []string{"Scans"},
	}, s.handleGetScan)

	huma.Register(s.api, huma.Operation{
		OperationID: "renameScan",
		Method:      http.MethodPatch,
		Path:        "/api/v1/scans/{id}",
		Summary:     "Rename scan",
		Description: "Sets the scan name; an empty name is allowed",
		Tags:        []string{"Scans"},
	}, s.handleRenameScan)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteScan",
		Method:      http.MethodDelete,
		Path:        "/api/v1/scans/{id}",
		Summary:     "Delete scan",
		Description: "Deletes a scan and all of its pages",
		Tags:        []string{"Scans"},
	}, s.handleDeleteScan)
}

// === DTOs ===

// PageResponse is the image-free view of a page.
type PageResponse struct {
	ID        string    `json:"id" doc:"Page ID"`
	Order     int       `json:"order" doc:"Zero-based position within the scan"`
	HasImage  bool      `json:"has_image" doc:"False when the stored image cannot be loaded"`
	Width     int       `json:"width,omitempty" doc:"Image width in pixels"`
	Height    int       `json:"height,omitempty" doc:"Image height in pixels"`
	BlurHash  string    `json:"blur_hash,omitempty" doc:"BlurHash placeholder"`
	ImageURL  string    `json:"image_url" doc:"URL of the JPEG image"`
	CreatedAt time.Time `json:"created_at" doc:"Capture time"`
}

// ScanResponse contains scan data in API responses.
type ScanResponse struct {
	ID           string         `json:"id" doc:"Scan ID"`
	Name         string         `json:"name" doc:"Scan name, may be empty"`
	PageCount    int            `json:"page_count" doc:"Number of pages"`
	ThumbnailURL string         `json:"thumbnail_url" doc:"URL of the first page thumbnail"`
	Pages        []PageResponse `json:"pages" doc:"Pages in order"`
	CreatedAt    time.Time      `json:"created_at" doc:"Creation time"`
	UpdatedAt    time.Time      `json:"updated_at" doc:"Last update time"`
}

// ScanSummary is a scan without its page list.
type ScanSummary struct {
	ID           string    `json:"id" doc:"Scan ID"`
	Name         string    `json:"name" doc:"Scan name, may be empty"`
	PageCount    int       `json:"page_count" doc:"Number of pages"`
	ThumbnailURL string    `json:"thumbnail_url" doc:"URL of the first page thumbnail"`
	CreatedAt    time.Time `json:"created_at" doc:"Creation time"`
}

// ListScansResponse contains a list of scans.
type ListScansResponse struct {
	Scans []ScanSummary `json:"scans" doc:"Scans, newest first"`
	Total int           `json:"total" doc:"Number of scans returned"`
}

// ListScansOutput wraps the list response for Huma.
type ListScansOutput struct {
	Body ListScansResponse
}

// ListScansInput contains parameters for listing scans.
type ListScansInput struct {
	Query string `query:"q" maxLength:"200" doc:"Case-insensitive name filter"`
	Limit int    `query:"limit" minimum:"0" maximum:"1000" doc:"Max scans (0 = all)"`
}

// ScanIDInput identifies a scan.
type ScanIDInput struct {
	ID string `path:"id" doc:"Scan ID"`
}

// ScanOutput wraps a scan response for Huma.
type ScanOutput struct {
	Body ScanResponse
}

// RenameScanRequest is the request body for renaming a scan.
type RenameScanRequest struct {
	Name string `json:"name" validate:"max=200" doc:"New name; may be empty"`
}

// RenameScanInput wraps the rename request.
type RenameScanInput struct {
	ID   string `path:"id" doc:"Scan ID"`
	Body RenameScanRequest
}

// MutationResponse reports what a scan or page change did.
type MutationResponse struct {
	Scan      *ScanResponse `json:"scan,omitempty" doc:"Scan after the change; absent when it no longer exists"`
	Changed   bool          `json:"changed" doc:"Pages or name were modified"`
	Created   bool          `json:"created" doc:"A new scan was created"`
	Removed   bool          `json:"removed" doc:"The scan was deleted, explicitly or because it lost its last page"`
	Dropped   int           `json:"dropped" doc:"Uploaded images that could not be decoded"`
	Persisted bool          `json:"persisted" doc:"False when the change is held in memory but could not be saved"`
}

// MutationOutput wraps a mutation response for Huma.
type MutationOutput struct {
	Status int
	Body   MutationResponse
}

// === Handlers ===

func (s *Server) handleListScans(ctx context.Context, input *ListScansInput) (*ListScansOutput, error) {
	scans := s.services.Scans.List(ctx, service.ListOptions{Query: input.Query, Limit: input.Limit})
	return &ListScansOutput{Body: toListResponse(scans)}, nil
}

func (s *Server) handleRecentScans(ctx context.Context, _ *struct{}) (*ListScansOutput, error) {
	return &ListScansOutput{Body: toListResponse(s.services.Scans.Recent(ctx))}, nil
}

func (s *Server) handleCreateScan(ctx context.Context, input *UploadPagesInput) (*MutationOutput, error) {
	blobs, err := readUploads(input.RawBody.Data().Pages)
	if err != nil {
		return nil, err
	}

	outcome := s.services.Scans.Append(ctx, "", blobs)
	if !outcome.Created {
		return nil, domainerrors.Unprocessable("no decodable images uploaded").
			WithDetails(map[string]int{"dropped": outcome.Dropped})
	}

	return s.mutationOutput(outcome, http.StatusCreated)
}

func (s *Server) handleGetScan(ctx context.Context, input *ScanIDInput) (*ScanOutput, error) {
	scan, err := s.services.Scans.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ScanOutput{Body: toScanResponse(scan)}, nil
}

func (s *Server) handleRenameScan(ctx context.Context, input *RenameScanInput) (*MutationOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}
	return s.mutationOutput(s.services.Scans.Rename(ctx, input.ID, input.Body.Name), http.StatusOK)
}

func (s *Server) handleDeleteScan(ctx context.Context, input *ScanIDInput) (*MutationOutput, error) {
	outcome := s.services.Scans.DeleteScan(ctx, input.ID)
	if outcome.Removed && s.services.Exports != nil {
		s.services.Exports.Forget(ctx, input.ID)
	}
	return s.mutationOutput(outcome, http.StatusOK)
}

// mutationOutput maps an Outcome to a response. Missing targets become 404;
// persistence failures are reported in the body, not as errors.
func (s *Server) mutationOutput(o service.Outcome, status int) (*MutationOutput, error) {
	if o.NotFound {
		return nil, domainerrors.NotFound("scan or page not found")
	}

	resp := MutationResponse{
		Changed:   o.Changed,
		Created:   o.Created,
		Removed:   o.Removed,
		Dropped:   o.Dropped,
		Persisted: o.PersistErr == nil,
	}
	if o.Scan != nil {
		sr := toScanResponse(o.Scan)
		resp.Scan = &sr
	}
	return &MutationOutput{Status: status, Body: resp}, nil
}

// === Mapping ===

func scanURL(scanID string) string {
	return "/api/v1/scans/" + scanID
}

func toScanResponse(scan *domain.Scan) ScanResponse {
	pages := make([]PageResponse, 0, len(scan.Pages))
	for _, p := range scan.SortedPages() {
		pages = append(pages, PageResponse{
			ID:        p.ID,
			Order:     p.Order,
			HasImage:  p.HasImage(),
			Width:     p.Width,
			Height:    p.Height,
			BlurHash:  p.BlurHash,
			ImageURL:  scanURL(scan.ID) + "/pages/" + p.ID + "/image",
			CreatedAt: p.CreatedAt,
		})
	}

	return ScanResponse{
		ID:           scan.ID,
		Name:         scan.Name,
		PageCount:    len(pages),
		ThumbnailURL: scanURL(scan.ID) + "/thumbnail",
		Pages:        pages,
		CreatedAt:    scan.CreatedAt,
		UpdatedAt:    scan.UpdatedAt,
	}
}

func toListResponse(scans []*domain.Scan) ListScansResponse {
	out := make([]ScanSummary, 0, len(scans))
	for _, scan := range scans {
		out = append(out, ScanSummary{
			ID:           scan.ID,
			Name:         scan.Name,
			PageCount:    scan.PageCount(),
			ThumbnailURL: scanURL(scan.ID) + "/thumbnail",
			CreatedAt:    scan.CreatedAt,
		})
	}
	return ListScansResponse{Scans: out, Total: len(out)}
}
