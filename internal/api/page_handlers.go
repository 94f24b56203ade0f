package api

import (
	"context"
	"io"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/media/images"
)

func (s *Server) registerPageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:  "appendPages",
		Method:       http.MethodPost,
		Path:         "/api/v1/scans/{id}/pages",
		Summary:      "Append pages",
		Description:  "Adds uploaded page images after the existing pages, in upload order",
		Tags:         []string{"Pages"},
		MaxBodyBytes: MaxUploadSize,
		Middlewares:  huma.Middlewares{s.uploadRateLimit},
	}, s.handleAppendPages)

	huma.Register(s.api, huma.Operation{
		OperationID: "deletePage",
		Method:      http.MethodDelete,
		Path:        "/api/v1/scans/{id}/pages/{pageId}",
		Summary:     "Delete page",
		Description: "Removes a page and closes the gap in page order. Deleting the last page deletes the scan.",
		Tags:        []string{"Pages"},
	}, s.handleDeletePage)

	huma.Register(s.api, huma.Operation{
		OperationID: "movePage",
		Method:      http.MethodPost,
		Path:        "/api/v1/scans/{id}/pages/{pageId}/move",
		Summary:     "Move page",
		Description: "Swaps a page with its neighbour. Moving past either end does nothing.",
		Tags:        []string{"Pages"},
	}, s.handleMovePage)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPageImage",
		Method:      http.MethodGet,
		Path:        "/api/v1/scans/{id}/pages/{pageId}/image",
		Summary:     "Get page image",
		Description: "Returns the stored JPEG of a page",
		Tags:        []string{"Pages"},
	}, s.handleGetPageImage)

	huma.Register(s.api, huma.Operation{
		OperationID: "getScanThumbnail",
		Method:      http.MethodGet,
		Path:        "/api/v1/scans/{id}/thumbnail",
		Summary:     "Get scan thumbnail",
		Description: "Returns a thumbnail of the first page",
		Tags:        []string{"Pages"},
	}, s.handleGetThumbnail)
}

// === DTOs ===

// UploadPagesForm is the multipart form for page uploads.
type UploadPagesForm struct {
	Pages []huma.FormFile `form:"pages" doc:"Page images (JPEG, PNG, GIF, or WebP), in page order"`
}

// UploadPagesInput carries uploaded images.
type UploadPagesInput struct {
	ID      string `path:"id" doc:"Scan ID"`
	RawBody huma.MultipartFormFiles[UploadPagesForm]
}

// PageIDInput identifies a page.
type PageIDInput struct {
	ID     string `path:"id" doc:"Scan ID"`
	PageID string `path:"pageId" doc:"Page ID"`
}

// MovePageRequest is the request body for moving a page.
type MovePageRequest struct {
	Direction int `json:"direction" validate:"oneof=-1 1" doc:"-1 moves toward the front, +1 toward the back"`
}

// MovePageInput wraps the move request.
type MovePageInput struct {
	ID     string `path:"id" doc:"Scan ID"`
	PageID string `path:"pageId" doc:"Page ID"`
	Body   MovePageRequest
}

// ImageInput identifies a page image, with conditional request support.
type ImageInput struct {
	ID          string `path:"id" doc:"Scan ID"`
	PageID      string `path:"pageId" doc:"Page ID"`
	IfNoneMatch string `header:"If-None-Match"`
}

// ThumbnailInput identifies a scan thumbnail, with conditional request support.
type ThumbnailInput struct {
	ID          string `path:"id" doc:"Scan ID"`
	IfNoneMatch string `header:"If-None-Match"`
}

// ImageOutput is a raw JPEG response.
type ImageOutput struct {
	Status       int
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	ETag         string `header:"ETag"`
	Body         []byte
}

// === Handlers ===

func (s *Server) handleAppendPages(ctx context.Context, input *UploadPagesInput) (*MutationOutput, error) {
	blobs, err := readUploads(input.RawBody.Data().Pages)
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, domainerrors.Validation("no page images uploaded")
	}

	return s.mutationOutput(s.services.Scans.Append(ctx, input.ID, blobs), http.StatusOK)
}

func (s *Server) handleDeletePage(ctx context.Context, input *PageIDInput) (*MutationOutput, error) {
	outcome := s.services.Scans.DeletePage(ctx, input.ID, input.PageID)
	if outcome.Removed && s.services.Exports != nil {
		s.services.Exports.Forget(ctx, input.ID)
	}
	return s.mutationOutput(outcome, http.StatusOK)
}

func (s *Server) handleMovePage(ctx context.Context, input *MovePageInput) (*MutationOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}
	return s.mutationOutput(s.services.Scans.MovePage(ctx, input.ID, input.PageID, input.Body.Direction), http.StatusOK)
}

func (s *Server) handleGetPageImage(ctx context.Context, input *ImageInput) (*ImageOutput, error) {
	data, err := s.services.Scans.PageImage(ctx, input.ID, input.PageID)
	if err != nil {
		return nil, err
	}
	// Page images never change; a new capture gets a new page ID.
	return imageOutput(data, etagOf(data), input.IfNoneMatch, CacheOneDayPrivate), nil
}

func (s *Server) handleGetThumbnail(ctx context.Context, input *ThumbnailInput) (*ImageOutput, error) {
	data, hash, err := s.services.Scans.Thumbnail(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	// The first page changes with moves and deletes.
	return imageOutput(data, `"`+hash+`"`, input.IfNoneMatch, CacheRevalidate), nil
}

// === Helpers ===

func imageOutput(data []byte, etag, ifNoneMatch, cacheControl string) *ImageOutput {
	out := &ImageOutput{
		Status:       http.StatusOK,
		ContentType:  "image/jpeg",
		CacheControl: cacheControl,
		ETag:         etag,
		Body:         data,
	}
	if ifNoneMatch != "" && ifNoneMatch == etag {
		out.Status = http.StatusNotModified
		out.Body = nil
	}
	return out
}

func etagOf(data []byte) string {
	return `"` + images.HashBytes(data) + `"`
}

// readUploads reads and closes every uploaded file.
func readUploads(files []huma.FormFile) ([][]byte, error) {
	blobs := make([][]byte, 0, len(files))
	for _, f := range files {
		if !f.IsSet || f.File == nil {
			continue
		}
		data, err := io.ReadAll(f.File)
		_ = f.Close() //nolint:errcheck // Read-only
		if err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeValidation, "read upload %q", f.Filename)
		}
		blobs = append(blobs, data)
	}
	return blobs, nil
}
