package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/scanixapp/scanix-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchScans",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search scans",
		Description: "Full-text search over scan names with prefix and fuzzy matching",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// === DTOs ===

// SearchInput contains parameters for searching scans.
type SearchInput struct {
	Query    string `query:"q" validate:"required,min=1,max=200" doc:"Search query"`
	MinPages int    `query:"min_pages" validate:"omitempty,gte=0" doc:"Only scans with at least this many pages"`
	MaxPages int    `query:"max_pages" validate:"omitempty,gte=0" doc:"Only scans with at most this many pages"`
	Sort     string `query:"sort" validate:"omitempty,oneof=relevance recent" doc:"relevance (default) or recent"`
	Limit    int    `query:"limit" validate:"omitempty,gte=1,lte=100" doc:"Max results (default 20)"`
	Offset   int    `query:"offset" validate:"omitempty,gte=0" doc:"Pagination offset"`
}

// SearchOutput wraps the search response for Huma.
type SearchOutput struct {
	Body search.SearchResult
}

// === Handlers ===

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if s.services.Search == nil {
		return nil, huma.Error503ServiceUnavailable("search is not available")
	}
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	params := search.DefaultSearchParams()
	params.Query = input.Query
	params.MinPages = input.MinPages
	params.MaxPages = input.MaxPages
	if input.Sort != "" {
		params.SortBy = input.Sort
	}
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	params.Offset = input.Offset

	result, err := s.services.Search.Search(ctx, params)
	if err != nil {
		s.logger.Error("search failed", "query", input.Query, "error", err)
		return nil, huma.Error500InternalServerError("search failed")
	}

	return &SearchOutput{Body: *result}, nil
}
