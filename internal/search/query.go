package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Sort orders for SearchParams.SortBy.
const (
	SortRelevance = "relevance"
	SortRecent    = "recent"
)

// SearchParams configures a search query.
type SearchParams struct {
	Query    string
	MinPages int // 0 = no lower bound
	MaxPages int // 0 = no upper bound

	Limit  int
	Offset int
	SortBy string // relevance (default) or recent

	Highlight bool
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:     20,
		SortBy:    SortRelevance,
		Highlight: true,
	}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit represents a single matching scan.
type SearchHit struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	PageCount int     `json:"page_count"`
	Highlight string  `json:"highlight,omitempty"`
}

// Search executes a search query.
func (s *Index) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	if params.SortBy == SortRecent {
		req.SortBy([]string{"-created_at"})
	} else {
		req.SortBy([]string{"-_score", "-created_at"})
	}
	if params.Highlight && params.Query != "" {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("name")
	}
	req.Fields = []string{"name", "page_count"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}
		if n, ok := hit.Fields["name"].(string); ok {
			h.Name = n
		}
		if pc, ok := hit.Fields["page_count"].(float64); ok {
			h.PageCount = int(pc)
		}
		if frags := hit.Fragments["name"]; len(frags) > 0 {
			h.Highlight = frags[0]
		}
		result.Hits = append(result.Hits, h)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if q := strings.TrimSpace(params.Query); q != "" {
		nameMatch := bleve.NewMatchQuery(q)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		// Typo tolerance, one edit.
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("name_raw")
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{nameMatch, fuzzy}

		// Prefix query for search-as-you-type (minimum 2 chars).
		if len(q) >= 2 {
			last := strings.ToLower(q[strings.LastIndexByte(q, ' ')+1:])
			if last != "" {
				prefix := bleve.NewPrefixQuery(last)
				prefix.SetField("name_raw")
				prefix.SetBoost(0.5)
				textQueries = append(textQueries, prefix)
			}
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.MinPages > 0 || params.MaxPages > 0 {
		var lo, hi *float64
		if params.MinPages > 0 {
			v := float64(params.MinPages)
			lo = &v
		}
		if params.MaxPages > 0 {
			v := float64(params.MaxPages)
			hi = &v
		}
		inclusive := true
		pages := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
		pages.SetField("page_count")
		queries = append(queries, pages)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
