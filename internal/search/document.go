// Package search provides full-text search over scan names using Bleve.
// Queries combine stemmed matching, fuzzy matching for typos, and prefix
// matching for search-as-you-type.
package search

import (
	"github.com/scanixapp/scanix-server/internal/domain"
)

// SearchDocument is the indexed form of a scan.
type SearchDocument struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PageCount int    `json:"page_count"`

	// Timestamps for sorting
	CreatedAt int64 `json:"created_at"` // Unix millis
	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// ToMap converts the document to a map with lowercase field names
// matching the index mapping.
func (d *SearchDocument) ToMap() map[string]any {
	return map[string]any{
		"id":         d.ID,
		"name":       d.Name,
		"page_count": d.PageCount,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}
}

// ScanToSearchDocument converts a scan to its search document.
func ScanToSearchDocument(scan *domain.Scan) *SearchDocument {
	return &SearchDocument{
		ID:        scan.ID,
		Name:      scan.Name,
		PageCount: len(scan.Pages),
		CreatedAt: scan.CreatedAt.UnixMilli(),
		UpdatedAt: scan.UpdatedAt.UnixMilli(),
	}
}
