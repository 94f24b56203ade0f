package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scanixapp/scanix-server/internal/domain"
	"github.com/scanixapp/scanix-server/internal/search"
	"github.com/scanixapp/scanix-server/internal/store"
)

// SearchService bridges the full-text index with the scan repository.
// It implements store.SearchIndexer so the scan service can keep the
// index current after every write.
type SearchService struct {
	index  *search.Index
	repo   store.Repository
	logger *slog.Logger
}

var _ store.SearchIndexer = (*SearchService)(nil)

// NewSearchService creates a new search service.
func NewSearchService(index *search.Index, repo store.Repository, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  index,
		repo:   repo,
		logger: logger,
	}
}

// Search runs a name query against the index.
func (s *SearchService) Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	return s.index.Search(ctx, params)
}

// IndexScan adds or refreshes one scan.
func (s *SearchService) IndexScan(_ context.Context, scan *domain.Scan) error {
	if err := s.index.IndexDocument(search.ScanToSearchDocument(scan)); err != nil {
		return fmt.Errorf("index scan: %w", err)
	}
	s.logger.Debug("indexed scan", "scan_id", scan.ID, "name", scan.Name)
	return nil
}

// DeleteScan removes a scan from the index.
func (s *SearchService) DeleteScan(_ context.Context, scanID string) error {
	return s.index.DeleteDocument(scanID)
}

// DocumentCount returns the number of indexed scans.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}

// ReindexAll drops the index and rebuilds it from the repository.
func (s *SearchService) ReindexAll(ctx context.Context) error {
	s.logger.Info("starting full reindex")

	if err := s.index.Reset(); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}

	scans, err := s.repo.LoadScans(ctx)
	if err != nil {
		return fmt.Errorf("load scans: %w", err)
	}

	docs := make([]*search.SearchDocument, 0, len(scans))
	for _, scan := range scans {
		if scan.IsEmpty() {
			continue
		}
		docs = append(docs, search.ScanToSearchDocument(scan))
	}

	if len(docs) > 0 {
		if err := s.index.IndexDocuments(docs); err != nil {
			return fmt.Errorf("index scans: %w", err)
		}
	}

	total, _ := s.index.DocumentCount() //nolint:errcheck // Count is informational
	s.logger.Info("full reindex complete", "indexed", len(docs), "total_documents", total)
	return nil
}

// RebuildIfNeeded reindexes when the index was just created or its
// mapping changed since it was written.
func (s *SearchService) RebuildIfNeeded(ctx context.Context) error {
	if !s.index.NeedsRebuild() {
		return nil
	}
	return s.ReindexAll(ctx)
}
