package search

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// mappingVersion is bumped whenever buildIndexMapping changes.
// A mismatch on open discards the index so it is rebuilt from the repository.
const mappingVersion = "1"

const (
	indexDirName    = "search.bleve"
	versionFileName = "search.version"
	batchSize       = 500
)

// Index wraps a Bleve index of scan documents.
// All methods are safe for concurrent use; Reset takes an exclusive lock.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex

	// fresh is true when the index was created empty on open and
	// needs to be filled from the repository.
	fresh bool
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory holding search.bleve and search.version
	Logger   *slog.Logger // Uses discard if nil
	InMemory bool         // Skip disk entirely (tests, CLI)
}

// Open opens the index under opts.DataPath, recreating it when it is
// missing, unreadable, or built with an older mapping.
func Open(opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.InMemory {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{index: idx, logger: logger, fresh: true}, nil
	}

	s := &Index{
		path:   filepath.Join(opts.DataPath, indexDirName),
		logger: logger,
	}
	versionPath := filepath.Join(opts.DataPath, versionFileName)

	if reason := s.staleReason(versionPath); reason == "" {
		idx, err := bleve.Open(s.path)
		if err == nil {
			s.index = idx
			logger.Info("opened existing search index", "path", s.path)
			return s, nil
		}
		logger.Warn("failed to open existing index, will recreate", "path", s.path, "error", err)
	} else if reason != "missing" {
		logger.Info("search index will be rebuilt", "reason", reason, "mapping_version", mappingVersion)
	}

	if err := s.create(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
		logger.Warn("failed to write search version file", "error", err)
	}
	return s, nil
}

// staleReason explains why the on-disk index cannot be reused, or "" if it can.
func (s *Index) staleReason(versionPath string) string {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return "missing"
	}
	v, err := os.ReadFile(versionPath)
	if err != nil {
		return "no version file"
	}
	if string(v) != mappingVersion {
		return "mapping version " + string(v)
	}
	return ""
}

// create replaces whatever is at s.path with an empty index. Caller holds mu
// or has exclusive access.
func (s *Index) create() error {
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove old index: %w", err)
	}
	idx, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.index = idx
	s.fresh = true
	s.logger.Info("created new search index", "path", s.path, "mapping_version", mappingVersion)
	return nil
}

// NeedsRebuild reports whether the index was created empty on open.
func (s *Index) NeedsRebuild() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fresh
}

// Close closes the index and releases resources.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexDocument indexes or replaces a single document.
func (s *Index) IndexDocument(doc *SearchDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexDocuments indexes documents in batches of batchSize.
func (s *Index) IndexDocuments(docs []*SearchDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))

		batch := s.index.NewBatch()
		for _, doc := range docs[start:end] {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", start, end, err)
		}
	}

	s.fresh = false
	return nil
}

// DeleteDocument removes a document. Missing documents are not an error.
func (s *Index) DeleteDocument(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

// DocumentCount returns the total number of indexed documents.
func (s *Index) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Reset drops every document. Blocks all other operations while it runs.
func (s *Index) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return fmt.Errorf("create in-memory index: %w", err)
		}
		_ = s.index.Close()
		s.index = idx
		s.fresh = true
		return nil
	}

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return s.create()
}
