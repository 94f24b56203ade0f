// Package store defines persistence for scans and their pages, plus the
// observer interfaces the scan service notifies after mutations.
package store

import (
	"context"

	"github.com/scanixapp/scanix-server/internal/domain"
)

// Repository persists two record kinds: scans and the pages they own.
type Repository interface {
	// LoadScans returns every scan with its pages. Page order is not guaranteed.
	LoadScans(ctx context.Context) ([]*domain.Scan, error)

	// GetScan returns one scan with its pages, or ErrNotFound.
	GetScan(ctx context.Context, id string) (*domain.Scan, error)

	// SaveScan upserts the scan and replaces its page set atomically.
	SaveScan(ctx context.Context, scan *domain.Scan) error

	// DeleteScan removes a scan and its pages. Missing scans are not an error.
	DeleteScan(ctx context.Context, id string) error

	Close() error
}

// EventEmitter is the interface for emitting SSE events.
// The scan service uses this to broadcast changes without depending on SSE implementation details.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// SearchIndexer keeps the search index in sync with scan changes.
type SearchIndexer interface {
	IndexScan(ctx context.Context, scan *domain.Scan) error
	DeleteScan(ctx context.Context, scanID string) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// IndexScan is a no-op.
func (NoopSearchIndexer) IndexScan(context.Context, *domain.Scan) error { return nil }

// DeleteScan is a no-op.
func (NoopSearchIndexer) DeleteScan(context.Context, string) error { return nil }

// NewNoopSearchIndexer creates a new no-op search indexer for testing.
func NewNoopSearchIndexer() SearchIndexer {
	return NoopSearchIndexer{}
}
