// Package service holds the business logic of the Scanix server.
package service

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/scanixapp/scanix-server/internal/domain"
	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/id"
	"github.com/scanixapp/scanix-server/internal/media/images"
	"github.com/scanixapp/scanix-server/internal/sse"
	"github.com/scanixapp/scanix-server/internal/store"
)

// RecentLimit is the number of scans shown in the "recent scans" view.
const RecentLimit = 5

// ImageNormalizer turns a captured blob into a stored JPEG page.
type ImageNormalizer interface {
	Normalize(data []byte) (*images.Normalized, error)
}

// NameGenerator names new scans.
type NameGenerator interface {
	Generate() string
}

// ThumbnailCache stores rendered thumbnails. Implemented by *images.Storage.
type ThumbnailCache interface {
	GetOrCreate(key string, render func() ([]byte, error)) ([]byte, error)
	DeletePrefix(prefix string) error
}

// ListOptions filters and limits List.
type ListOptions struct {
	Query string // case-insensitive substring of the name; empty matches all
	Limit int    // 0 = no limit
}

// ScanService owns every scan and its ordered pages. It keeps the dense
// order invariant across append, delete, and move, removes scans that lose
// their last page, and writes each mutation through to the repository.
//
// A single writer lock serializes mutations, including their persistence
// calls, so operations apply in call order. Reads return copies.
type ScanService struct {
	repo       store.Repository
	normalizer ImageNormalizer
	names      NameGenerator
	emitter    store.EventEmitter
	indexer    store.SearchIndexer
	thumbs     ThumbnailCache
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.RWMutex
	scans map[string]*domain.Scan
}

// ScanOption configures a ScanService.
type ScanOption func(*ScanService)

// WithEventEmitter sets the observer notified after mutations.
func WithEventEmitter(e store.EventEmitter) ScanOption {
	return func(s *ScanService) { s.emitter = e }
}

// WithSearchIndexer sets the index kept in sync with scan names.
func WithSearchIndexer(i store.SearchIndexer) ScanOption {
	return func(s *ScanService) { s.indexer = i }
}

// WithThumbnailCache sets where rendered thumbnails are cached.
func WithThumbnailCache(c ThumbnailCache) ScanOption {
	return func(s *ScanService) { s.thumbs = c }
}

// WithClock sets the clock used for creation timestamps.
func WithClock(now func() time.Time) ScanOption {
	return func(s *ScanService) { s.now = now }
}

// NewScanService creates a scan service. Call Load before serving requests.
func NewScanService(repo store.Repository, normalizer ImageNormalizer, names NameGenerator, logger *slog.Logger, opts ...ScanOption) *ScanService {
	s := &ScanService{
		repo:       repo,
		normalizer: normalizer,
		names:      names,
		emitter:    store.NewNoopEmitter(),
		indexer:    store.NewNoopSearchIndexer(),
		logger:     logger,
		now:        time.Now,
		scans:      make(map[string]*domain.Scan),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces in-memory state with the repository contents. Scans found
// empty are deleted; scans whose order keys are not dense are reindexed and
// saved back. Returns the number of scans loaded.
func (s *ScanService) Load(ctx context.Context) (int, error) {
	scans, err := s.repo.LoadScans(ctx)
	if err != nil {
		return 0, fmt.Errorf("load scans: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scans = make(map[string]*domain.Scan, len(scans))
	for _, scan := range scans {
		if scan.IsEmpty() {
			s.logger.Warn("removing empty scan found at startup", "scan_id", scan.ID)
			if err := s.repo.DeleteScan(ctx, scan.ID); err != nil {
				s.logger.Error("failed to remove empty scan", "scan_id", scan.ID, "error", err)
			}
			continue
		}

		if err := scan.ValidateOrder(); err != nil {
			s.logger.Warn("repairing page order", "scan_id", scan.ID, "error", err)
			scan.Reindex()
			if err := s.repo.SaveScan(ctx, scan); err != nil {
				s.logger.Error("failed to save repaired scan", "scan_id", scan.ID, "error", err)
			}
		}

		scan.SortPages()
		s.scans[scan.ID] = scan
	}

	s.logger.Info("scans loaded", "count", len(s.scans))
	return len(s.scans), nil
}

// Append adds one page per decodable blob, in input order, after the
// scan's current last page. An empty scanID creates a new, generated-name
// scan, unless no page survives decoding: an empty capture creates nothing.
// Appending nothing to an existing scan leaves its pages unchanged and
// saves it again.
func (s *ScanService) Append(ctx context.Context, scanID string, blobs [][]byte) Outcome {
	// Decoding is the slow part; keep it outside the lock.
	pages, dropped := s.buildPages(blobs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if scanID == "" {
		return s.createLocked(ctx, pages, dropped)
	}

	scan, ok := s.scans[scanID]
	if !ok {
		s.logger.Debug("append to unknown scan", "scan_id", scanID)
		return Outcome{NotFound: true, Dropped: dropped}
	}

	scan.AppendPages(pages...)
	out := Outcome{Changed: len(pages) > 0, Dropped: dropped}
	out.PersistErr = s.persistLocked(ctx, scan)
	out.Scan = snapshot(scan)

	if out.Changed {
		s.emitter.Emit(sse.NewScanUpdatedEvent(out.Scan))
		s.logger.Info("pages appended",
			"scan_id", scan.ID,
			"added", len(pages),
			"dropped", dropped,
			"page_count", len(scan.Pages),
		)
	}
	return out
}

func (s *ScanService) createLocked(ctx context.Context, pages []*domain.Page, dropped int) Outcome {
	if len(pages) == 0 {
		s.logger.Info("capture produced no pages, no scan created", "dropped", dropped)
		return Outcome{Dropped: dropped}
	}

	now := s.now()
	scan := &domain.Scan{
		// crypto/rand does not fail on supported platforms.
		ID:        id.MustGenerate(id.PrefixScan),
		Name:      s.names.Generate(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	scan.AppendPages(pages...)
	s.scans[scan.ID] = scan

	out := Outcome{Changed: true, Created: true, Dropped: dropped}
	out.PersistErr = s.persistLocked(ctx, scan)
	out.Scan = snapshot(scan)

	s.emitter.Emit(sse.NewScanCreatedEvent(out.Scan))
	s.logger.Info("scan created",
		"scan_id", scan.ID,
		"name", scan.Name,
		"pages", len(pages),
		"dropped", dropped,
	)
	return out
}

// DeletePage removes a page and reindexes the rest 0..N-1 in their prior
// order. A scan left without pages is deleted.
func (s *ScanService) DeletePage(ctx context.Context, scanID, pageID string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	scan, ok := s.scans[scanID]
	if !ok || !scan.RemovePage(pageID) {
		return Outcome{NotFound: true}
	}

	if removed, err := s.cascadeIfEmptyLocked(ctx, scan); removed {
		return Outcome{Changed: true, Removed: true, PersistErr: err}
	}

	out := Outcome{Changed: true}
	out.PersistErr = s.persistLocked(ctx, scan)
	out.Scan = snapshot(scan)
	s.emitter.Emit(sse.NewScanUpdatedEvent(out.Scan))
	s.logger.Info("page deleted", "scan_id", scanID, "page_id", pageID, "page_count", len(scan.Pages))
	return out
}

// cascadeIfEmptyLocked applies the empty-scan rule: a scan with no pages is
// invalid and is deleted. Reports whether the scan was removed.
func (s *ScanService) cascadeIfEmptyLocked(ctx context.Context, scan *domain.Scan) (bool, error) {
	if !scan.IsEmpty() {
		return false, nil
	}
	err := s.removeLocked(ctx, scan.ID, sse.DeleteReasonEmpty)
	s.logger.Info("scan removed after its last page was deleted", "scan_id", scan.ID)
	return true, err
}

// MovePage swaps a page's order key with its neighbour one step in
// direction (domain.MoveBackward or domain.MoveForward). Moving past either
// end, or by anything other than one step, changes and saves nothing.
func (s *ScanService) MovePage(ctx context.Context, scanID, pageID string, direction int) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	scan, ok := s.scans[scanID]
	if !ok || scan.FindPage(pageID) == nil {
		return Outcome{NotFound: true}
	}

	if !scan.MovePage(pageID, direction) {
		return Outcome{Scan: snapshot(scan)}
	}

	out := Outcome{Changed: true}
	out.PersistErr = s.persistLocked(ctx, scan)
	out.Scan = snapshot(scan)
	s.emitter.Emit(sse.NewScanUpdatedEvent(out.Scan))
	s.logger.Debug("page moved", "scan_id", scanID, "page_id", pageID, "direction", direction)
	return out
}

// Rename overwrites the display name. Any string is accepted, including
// the empty string and names used by other scans.
func (s *ScanService) Rename(ctx context.Context, scanID, name string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	scan, ok := s.scans[scanID]
	if !ok {
		return Outcome{NotFound: true}
	}

	out := Outcome{Changed: scan.Name != name}
	scan.Rename(name)
	out.PersistErr = s.persistLocked(ctx, scan)
	out.Scan = snapshot(scan)
	s.emitter.Emit(sse.NewScanUpdatedEvent(out.Scan))
	s.logger.Info("scan renamed", "scan_id", scanID, "name", name)
	return out
}

// DeleteScan removes a scan and all its pages.
func (s *ScanService) DeleteScan(ctx context.Context, scanID string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scans[scanID]; !ok {
		return Outcome{NotFound: true}
	}

	err := s.removeLocked(ctx, scanID, sse.DeleteReasonExplicit)
	s.logger.Info("scan deleted", "scan_id", scanID)
	return Outcome{Changed: true, Removed: true, PersistErr: err}
}

// Get returns a copy of a scan with pages in order.
func (s *ScanService) Get(ctx context.Context, scanID string) (*domain.Scan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scan, ok := s.scans[scanID]
	if !ok {
		return nil, domainerrors.NotFoundf("scan %s not found", scanID)
	}
	return snapshot(scan), nil
}

// List returns copies of scans, newest first.
func (s *ScanService) List(ctx context.Context, opts ListOptions) []*domain.Scan {
	if ctx.Err() != nil {
		return nil
	}

	s.mu.RLock()
	out := make([]*domain.Scan, 0, len(s.scans))
	for _, scan := range s.scans {
		if !scan.MatchesName(opts.Query) {
			continue
		}
		out = append(out, snapshot(scan))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.Scan) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// Recent returns the newest RecentLimit scans.
func (s *ScanService) Recent(ctx context.Context) []*domain.Scan {
	return s.List(ctx, ListOptions{Limit: RecentLimit})
}

// Page returns a copy of one page.
func (s *ScanService) Page(ctx context.Context, scanID, pageID string) (*domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scan, ok := s.scans[scanID]
	if !ok {
		return nil, domainerrors.NotFoundf("scan %s not found", scanID)
	}
	p := scan.FindPage(pageID)
	if p == nil {
		return nil, domainerrors.NotFoundf("page %s not found in scan %s", pageID, scanID)
	}
	c := *p
	return &c, nil
}

// PageImage returns the JPEG of one page for saving to a photo library.
// A page without a payload is reported as not found; one whose payload no
// longer decodes is unprocessable.
func (s *ScanService) PageImage(ctx context.Context, scanID, pageID string) ([]byte, error) {
	p, err := s.Page(ctx, scanID, pageID)
	if err != nil {
		return nil, err
	}
	if !p.HasImage() {
		return nil, domainerrors.NotFoundf("page %s has no image", pageID)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(p.Image)); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeUnprocessable, "page %s image cannot be decoded", pageID)
	}
	return p.Image, nil
}

// Thumbnail returns a small JPEG of the scan's first page and its hash.
func (s *ScanService) Thumbnail(ctx context.Context, scanID string) ([]byte, string, error) {
	scan, err := s.Get(ctx, scanID)
	if err != nil {
		return nil, "", err
	}

	first := scan.FirstPage()
	if first == nil || !first.HasImage() {
		return nil, "", domainerrors.NotFoundf("scan %s has no thumbnail", scanID)
	}

	render := func() ([]byte, error) { return images.Thumbnail(first.Image, images.ThumbnailSize) }

	var data []byte
	if s.thumbs != nil {
		data, err = s.thumbs.GetOrCreate(images.Key(scanID, first.ID), render)
	} else {
		data, err = render()
	}
	if err != nil {
		return nil, "", domainerrors.Wrapf(err, domainerrors.CodeUnprocessable, "render thumbnail for %s", scanID)
	}
	return data, images.HashBytes(data), nil
}

// Stats returns the number of scans and pages held.
func (s *ScanService) Stats() (scans, pages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, scan := range s.scans {
		pages += len(scan.Pages)
	}
	return len(s.scans), pages
}

// buildPages normalizes blobs into pages, counting the ones that do not decode.
func (s *ScanService) buildPages(blobs [][]byte) ([]*domain.Page, int) {
	now := s.now()
	pages := make([]*domain.Page, 0, len(blobs))
	dropped := 0

	for i, blob := range blobs {
		n, err := s.normalizer.Normalize(blob)
		if err != nil {
			dropped++
			s.logger.Warn("dropping undecodable image", "index", i, "size", len(blob), "error", err)
			continue
		}
		pages = append(pages, &domain.Page{
			ID:        id.MustGenerate(id.PrefixPage),
			Image:     n.JPEG,
			Width:     n.Width,
			Height:    n.Height,
			BlurHash:  n.BlurHash,
			CreatedAt: now,
		})
	}
	return pages, dropped
}

// persistLocked saves the scan and refreshes its search entry.
// Persistence errors are logged and returned; the in-memory scan is kept.
func (s *ScanService) persistLocked(ctx context.Context, scan *domain.Scan) error {
	if err := s.repo.SaveScan(ctx, scan); err != nil {
		s.logger.Error("failed to persist scan", "scan_id", scan.ID, "error", err)
		return err
	}
	if err := s.indexer.IndexScan(ctx, scan); err != nil {
		s.logger.Warn("failed to index scan", "scan_id", scan.ID, "error", err)
	}
	return nil
}

// removeLocked drops a scan from memory, the repository, the search index,
// and the thumbnail cache, then notifies observers.
func (s *ScanService) removeLocked(ctx context.Context, scanID, reason string) error {
	delete(s.scans, scanID)

	err := s.repo.DeleteScan(ctx, scanID)
	if err != nil {
		s.logger.Error("failed to delete scan from repository", "scan_id", scanID, "error", err)
	}
	if ierr := s.indexer.DeleteScan(ctx, scanID); ierr != nil {
		s.logger.Warn("failed to remove scan from search index", "scan_id", scanID, "error", ierr)
	}
	if s.thumbs != nil {
		if terr := s.thumbs.DeletePrefix(images.Key(scanID, "")); terr != nil {
			s.logger.Warn("failed to clear thumbnails", "scan_id", scanID, "error", terr)
		}
	}

	s.emitter.Emit(sse.NewScanDeletedEvent(scanID, reason))
	return err
}

// snapshot returns a copy with pages sorted by order key.
func snapshot(scan *domain.Scan) *domain.Scan {
	c := scan.Clone()
	c.SortPages()
	return c
}
