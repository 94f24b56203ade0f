package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/scanixapp/scanix-server/internal/domain"
)

// valueThreshold moves page images into the value log so a transaction
// that rewrites a whole scan stays under Badger's batch size limit.
const valueThreshold = 64 << 10

// scanRecord is the persisted form of a scan without its pages.
type scanRecord struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
}

// pageRecord is the persisted form of a page, image included.
type pageRecord struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	Order     int       `json:"order"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	BlurHash  string    `json:"blur_hash,omitempty"`
	Image     []byte    `json:"image,omitempty"`
}

// Store is a Badger-backed Repository.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Repository = (*Store)(nil)

// New opens (or creates) a Badger database at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Sync every commit so a crash cannot lose an acknowledged save
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	opts.ValueThreshold = valueThreshold

	return open(opts, logger)
}

// NewInMemory opens a Badger database that lives only in memory.
func NewInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	opts.ValueThreshold = valueThreshold

	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", opts.Dir, "in_memory", opts.InMemory)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// LoadScans implements Repository.
func (s *Store) LoadScans(ctx context.Context) ([]*domain.Scan, error) {
	var scans []*domain.Scan
	byID := make(map[string]*domain.Scan)

	err := s.db.View(func(txn *badger.Txn) error {
		if err := iterate(ctx, txn, []byte(scanPrefix), func(val []byte) error {
			var rec scanRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode scan: %w", err)
			}
			scan := rec.toDomain()
			scans = append(scans, scan)
			byID[scan.ID] = scan
			return nil
		}); err != nil {
			return err
		}

		return iterate(ctx, txn, []byte(pagePrefix), func(val []byte) error {
			var rec pageRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode page: %w", err)
			}
			scan, ok := byID[rec.ScanID]
			if !ok {
				if s.logger != nil {
					s.logger.Warn("orphaned page record", "page_id", rec.ID, "scan_id", rec.ScanID)
				}
				return nil
			}
			scan.Pages = append(scan.Pages, rec.toDomain())
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}

	return scans, nil
}

// GetScan implements Repository.
func (s *Store) GetScan(ctx context.Context, id string) (*domain.Scan, error) {
	var scan *domain.Scan

	err := s.db.View(func(txn *badger.Txn) error {
		key := buildKey(scanPrefix, id)
		defer releaseKey(key)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound.WithCause(fmt.Errorf("scan %s", id))
		}
		if err != nil {
			return err
		}

		var rec scanRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("decode scan: %w", err)
		}
		scan = rec.toDomain()

		return iterate(ctx, txn, pagesOf(id), func(val []byte) error {
			var p pageRecord
			if err := json.Unmarshal(val, &p); err != nil {
				return fmt.Errorf("decode page: %w", err)
			}
			scan.Pages = append(scan.Pages, p.toDomain())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	scan.SortPages()
	return scan, nil
}

// SaveScan implements Repository. The scan record and its full page set are
// written in one transaction; pages no longer present are deleted.
func (s *Store) SaveScan(ctx context.Context, scan *domain.Scan) error {
	if scan == nil || scan.ID == "" {
		return ErrInvalidInput.WithCause(errors.New("scan id is required"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	scanData, err := json.Marshal(scanRecordFrom(scan))
	if err != nil {
		return fmt.Errorf("failed to marshal scan: %w", err)
	}

	pages := make(map[string][]byte, len(scan.Pages))
	for _, p := range scan.Pages {
		data, err := json.Marshal(pageRecordFrom(scan.ID, p))
		if err != nil {
			return fmt.Errorf("failed to marshal page %s: %w", p.ID, err)
		}
		pages[p.ID] = data
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(scanPrefix+scan.ID), scanData); err != nil {
			return err
		}

		stale, err := keysWithPrefix(txn, pagesOf(scan.ID))
		if err != nil {
			return err
		}
		for _, key := range stale {
			if _, keep := pages[string(bytes.TrimPrefix(key, pagesOf(scan.ID)))]; keep {
				continue
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for pageID, data := range pages {
			if err := txn.Set([]byte(pagePrefix+scan.ID+":"+pageID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save scan %s: %w", scan.ID, err)
	}
	return nil
}

// DeleteScan implements Repository.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		keys, err := keysWithPrefix(txn, pagesOf(id))
		if err != nil {
			return err
		}
		keys = append(keys, []byte(scanPrefix+id))
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	return nil
}

// iterate calls fn with each value under prefix.
func iterate(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// keysWithPrefix collects copies of all keys under prefix.
func keysWithPrefix(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func scanRecordFrom(s *domain.Scan) scanRecord {
	return scanRecord{
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ID:        s.ID,
		Name:      s.Name,
	}
}

func (r scanRecord) toDomain() *domain.Scan {
	return &domain.Scan{
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ID:        r.ID,
		Name:      r.Name,
	}
}

func pageRecordFrom(scanID string, p *domain.Page) pageRecord {
	return pageRecord{
		CreatedAt: p.CreatedAt,
		ID:        p.ID,
		ScanID:    scanID,
		Order:     p.Order,
		Width:     p.Width,
		Height:    p.Height,
		BlurHash:  p.BlurHash,
		Image:     p.Image,
	}
}

func (r pageRecord) toDomain() *domain.Page {
	return &domain.Page{
		CreatedAt: r.CreatedAt,
		ID:        r.ID,
		ScanID:    r.ScanID,
		Order:     r.Order,
		Width:     r.Width,
		Height:    r.Height,
		BlurHash:  r.BlurHash,
		Image:     r.Image,
	}
}
