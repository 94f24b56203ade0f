package images

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage caches rendered images on disk, keyed by an opaque cache key.
// Thread-safe for concurrent operations.
type Storage struct {
	basePath string
	mu       sync.RWMutex // Protects file operations
}

// NewStorage creates a thumbnail cache in {basePath}/thumbnails/.
func NewStorage(basePath string) (*Storage, error) {
	return NewStorageWithSubdir(basePath, "thumbnails")
}

// NewStorageWithSubdir creates a cache in {basePath}/{subdir}/.
func NewStorageWithSubdir(basePath, subdir string) (*Storage, error) {
	if basePath == "" {
		return nil, errors.New("base path cannot be empty")
	}
	if subdir == "" {
		return nil, errors.New("subdirectory cannot be empty")
	}

	storagePath := filepath.Join(basePath, subdir)
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", subdir, err)
	}

	return &Storage{basePath: storagePath}, nil
}

// Key builds a cache key for a page. Page IDs are never reused, so a key
// goes stale only when its scan is deleted.
func Key(scanID, pageID string) string {
	return scanID + "_" + pageID
}

// Save stores image data under key.
func (s *Storage) Save(key string, data []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if len(data) == 0 {
		return errors.New("image data cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.Path(key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}

// Get returns cached data. Missing entries wrap os.ErrNotExist.
func (s *Storage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("image not found for %s: %w", key, err)
		}
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// GetOrCreate returns the cached entry, rendering and saving it on a miss.
func (s *Storage) GetOrCreate(key string, render func() ([]byte, error)) ([]byte, error) {
	if data, err := s.Get(key); err == nil {
		return data, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := render()
	if err != nil {
		return nil, err
	}
	if err := s.Save(key, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Exists reports whether key is cached.
func (s *Storage) Exists(key string) bool {
	if key == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.Path(key))
	return err == nil
}

// Delete removes an entry. Missing entries are not an error.
func (s *Storage) Delete(key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete image file: %w", err)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix, e.g. all
// thumbnails of a deleted scan.
func (s *Storage) DeletePrefix(prefix string) error {
	if prefix == "" {
		return errors.New("prefix cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.basePath, globEscape(prefix)+"*.jpg"))
	if err != nil {
		return fmt.Errorf("glob cache entries: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hash returns the hex SHA-256 of an entry, used as an ETag.
func (s *Storage) Hash(key string) (string, error) {
	data, err := s.Get(key)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// Path returns the filesystem path for key.
func (s *Storage) Path(key string) string {
	return filepath.Join(s.basePath, key+".jpg")
}

func globEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
