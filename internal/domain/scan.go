package domain

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Move directions accepted by Scan.MovePage.
const (
	MoveBackward = -1
	MoveForward  = 1
)

// ErrOrderNotDense is returned by ValidateOrder when order keys have gaps or duplicates.
var ErrOrderNotDense = errors.New("page order keys are not a dense 0..N-1 permutation")

// Scan is a named, ordered group of captured pages.
// Display and export order is the Order key of each page, never slice position.
type Scan struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"` // Free-form, may be empty
	Pages     []*Page   `json:"pages"`
}

// Page is one captured image within a scan.
type Page struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	Order     int       `json:"order"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	BlurHash  string    `json:"blur_hash,omitempty"`

	// Image is the JPEG payload. Nil marks a corrupted page that cannot be loaded.
	Image []byte `json:"-"`
}

// HasImage reports whether the page carries a payload.
func (p *Page) HasImage() bool {
	return len(p.Image) > 0
}

// IsEmpty reports whether the scan has no pages.
// Empty scans are invalid and must not survive a mutation.
func (s *Scan) IsEmpty() bool {
	return len(s.Pages) == 0
}

// PageCount returns the number of pages.
func (s *Scan) PageCount() int {
	return len(s.Pages)
}

// SortPages orders the page slice by order key.
func (s *Scan) SortPages() {
	slices.SortStableFunc(s.Pages, func(a, b *Page) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

// SortedPages returns the pages in order-key order without touching the scan.
func (s *Scan) SortedPages() []*Page {
	out := slices.Clone(s.Pages)
	slices.SortStableFunc(out, func(a, b *Page) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return out
}

// FirstPage returns the page with the lowest order key, or nil.
func (s *Scan) FirstPage() *Page {
	var first *Page
	for _, p := range s.Pages {
		if first == nil || p.Order < first.Order {
			first = p
		}
	}
	return first
}

// FindPage returns the page with the given ID, or nil.
func (s *Scan) FindPage(pageID string) *Page {
	for _, p := range s.Pages {
		if p.ID == pageID {
			return p
		}
	}
	return nil
}

// AppendPages adds pages after the current last page, keeping input order.
// Order keys continue from the current page count.
func (s *Scan) AppendPages(pages ...*Page) {
	next := len(s.Pages)
	for i, p := range pages {
		p.ScanID = s.ID
		p.Order = next + i
		s.Pages = append(s.Pages, p)
	}
	if len(pages) > 0 {
		s.touch()
	}
}

// RemovePage deletes a page and reindexes the rest in their prior relative order.
// Returns false if no page has that ID.
func (s *Scan) RemovePage(pageID string) bool {
	idx := slices.IndexFunc(s.Pages, func(p *Page) bool { return p.ID == pageID })
	if idx < 0 {
		return false
	}
	s.Pages = slices.Delete(s.Pages, idx, idx+1)
	s.Reindex()
	s.touch()
	return true
}

// MovePage swaps the order keys of a page and its neighbour in direction
// (MoveBackward or MoveForward). Other pages keep their exact keys.
// Returns false when the page is missing, direction is invalid, or the
// target falls outside the scan.
func (s *Scan) MovePage(pageID string, direction int) bool {
	if direction != MoveBackward && direction != MoveForward {
		return false
	}

	sorted := s.SortedPages()
	pos := slices.IndexFunc(sorted, func(p *Page) bool { return p.ID == pageID })
	if pos < 0 {
		return false
	}

	target := pos + direction
	if target < 0 || target >= len(sorted) {
		return false
	}

	a, b := sorted[pos], sorted[target]
	a.Order, b.Order = b.Order, a.Order
	s.touch()
	return true
}

// Reindex assigns order keys 0..N-1 following the current key order.
func (s *Scan) Reindex() {
	s.SortPages()
	for i, p := range s.Pages {
		p.Order = i
	}
}

// ValidateOrder checks that order keys form a dense zero-based permutation.
func (s *Scan) ValidateOrder() error {
	seen := make([]bool, len(s.Pages))
	for _, p := range s.Pages {
		if p.Order < 0 || p.Order >= len(s.Pages) {
			return fmt.Errorf("%w: page %s has order %d of %d", ErrOrderNotDense, p.ID, p.Order, len(s.Pages))
		}
		if seen[p.Order] {
			return fmt.Errorf("%w: duplicate order %d", ErrOrderNotDense, p.Order)
		}
		seen[p.Order] = true
	}
	return nil
}

// Rename overwrites the display name. Empty names are allowed.
func (s *Scan) Rename(name string) {
	s.Name = name
	s.touch()
}

// MatchesName reports whether the name contains query, ignoring case.
// An empty query matches every scan.
func (s *Scan) MatchesName(query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(FoldName(s.Name), FoldName(query))
}

// Clone returns a deep copy of the scan. Image payloads are shared;
// they are never modified in place.
func (s *Scan) Clone() *Scan {
	c := *s
	c.Pages = make([]*Page, len(s.Pages))
	for i, p := range s.Pages {
		pc := *p
		c.Pages[i] = &pc
	}
	return &c
}

func (s *Scan) touch() {
	s.UpdatedAt = time.Now()
}
