package domain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPages(n int) []*Page {
	pages := make([]*Page, n)
	for i := range pages {
		pages[i] = &Page{ID: fmt.Sprintf("page-%d", i), Image: []byte{byte(i)}}
	}
	return pages
}

func orderOf(s *Scan) map[string]int {
	out := make(map[string]int, len(s.Pages))
	for _, p := range s.Pages {
		out[p.ID] = p.Order
	}
	return out
}

func idsInOrder(s *Scan) []string {
	var ids []string
	for _, p := range s.SortedPages() {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestScan_AppendPages_ContinuesOrder(t *testing.T) {
	scan := &Scan{ID: "scan-1"}

	scan.AppendPages(newPages(3)...)

	require.Len(t, scan.Pages, 3)
	assert.Equal(t, []string{"page-0", "page-1", "page-2"}, idsInOrder(scan))
	for i, p := range scan.Pages {
		assert.Equal(t, i, p.Order)
		assert.Equal(t, "scan-1", p.ScanID)
	}

	scan.AppendPages(&Page{ID: "page-x"}, &Page{ID: "page-y"})
	assert.Equal(t, 3, scan.FindPage("page-x").Order)
	assert.Equal(t, 4, scan.FindPage("page-y").Order)
	assert.NoError(t, scan.ValidateOrder())
}

func TestScan_AppendPages_EmptyLeavesScanUntouched(t *testing.T) {
	scan := &Scan{ID: "scan-1"}
	scan.AppendPages(newPages(2)...)
	before := scan.UpdatedAt
	orders := orderOf(scan)

	scan.AppendPages()

	assert.Equal(t, orders, orderOf(scan))
	assert.Equal(t, before, scan.UpdatedAt)
}

func TestScan_RemovePage_Reindexes(t *testing.T) {
	scan := &Scan{ID: "scan-1"}
	scan.AppendPages(newPages(4)...)

	removed := scan.RemovePage("page-1")

	assert.True(t, removed)
	assert.Equal(t, []string{"page-0", "page-2", "page-3"}, idsInOrder(scan))
	assert.Equal(t, map[string]int{"page-0": 0, "page-2": 1, "page-3": 2}, orderOf(scan))
}

func TestScan_RemovePage_KeepsPriorRelativeOrder(t *testing.T) {
	// Slice position disagrees with order keys; the keys win.
	scan := &Scan{ID: "scan-1", Pages: []*Page{
		{ID: "c", Order: 2},
		{ID: "a", Order: 0},
		{ID: "d", Order: 3},
		{ID: "b", Order: 1},
	}}

	require.True(t, scan.RemovePage("a"))

	assert.Equal(t, map[string]int{"b": 0, "c": 1, "d": 2}, orderOf(scan))
}

func TestScan_RemovePage_Unknown(t *testing.T) {
	scan := &Scan{ID: "scan-1"}
	scan.AppendPages(newPages(2)...)
	orders := orderOf(scan)

	assert.False(t, scan.RemovePage("missing"))
	assert.Equal(t, orders, orderOf(scan))
}

func TestScan_RemoveLastPage_IsEmpty(t *testing.T) {
	scan := &Scan{ID: "scan-1"}
	scan.AppendPages(newPages(1)...)
	assert.False(t, scan.IsEmpty())

	require.True(t, scan.RemovePage("page-0"))
	assert.True(t, scan.IsEmpty())
}

func TestScan_MovePage_SwapsNeighbours(t *testing.T) {
	scan := &Scan{ID: "scan-1"}
	scan.AppendPages(newPages(4)...)

	moved := scan.MovePage("page-2", MoveBackward)

	require.True(t, moved)
	assert.Equal(t, map[string]int{"page-0": 0, "page-1": 2, "page-2": 1, "page-3": 3}, orderOf(scan))

	require.True(t, scan.MovePage("page-2", MoveForward))
	assert.Equal(t, map[string]int{"page-0": 0, "page-1": 1, "page-2": 2, "page-3": 3}, orderOf(scan))
}

func TestScan_MovePage_SwapPreservesNonDenseKeys(t *testing.T) {
	// A swap exchanges exact key values rather than renumbering.
	scan := &Scan{ID: "scan-1", Pages: []*Page{
		{ID: "a", Order: 0},
		{ID: "b", Order: 5},
		{ID: "c", Order: 9},
	}}

	require.True(t, scan.MovePage("c", MoveBackward))

	assert.Equal(t, map[string]int{"a": 0, "b": 9, "c": 5}, orderOf(scan))
}

func TestScan_MovePage_NoOps(t *testing.T) {
	tests := []struct {
		name      string
		pageID    string
		direction int
	}{
		{"first backward", "page-0", MoveBackward},
		{"last forward", "page-2", MoveForward},
		{"unknown page", "missing", MoveForward},
		{"zero direction", "page-1", 0},
		{"two steps", "page-0", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan := &Scan{ID: "scan-1"}
			scan.AppendPages(newPages(3)...)
			scan.UpdatedAt = time.Time{}
			orders := orderOf(scan)

			assert.False(t, scan.MovePage(tt.pageID, tt.direction))
			assert.Equal(t, orders, orderOf(scan))
			assert.True(t, scan.UpdatedAt.IsZero())
		})
	}
}

func TestScan_ValidateOrder(t *testing.T) {
	tests := []struct {
		name   string
		orders []int
		valid  bool
	}{
		{"empty", nil, true},
		{"dense", []int{2, 0, 1}, true},
		{"gap", []int{0, 2}, false},
		{"duplicate", []int{0, 0}, false},
		{"negative", []int{-1, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan := &Scan{}
			for i, o := range tt.orders {
				scan.Pages = append(scan.Pages, &Page{ID: fmt.Sprint(i), Order: o})
			}
			err := scan.ValidateOrder()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrOrderNotDense)
			}
		})
	}
}

func TestScan_RandomOperationsKeepOrderDense(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	scan := &Scan{ID: "scan-1"}
	next := 0

	for step := range 500 {
		switch op := rng.IntN(3); {
		case op == 0 || scan.IsEmpty():
			n := rng.IntN(3)
			pages := make([]*Page, n)
			for i := range pages {
				pages[i] = &Page{ID: fmt.Sprintf("p%d", next)}
				next++
			}
			scan.AppendPages(pages...)
		case op == 1:
			victim := scan.Pages[rng.IntN(len(scan.Pages))]
			scan.RemovePage(victim.ID)
		default:
			p := scan.Pages[rng.IntN(len(scan.Pages))]
			dir := MoveForward
			if rng.IntN(2) == 0 {
				dir = MoveBackward
			}
			scan.MovePage(p.ID, dir)
		}
		require.NoError(t, scan.ValidateOrder(), "step %d", step)
	}
}

func TestScan_Reindex(t *testing.T) {
	scan := &Scan{Pages: []*Page{
		{ID: "b", Order: 7},
		{ID: "a", Order: 3},
		{ID: "c", Order: 12},
	}}

	scan.Reindex()

	assert.Equal(t, []string{"a", "b", "c"}, idsInOrder(scan))
	assert.NoError(t, scan.ValidateOrder())
}

func TestScan_Reindex_ExtremeKeys(t *testing.T) {
	scan := &Scan{Pages: []*Page{
		{ID: "high", Order: math.MaxInt},
		{ID: "low", Order: math.MinInt},
		{ID: "mid", Order: 0},
	}}

	scan.Reindex()

	assert.Equal(t, []string{"low", "mid", "high"}, idsInOrder(scan))
	assert.NoError(t, scan.ValidateOrder())
}

func TestScan_FirstPage(t *testing.T) {
	assert.Nil(t, (&Scan{}).FirstPage())

	scan := &Scan{Pages: []*Page{{ID: "b", Order: 1}, {ID: "a", Order: 0}}}
	assert.Equal(t, "a", scan.FirstPage().ID)
}

func TestScan_Rename_AllowsEmpty(t *testing.T) {
	scan := &Scan{Name: "Paper Trail"}

	scan.Rename("")

	assert.Equal(t, "", scan.Name)
	assert.False(t, scan.UpdatedAt.IsZero())
}

func TestScan_MatchesName(t *testing.T) {
	scan := &Scan{Name: "Mighty Receipts"}

	assert.True(t, scan.MatchesName(""))
	assert.True(t, scan.MatchesName("receipts"))
	assert.True(t, scan.MatchesName("MIGHTY"))
	assert.False(t, scan.MatchesName("invoice"))

	assert.True(t, (&Scan{Name: "Straße"}).MatchesName("STRASSE"))
}

func TestScan_Clone_IsDeep(t *testing.T) {
	scan := &Scan{ID: "scan-1"}
	scan.AppendPages(newPages(2)...)

	c := scan.Clone()
	c.Pages[0].Order = 99
	c.Name = "changed"
	c.Pages = c.Pages[:1]

	assert.Equal(t, 0, scan.Pages[0].Order)
	assert.Equal(t, "", scan.Name)
	assert.Len(t, scan.Pages, 2)
}

func TestPage_HasImage(t *testing.T) {
	assert.True(t, (&Page{Image: []byte{1}}).HasImage())
	assert.False(t, (&Page{}).HasImage())
	assert.False(t, (&Page{Image: []byte{}}).HasImage())
}
