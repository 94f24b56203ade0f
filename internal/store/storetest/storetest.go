// Package storetest provides a conformance suite that every
// store.Repository implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanixapp/scanix-server/internal/domain"
	"github.com/scanixapp/scanix-server/internal/store"
)

// NewScan builds a scan with n pages whose images are distinct byte strings.
func NewScan(id string, n int) *domain.Scan {
	now := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)
	scan := &domain.Scan{ID: id, Name: "Paper Trail", CreatedAt: now, UpdatedAt: now}
	for i := range n {
		scan.Pages = append(scan.Pages, &domain.Page{
			ID:        fmt.Sprintf("%s-page-%d", id, i),
			ScanID:    id,
			Order:     i,
			CreatedAt: now,
			Width:     10 + i,
			Height:    20 + i,
			BlurHash:  "LEHV6nWB2yk8pyo0adR*.7kCMdnj",
			Image:     []byte(fmt.Sprintf("jpeg-%s-%d", id, i)),
		})
	}
	return scan
}

// Run exercises a Repository created fresh for each subtest by newRepo.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		repo := newRepo(t)
		want := NewScan("scan-a", 3)

		require.NoError(t, repo.SaveScan(ctx, want))

		got, err := repo.GetScan(ctx, "scan-a")
		require.NoError(t, err)
		assert.Equal(t, want.Name, got.Name)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		require.Len(t, got.Pages, 3)
		for i, p := range got.Pages {
			assert.Equal(t, want.Pages[i].ID, p.ID)
			assert.Equal(t, i, p.Order)
			assert.Equal(t, "scan-a", p.ScanID)
			assert.Equal(t, want.Pages[i].Image, p.Image)
			assert.Equal(t, want.Pages[i].Width, p.Width)
			assert.Equal(t, want.Pages[i].BlurHash, p.BlurHash)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetScan(ctx, "scan-missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save replaces page set", func(t *testing.T) {
		repo := newRepo(t)
		scan := NewScan("scan-a", 3)
		require.NoError(t, repo.SaveScan(ctx, scan))

		scan.RemovePage(scan.Pages[1].ID)
		scan.Rename("Renamed")
		require.NoError(t, repo.SaveScan(ctx, scan))

		got, err := repo.GetScan(ctx, "scan-a")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		require.Len(t, got.Pages, 2)
		assert.Equal(t, "scan-a-page-0", got.Pages[0].ID)
		assert.Equal(t, "scan-a-page-2", got.Pages[1].ID)
		assert.NoError(t, got.ValidateOrder())
	})

	t.Run("save persists swapped order", func(t *testing.T) {
		repo := newRepo(t)
		scan := NewScan("scan-a", 3)
		require.NoError(t, repo.SaveScan(ctx, scan))

		require.True(t, scan.MovePage("scan-a-page-2", domain.MoveBackward))
		require.NoError(t, repo.SaveScan(ctx, scan))

		got, err := repo.GetScan(ctx, "scan-a")
		require.NoError(t, err)
		var ids []string
		for _, p := range got.SortedPages() {
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []string{"scan-a-page-0", "scan-a-page-2", "scan-a-page-1"}, ids)
	})

	t.Run("nil image survives", func(t *testing.T) {
		repo := newRepo(t)
		scan := NewScan("scan-a", 2)
		scan.Pages[0].Image = nil
		require.NoError(t, repo.SaveScan(ctx, scan))

		got, err := repo.GetScan(ctx, "scan-a")
		require.NoError(t, err)
		assert.False(t, got.Pages[0].HasImage())
		assert.True(t, got.Pages[1].HasImage())
	})

	t.Run("load scans", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.SaveScan(ctx, NewScan("scan-a", 2)))
		require.NoError(t, repo.SaveScan(ctx, NewScan("scan-b", 1)))

		scans, err := repo.LoadScans(ctx)
		require.NoError(t, err)
		require.Len(t, scans, 2)

		counts := map[string]int{}
		for _, s := range scans {
			counts[s.ID] = len(s.Pages)
			for _, p := range s.Pages {
				assert.Equal(t, s.ID, p.ScanID)
			}
		}
		assert.Equal(t, map[string]int{"scan-a": 2, "scan-b": 1}, counts)
	})

	t.Run("delete cascades pages", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.SaveScan(ctx, NewScan("scan-a", 2)))
		require.NoError(t, repo.SaveScan(ctx, NewScan("scan-b", 1)))

		require.NoError(t, repo.DeleteScan(ctx, "scan-a"))

		_, err := repo.GetScan(ctx, "scan-a")
		assert.ErrorIs(t, err, store.ErrNotFound)

		scans, err := repo.LoadScans(ctx)
		require.NoError(t, err)
		require.Len(t, scans, 1)
		assert.Equal(t, "scan-b", scans[0].ID)
		assert.Len(t, scans[0].Pages, 1)
	})

	t.Run("delete missing is not an error", func(t *testing.T) {
		repo := newRepo(t)
		assert.NoError(t, repo.DeleteScan(ctx, "scan-missing"))
	})

	t.Run("save requires id", func(t *testing.T) {
		repo := newRepo(t)
		assert.ErrorIs(t, repo.SaveScan(ctx, &domain.Scan{}), store.ErrInvalidInput)
	})

	t.Run("cancelled context", func(t *testing.T) {
		repo := newRepo(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		assert.Error(t, repo.SaveScan(cctx, NewScan("scan-a", 1)))
	})
}
