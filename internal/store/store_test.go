package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/store"
	"github.com/scanixapp/scanix-server/internal/store/storetest"
)

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		s, err := store.New(filepath.Join(t.TempDir(), "badger"), logger.Discard().Logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStore_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		s, err := store.NewInMemory(nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := t.Context()

	s, err := store.New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveScan(ctx, storetest.NewScan("scan-a", 2)))
	require.NoError(t, s.Close())

	s, err = store.New(dir, nil)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck // Test cleanup

	got, err := s.GetScan(ctx, "scan-a")
	require.NoError(t, err)
	require.Len(t, got.Pages, 2)
}
