package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanixapp/scanix-server/internal/domain"
)

// setupTestIndex creates an on-disk search index for testing.
func setupTestIndex(t *testing.T) *Index {
	t.Helper()

	index, err := Open(Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func seed(t *testing.T, index *Index) {
	t.Helper()
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	docs := []*SearchDocument{
		{ID: "scan-1", Name: "Mighty Receipts", PageCount: 3, CreatedAt: base.UnixMilli()},
		{ID: "scan-2", Name: "Paper Trail", PageCount: 1, CreatedAt: base.Add(time.Hour).UnixMilli()},
		{ID: "scan-3", Name: "Golden Receipts", PageCount: 8, CreatedAt: base.Add(2 * time.Hour).UnixMilli()},
		{ID: "scan-4", Name: "Scan-demonium", PageCount: 2, CreatedAt: base.Add(3 * time.Hour).UnixMilli()},
	}
	require.NoError(t, index.IndexDocuments(docs))
}

func hitIDs(res *SearchResult) []string {
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids
}

func TestOpen_EmptyIndexNeedsRebuild(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, index.NeedsRebuild())

	seed(t, index)
	assert.False(t, index.NeedsRebuild())
}

func TestOpen_ReopensExisting(t *testing.T) {
	dir := t.TempDir()
	index, err := Open(Options{DataPath: dir})
	require.NoError(t, err)
	seed(t, index)
	require.NoError(t, index.Close())

	reopened, err := Open(Options{DataPath: dir})
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck // Test cleanup

	assert.False(t, reopened.NeedsRebuild())
	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestOpen_MappingVersionChangeRecreates(t *testing.T) {
	dir := t.TempDir()
	index, err := Open(Options{DataPath: dir})
	require.NoError(t, err)
	seed(t, index)
	require.NoError(t, index.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, versionFileName), []byte("0"), 0o644))

	reopened, err := Open(Options{DataPath: dir})
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck // Test cleanup

	assert.True(t, reopened.NeedsRebuild())
	count, err := reopened.DocumentCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSearch_MatchesStemmedName(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{Query: "receipt", Limit: 10})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"scan-1", "scan-3"}, hitIDs(res))
}

func TestSearch_Prefix(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{Query: "pap", Limit: 10})
	require.NoError(t, err)

	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "scan-2", res.Hits[0].ID)
	assert.Equal(t, "Paper Trail", res.Hits[0].Name)
	assert.Equal(t, 1, res.Hits[0].PageCount)
}

func TestSearch_Fuzzy(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{Query: "goldan", Limit: 10})
	require.NoError(t, err)

	assert.Contains(t, hitIDs(res), "scan-3")
}

func TestSearch_PageRange(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{MinPages: 2, MaxPages: 3, Limit: 10})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"scan-1", "scan-4"}, hitIDs(res))
}

func TestSearch_RecentOrder(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{SortBy: SortRecent, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, uint64(4), res.Total)
	assert.Equal(t, []string{"scan-4", "scan-3"}, hitIDs(res))
}

func TestIndex_DeleteDocument(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	require.NoError(t, index.DeleteDocument("scan-1"))
	require.NoError(t, index.DeleteDocument("scan-missing"))

	res, err := index.Search(context.Background(), SearchParams{Query: "receipts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"scan-3"}, hitIDs(res))
}

func TestIndex_IndexDocumentReplaces(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	require.NoError(t, index.IndexDocument(&SearchDocument{ID: "scan-2", Name: "Tax Forms", PageCount: 1}))

	res, err := index.Search(context.Background(), SearchParams{Query: "trail"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestIndex_Reset(t *testing.T) {
	for _, inMemory := range []bool{false, true} {
		index, err := Open(Options{DataPath: t.TempDir(), InMemory: inMemory})
		require.NoError(t, err)
		seed(t, index)

		require.NoError(t, index.Reset())

		count, err := index.DocumentCount()
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.True(t, index.NeedsRebuild())
		require.NoError(t, index.Close())
	}
}

func TestScanToSearchDocument(t *testing.T) {
	created := time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC)
	scan := &domain.Scan{ID: "scan-9", Name: "Doc Block", CreatedAt: created}
	scan.AppendPages(&domain.Page{ID: "p1"}, &domain.Page{ID: "p2"})

	doc := ScanToSearchDocument(scan)

	assert.Equal(t, "scan-9", doc.ID)
	assert.Equal(t, "Doc Block", doc.Name)
	assert.Equal(t, 2, doc.PageCount)
	assert.Equal(t, created.UnixMilli(), doc.CreatedAt)
}
