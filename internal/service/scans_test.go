package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanixapp/scanix-server/internal/domain"
	domainerrors "github.com/scanixapp/scanix-server/internal/errors"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/media/images"
	"github.com/scanixapp/scanix-server/internal/sse"
	"github.com/scanixapp/scanix-server/internal/store"
)

// passthroughNormalizer accepts any blob not starting with "bad" and stores it as-is.
type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(data []byte) (*images.Normalized, error) {
	if len(data) == 0 || bytes.HasPrefix(data, []byte("bad")) {
		return nil, images.ErrUndecodable
	}
	return &images.Normalized{JPEG: data, Width: 1, Height: 1}, nil
}

type fixedName string

func (n fixedName) Generate() string { return string(n) }

// recordingRepo wraps a real repository, counting writes and injecting failures.
type recordingRepo struct {
	store.Repository

	mu        sync.Mutex
	saves     int
	deletes   int
	saveErr   error
	deleteErr error
}

func (r *recordingRepo) SaveScan(ctx context.Context, scan *domain.Scan) error {
	r.mu.Lock()
	r.saves++
	err := r.saveErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.SaveScan(ctx, scan)
}

func (r *recordingRepo) DeleteScan(ctx context.Context, id string) error {
	r.mu.Lock()
	r.deletes++
	err := r.deleteErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.DeleteScan(ctx, id)
}

func (r *recordingRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (e *recordingEmitter) Emit(event any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev, ok := event.(sse.Event); ok {
		e.events = append(e.events, ev)
	}
}

func (e *recordingEmitter) Types() []sse.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sse.EventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

func (e *recordingEmitter) Last() sse.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

type scanFixture struct {
	svc     *ScanService
	repo    *recordingRepo
	emitter *recordingEmitter
}

func setupScanService(t *testing.T, opts ...ScanOption) *scanFixture {
	t.Helper()

	backing, err := store.NewInMemory(logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	repo := &recordingRepo{Repository: backing}
	emitter := &recordingEmitter{}
	opts = append([]ScanOption{WithEventEmitter(emitter)}, opts...)
	svc := NewScanService(repo, passthroughNormalizer{}, fixedName("Mighty Scan"), logger.Discard().Logger, opts...)

	return &scanFixture{svc: svc, repo: repo, emitter: emitter}
}

func blobs(names ...string) [][]byte {
	out := make([][]byte, len(names))
	for i, n := range names {
		out[i] = []byte(n)
	}
	return out
}

// pageImages returns page payloads as strings in order-key order.
func pageImages(scan *domain.Scan) []string {
	var out []string
	for _, p := range scan.SortedPages() {
		out = append(out, string(p.Image))
	}
	return out
}

func orderKeys(scan *domain.Scan) map[string]int {
	out := make(map[string]int, len(scan.Pages))
	for _, p := range scan.Pages {
		out[p.ID] = p.Order
	}
	return out
}

func (f *scanFixture) create(t *testing.T, names ...string) *domain.Scan {
	t.Helper()
	out := f.svc.Append(context.Background(), "", blobs(names...))
	require.True(t, out.Created)
	require.NoError(t, out.PersistErr)
	return out.Scan
}

func TestAppend_NewScanKeepsInputOrder(t *testing.T) {
	f := setupScanService(t)

	out := f.svc.Append(context.Background(), "", blobs("a", "b", "c"))

	require.True(t, out.OK())
	assert.True(t, out.Created)
	assert.True(t, out.Changed)
	assert.Zero(t, out.Dropped)
	require.NotNil(t, out.Scan)
	assert.Equal(t, "Mighty Scan", out.Scan.Name)
	assert.Equal(t, []string{"a", "b", "c"}, pageImages(out.Scan))
	for i, p := range out.Scan.Pages {
		assert.Equal(t, i, p.Order)
		assert.Equal(t, out.Scan.ID, p.ScanID)
	}
	require.NoError(t, out.Scan.ValidateOrder())

	persisted, err := f.repo.GetScan(context.Background(), out.Scan.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, pageImages(persisted))

	assert.Equal(t, []sse.EventType{sse.EventScanCreated}, f.emitter.Types())
}

func TestAppend_EmptyCaptureCreatesNothing(t *testing.T) {
	f := setupScanService(t)

	for _, input := range [][][]byte{nil, {}, blobs("bad-1", "bad-2")} {
		out := f.svc.Append(context.Background(), "", input)
		assert.False(t, out.Created)
		assert.False(t, out.Changed)
		assert.Nil(t, out.Scan)
		assert.Equal(t, len(input), out.Dropped)
	}

	scans, _ := f.svc.Stats()
	assert.Zero(t, scans)
	assert.Zero(t, f.repo.Saves())
	assert.Empty(t, f.emitter.Types())
}

func TestAppend_ExistingScanEmptyInputLeavesPagesUnchanged(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b")
	saves := f.repo.Saves()

	out := f.svc.Append(context.Background(), scan.ID, nil)

	require.True(t, out.OK())
	assert.False(t, out.Changed)
	assert.Equal(t, orderKeys(scan), orderKeys(out.Scan))
	assert.Equal(t, saves+1, f.repo.Saves(), "existing scan is saved again")
}

func TestAppend_ExistingScanAddsAfterLastPage(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b")

	out := f.svc.Append(context.Background(), scan.ID, blobs("c", "bad", "d"))

	require.True(t, out.OK())
	assert.True(t, out.Changed)
	assert.Equal(t, 1, out.Dropped)
	assert.Equal(t, []string{"a", "b", "c", "d"}, pageImages(out.Scan))
	require.NoError(t, out.Scan.ValidateOrder())
	assert.Equal(t, sse.EventScanUpdated, f.emitter.Last().Type)
}

func TestAppend_UnknownScanIsNoop(t *testing.T) {
	f := setupScanService(t)

	out := f.svc.Append(context.Background(), "scan-missing", blobs("a"))

	assert.True(t, out.NotFound)
	assert.False(t, out.OK())
	assert.Nil(t, out.Scan)
	assert.Zero(t, f.repo.Saves())
}

func TestDeletePage_ReindexesRemaining(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b", "c", "d")
	target := scan.SortedPages()[1]

	out := f.svc.DeletePage(context.Background(), scan.ID, target.ID)

	require.True(t, out.OK())
	assert.True(t, out.Changed)
	assert.False(t, out.Removed)
	assert.Equal(t, []string{"a", "c", "d"}, pageImages(out.Scan))
	require.NoError(t, out.Scan.ValidateOrder())

	persisted, err := f.repo.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, pageImages(persisted))
	require.NoError(t, persisted.ValidateOrder())
}

func TestDeletePage_LastPageRemovesScan(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "only")
	ctx := context.Background()

	out := f.svc.DeletePage(ctx, scan.ID, scan.Pages[0].ID)

	require.True(t, out.OK())
	assert.True(t, out.Removed)
	assert.Nil(t, out.Scan)

	_, err := f.svc.Get(ctx, scan.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = f.repo.GetScan(ctx, scan.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	last := f.emitter.Last()
	assert.Equal(t, sse.EventScanDeleted, last.Type)
	assert.Equal(t, sse.DeleteReasonEmpty, last.Data.(sse.ScanDeletedEventData).Reason)
}

func TestDeletePage_UnknownPageLeavesScanUnchanged(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b")
	saves := f.repo.Saves()

	out := f.svc.DeletePage(context.Background(), scan.ID, "page-missing")
	assert.True(t, out.NotFound)

	got, err := f.svc.Get(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, orderKeys(scan), orderKeys(got))
	assert.Equal(t, saves, f.repo.Saves())

	out = f.svc.DeletePage(context.Background(), "scan-missing", scan.Pages[0].ID)
	assert.True(t, out.NotFound)
}

func TestMovePage_SwapsNeighbourAndRestores(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b", "c", "d")
	original := orderKeys(scan)
	sorted := scan.SortedPages()
	moving := sorted[2]

	out := f.svc.MovePage(context.Background(), scan.ID, moving.ID, domain.MoveBackward)

	require.True(t, out.OK())
	assert.True(t, out.Changed)
	assert.Equal(t, []string{"a", "c", "b", "d"}, pageImages(out.Scan))

	moved := orderKeys(out.Scan)
	assert.Equal(t, 1, moved[sorted[2].ID])
	assert.Equal(t, 2, moved[sorted[1].ID])
	assert.Equal(t, original[sorted[0].ID], moved[sorted[0].ID])
	assert.Equal(t, original[sorted[3].ID], moved[sorted[3].ID])

	out = f.svc.MovePage(context.Background(), scan.ID, moving.ID, domain.MoveForward)
	require.True(t, out.OK())
	assert.Equal(t, original, orderKeys(out.Scan))

	persisted, err := f.repo.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, original, orderKeys(persisted))
}

func TestMovePage_PastEitherEndDoesNotPersist(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b", "c")
	sorted := scan.SortedPages()
	saves := f.repo.Saves()
	events := len(f.emitter.Types())

	tests := []struct {
		name      string
		pageID    string
		direction int
	}{
		{"first backward", sorted[0].ID, domain.MoveBackward},
		{"last forward", sorted[2].ID, domain.MoveForward},
		{"two steps", sorted[1].ID, 2},
		{"zero", sorted[1].ID, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.svc.MovePage(context.Background(), scan.ID, tt.pageID, tt.direction)
			assert.False(t, out.Changed)
			assert.False(t, out.NotFound)
			assert.Equal(t, orderKeys(scan), orderKeys(out.Scan))
		})
	}

	assert.Equal(t, saves, f.repo.Saves())
	assert.Len(t, f.emitter.Types(), events)
}

func TestMovePage_UnknownTargets(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b")

	assert.True(t, f.svc.MovePage(context.Background(), scan.ID, "page-missing", domain.MoveForward).NotFound)
	assert.True(t, f.svc.MovePage(context.Background(), "scan-missing", scan.Pages[0].ID, domain.MoveForward).NotFound)
}

func TestRename_AcceptsAnyName(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a")
	other := f.create(t, "b")

	for _, name := range []string{"Receipts", "", other.Name} {
		out := f.svc.Rename(context.Background(), scan.ID, name)
		require.True(t, out.OK())
		assert.Equal(t, name, out.Scan.Name)

		persisted, err := f.repo.GetScan(context.Background(), scan.ID)
		require.NoError(t, err)
		assert.Equal(t, name, persisted.Name)
	}

	assert.True(t, f.svc.Rename(context.Background(), "scan-missing", "x").NotFound)
}

func TestDeleteScan(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b")

	out := f.svc.DeleteScan(context.Background(), scan.ID)
	require.True(t, out.OK())
	assert.True(t, out.Removed)

	_, err := f.repo.GetScan(context.Background(), scan.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, sse.DeleteReasonExplicit, f.emitter.Last().Data.(sse.ScanDeletedEventData).Reason)

	assert.True(t, f.svc.DeleteScan(context.Background(), scan.ID).NotFound)
}

func TestPersistFailureIsSurfacedNotReturned(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b")

	boom := errors.New("disk full")
	f.repo.saveErr = boom

	out := f.svc.Rename(context.Background(), scan.ID, "Renamed")
	assert.ErrorIs(t, out.PersistErr, boom)
	assert.False(t, out.OK())
	assert.True(t, out.Changed)

	// In-memory state is kept.
	got, err := f.svc.Get(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	out = f.svc.Append(context.Background(), "", blobs("c"))
	assert.True(t, out.Created)
	assert.ErrorIs(t, out.PersistErr, boom)

	f.repo.deleteErr = boom
	out = f.svc.DeleteScan(context.Background(), scan.ID)
	assert.True(t, out.Removed)
	assert.ErrorIs(t, out.PersistErr, boom)
}

func TestCancelledContextSurfacesAsPersistErr(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.svc.Rename(ctx, scan.ID, "late")
	assert.ErrorIs(t, out.PersistErr, context.Canceled)
}

func TestLoad_RepairsOrderAndRemovesEmptyScans(t *testing.T) {
	f := setupScanService(t)
	ctx := context.Background()

	gappy := &domain.Scan{ID: "scan-gappy", Name: "gappy", CreatedAt: time.Now()}
	for i, order := range []int{5, 0, 2} {
		gappy.Pages = append(gappy.Pages, &domain.Page{
			ID:    fmt.Sprintf("page-%d", i),
			Order: order,
			Image: []byte{byte('x' + i)},
		})
	}
	require.NoError(t, f.repo.Repository.SaveScan(ctx, gappy))
	require.NoError(t, f.repo.Repository.SaveScan(ctx, &domain.Scan{ID: "scan-empty"}))

	n, err := f.svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, "scan-gappy")
	require.NoError(t, err)
	require.NoError(t, got.ValidateOrder())
	assert.Equal(t, []string{"page-1", "page-2", "page-0"}, pageIDs(got))

	persisted, err := f.repo.GetScan(ctx, "scan-gappy")
	require.NoError(t, err)
	require.NoError(t, persisted.ValidateOrder())

	_, err = f.repo.GetScan(ctx, "scan-empty")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func pageIDs(scan *domain.Scan) []string {
	var out []string
	for _, p := range scan.SortedPages() {
		out = append(out, p.ID)
	}
	return out
}

func TestList_NewestFirstWithFilterAndLimit(t *testing.T) {
	base := time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC)
	var tick int
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	f := setupScanService(t, WithClock(clock))
	ctx := context.Background()

	var ids []string
	for i := range 7 {
		scan := f.create(t, fmt.Sprintf("img-%d", i))
		ids = append(ids, scan.ID)
	}
	f.svc.Rename(ctx, ids[1], "Straße receipts")
	f.svc.Rename(ctx, ids[4], "STRASSE invoices")

	all := f.svc.List(ctx, ListOptions{})
	require.Len(t, all, 7)
	for i, scan := range all {
		assert.Equal(t, ids[6-i], scan.ID)
	}

	recent := f.svc.Recent(ctx)
	require.Len(t, recent, RecentLimit)
	assert.Equal(t, ids[6], recent[0].ID)

	filtered := f.svc.List(ctx, ListOptions{Query: "strasse"})
	require.Len(t, filtered, 2)
	assert.Equal(t, ids[4], filtered[0].ID)
	assert.Equal(t, ids[1], filtered[1].ID)

	assert.Empty(t, f.svc.List(ctx, ListOptions{Query: "nothing like it"}))
}

func TestGet_ReturnsCopy(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "a", "b")

	got, err := f.svc.Get(context.Background(), scan.ID)
	require.NoError(t, err)
	got.Name = "mutated"
	got.Pages[0].Order = 99

	again, err := f.svc.Get(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mighty Scan", again.Name)
	require.NoError(t, again.ValidateOrder())
}

func TestOperationsKeepOrderDense(t *testing.T) {
	f := setupScanService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))

	scan := f.create(t, "p0", "p1", "p2")
	for step := range 300 {
		current, err := f.svc.Get(ctx, scan.ID)
		if errors.Is(err, domainerrors.ErrNotFound) {
			scan = f.create(t, fmt.Sprintf("restart-%d", step))
			continue
		}
		require.NoError(t, err)

		pages := current.SortedPages()
		switch rng.IntN(3) {
		case 0:
			f.svc.Append(ctx, scan.ID, blobs(fmt.Sprintf("s%d", step)))
		case 1:
			f.svc.DeletePage(ctx, scan.ID, pages[rng.IntN(len(pages))].ID)
		case 2:
			dir := []int{domain.MoveBackward, domain.MoveForward}[rng.IntN(2)]
			f.svc.MovePage(ctx, scan.ID, pages[rng.IntN(len(pages))].ID, dir)
		}

		if got, err := f.svc.Get(ctx, scan.ID); err == nil {
			require.NoError(t, got.ValidateOrder(), "step %d", step)
			persisted, err := f.repo.GetScan(ctx, scan.ID)
			require.NoError(t, err)
			require.NoError(t, persisted.ValidateOrder(), "step %d", step)
			assert.Equal(t, pageIDs(got), pageIDs(persisted))
		}
	}
}

func TestConcurrentAppendsApplyInSomeOrder(t *testing.T) {
	f := setupScanService(t)
	scan := f.create(t, "seed")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			f.svc.Append(ctx, scan.ID, blobs(fmt.Sprintf("w%d-a", i), fmt.Sprintf("w%d-b", i)))
		})
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, got.Pages, 41)
	require.NoError(t, got.ValidateOrder())

	// Each append's pages stay adjacent and in input order.
	imgs := pageImages(got)
	for i := range 20 {
		a := slices.Index(imgs, fmt.Sprintf("w%d-a", i))
		require.GreaterOrEqual(t, a, 0)
		assert.Equal(t, fmt.Sprintf("w%d-b", i), imgs[a+1])
	}
}

func realPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPageImage(t *testing.T) {
	backing, err := store.NewInMemory(logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	log := logger.Discard().Logger
	svc := NewScanService(backing, images.NewProcessor(80, log), fixedName("photos"), log)
	ctx := context.Background()

	out := svc.Append(ctx, "", [][]byte{realPNG(t, 40, 20)})
	require.True(t, out.Created)
	page := out.Scan.Pages[0]

	data, err := svc.PageImage(ctx, out.Scan.ID, page.ID)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 40, cfg.Width)

	_, err = svc.PageImage(ctx, out.Scan.ID, "page-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	// Simulate corrupted payloads.
	svc.mu.Lock()
	svc.scans[out.Scan.ID].Pages[0].Image = nil
	svc.mu.Unlock()
	_, err = svc.PageImage(ctx, out.Scan.ID, page.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	svc.mu.Lock()
	svc.scans[out.Scan.ID].Pages[0].Image = []byte("garbage")
	svc.mu.Unlock()
	_, err = svc.PageImage(ctx, out.Scan.ID, page.ID)
	assert.ErrorIs(t, err, domainerrors.ErrUnprocessable)
}

func TestThumbnail_UsesFirstPageAndCache(t *testing.T) {
	backing, err := store.NewInMemory(logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	cache, err := images.NewStorage(t.TempDir())
	require.NoError(t, err)

	log := logger.Discard().Logger
	svc := NewScanService(backing, images.NewProcessor(80, log), fixedName("thumbs"), log, WithThumbnailCache(cache))
	ctx := context.Background()

	out := svc.Append(ctx, "", [][]byte{realPNG(t, 800, 400), realPNG(t, 100, 100)})
	require.True(t, out.Created)
	first := out.Scan.SortedPages()[0]

	data, etag, err := svc.Thumbnail(ctx, out.Scan.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, images.ThumbnailSize, cfg.Width)
	assert.Equal(t, images.ThumbnailSize/2, cfg.Height)
	assert.True(t, cache.Exists(images.Key(out.Scan.ID, first.ID)))

	_, again, err := svc.Thumbnail(ctx, out.Scan.ID)
	require.NoError(t, err)
	assert.Equal(t, etag, again)

	require.True(t, svc.DeleteScan(ctx, out.Scan.ID).OK())
	assert.False(t, cache.Exists(images.Key(out.Scan.ID, first.ID)))

	_, _, err = svc.Thumbnail(ctx, out.Scan.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestStats(t *testing.T) {
	f := setupScanService(t)
	f.create(t, "a", "b")
	f.create(t, "c")

	scans, pages := f.svc.Stats()
	assert.Equal(t, 2, scans)
	assert.Equal(t, 3, pages)
}
