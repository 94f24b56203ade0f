// Package export turns scans into shareable artifacts: a multi-page PDF or a
// ZIP of page JPEGs. Artifacts are written to a local directory, registered
// under an opaque handle, and optionally uploaded to object storage for
// share links.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanixapp/scanix-server/internal/domain"
	"github.com/scanixapp/scanix-server/internal/media/images"
)

// Format is an artifact type.
type Format string

const (
	FormatPDF Format = "pdf"
	FormatZIP Format = "zip"
)

// ErrNothingToExport is returned when a scan has no page with a usable image.
var ErrNothingToExport = errors.New("export: no exportable pages")

// ErrUnknownFormat is returned for formats other than pdf and zip.
var ErrUnknownFormat = errors.New("export: unknown format")

// ErrArtifactNotFound is returned by Get and Open for unknown handles.
var ErrArtifactNotFound = errors.New("export: artifact not found")

// ParseFormat validates a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatPDF, FormatZIP:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatZIP {
		return "application/zip"
	}
	return "application/pdf"
}

// Artifact describes one written export.
type Artifact struct {
	CreatedAt   time.Time `json:"created_at"`
	Handle      string    `json:"handle"`
	ScanID      string    `json:"scan_id"`
	Format      Format    `json:"format"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"-"`
	Size        int64     `json:"size"`
	Pages       int       `json:"pages"`
	Skipped     int       `json:"skipped,omitempty"`

	// ShareURL is a presigned object-storage URL, empty without object storage.
	ShareURL string `json:"share_url,omitempty"`
}

// pageImage is a decoded page ready to be written.
type pageImage struct {
	JPEG   []byte
	Width  int
	Height int
}

// Exporter writes artifacts to Dir and keeps a registry of them.
type Exporter struct {
	dir        string
	objects    ObjectStore
	linkExpiry time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithObjectStore uploads every artifact and attaches a presigned URL valid for expiry.
func WithObjectStore(store ObjectStore, expiry time.Duration) Option {
	return func(e *Exporter) {
		e.objects = store
		e.linkExpiry = expiry
	}
}

// WithClock sets the clock used for fallback file names and creation times.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New creates an exporter writing to dir, creating it if needed.
func New(dir string, logger *slog.Logger, opts ...Option) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	e := &Exporter{
		dir:        dir,
		linkExpiry: 24 * time.Hour,
		logger:     logger,
		now:        time.Now,
		artifacts:  make(map[string]*Artifact),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Export writes scan's pages, in order-key order, as format.
// Pages without a payload, or whose payload does not decode, are skipped;
// ErrNothingToExport is returned when none remain. Each artifact lives in its
// own directory named after its handle, so scans sharing a name never
// replace each other's files.
func (e *Exporter) Export(ctx context.Context, scan *domain.Scan, format Format) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, skipped := e.collect(scan)
	if len(pages) == 0 {
		return nil, ErrNothingToExport
	}

	now := e.now()
	handle := uuid.NewString()
	fileName := FileName(scan.Name, now) + format.Extension()

	var write func(io.Writer, []pageImage) error
	switch format {
	case FormatPDF:
		write = writePDF
	case FormatZIP:
		write = writeZIP
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	dir := filepath.Join(e.dir, handle)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	path := filepath.Join(dir, fileName)

	size, err := writeFileAtomic(path, func(w io.Writer) error { return write(w, pages) })
	if err != nil {
		os.RemoveAll(dir) //nolint:errcheck // Already failing
		return nil, fmt.Errorf("write %s: %w", format, err)
	}

	a := &Artifact{
		CreatedAt:   now,
		Handle:      handle,
		ScanID:      scan.ID,
		Format:      format,
		FileName:    fileName,
		ContentType: format.ContentType(),
		Path:        path,
		Size:        size,
		Pages:       len(pages),
		Skipped:     skipped,
	}

	if e.objects != nil {
		if err := e.share(ctx, a); err != nil {
			e.logger.Warn("failed to upload export, serving locally only", "scan_id", scan.ID, "handle", a.Handle, "error", err)
		}
	}

	e.mu.Lock()
	e.artifacts[a.Handle] = a
	e.mu.Unlock()

	e.logger.Info("export written",
		"scan_id", scan.ID,
		"format", format,
		"file", fileName,
		"pages", len(pages),
		"skipped", skipped,
		"size", size,
	)
	return a, nil
}

// Get returns the artifact registered under handle.
func (e *Exporter) Get(handle string) (*Artifact, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.artifacts[handle]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	c := *a
	return &c, nil
}

// Open opens the artifact file for reading.
func (e *Exporter) Open(handle string) (*os.File, *Artifact, error) {
	a, err := e.Get(handle)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(a.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrArtifactNotFound
		}
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, a, nil
}

// SharingEnabled reports whether artifacts are uploaded for share links.
func (e *Exporter) SharingEnabled() bool {
	return e.objects != nil
}

// Count returns the number of registered artifacts.
func (e *Exporter) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.artifacts)
}

// Forget drops every artifact of a scan from the registry and removes its
// local file and uploaded object. Cleanup failures are logged.
func (e *Exporter) Forget(ctx context.Context, scanID string) {
	var dropped []*Artifact
	e.mu.Lock()
	for h, a := range e.artifacts {
		if a.ScanID == scanID {
			delete(e.artifacts, h)
			dropped = append(dropped, a)
		}
	}
	e.mu.Unlock()

	for _, a := range dropped {
		if err := os.RemoveAll(filepath.Dir(a.Path)); err != nil {
			e.logger.Warn("failed to remove export", "handle", a.Handle, "error", err)
		}
		if e.objects == nil || a.ShareURL == "" {
			continue
		}
		if err := e.objects.Delete(ctx, objectKey(a)); err != nil {
			e.logger.Warn("failed to delete shared export", "handle", a.Handle, "error", err)
		}
	}
}

func objectKey(a *Artifact) string {
	return "exports/" + a.Handle + "/" + a.FileName
}

func (e *Exporter) share(ctx context.Context, a *Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // Read-only file

	key := objectKey(a)
	if err := e.objects.Put(ctx, key, f, a.Size, a.ContentType); err != nil {
		return err
	}
	url, err := e.objects.PresignGet(ctx, key, e.linkExpiry)
	if err != nil {
		return err
	}
	a.ShareURL = url
	return nil
}

// collect returns the decodable pages in order and the number skipped.
func (e *Exporter) collect(scan *domain.Scan) ([]pageImage, int) {
	sorted := scan.SortedPages()
	out := make([]pageImage, 0, len(sorted))
	skipped := 0

	for _, p := range sorted {
		if !p.HasImage() {
			skipped++
			continue
		}
		img, err := toJPEG(p.Image)
		if err != nil {
			skipped++
			e.logger.Warn("skipping undecodable page", "scan_id", scan.ID, "page_id", p.ID, "error", err)
			continue
		}
		out = append(out, img)
	}
	return out, skipped
}

// toJPEG decodes data and returns it as JPEG, re-encoding other formats.
func toJPEG(data []byte) (pageImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return pageImage{}, fmt.Errorf("%w: %w", images.ErrUndecodable, err)
	}
	b := img.Bounds()
	out := pageImage{JPEG: data, Width: b.Dx(), Height: b.Dy()}
	if format == "jpeg" {
		return out, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: images.DefaultQuality}); err != nil {
		return pageImage{}, fmt.Errorf("encode jpeg: %w", err)
	}
	out.JPEG = buf.Bytes()
	return out, nil
}

// maxFileNameBytes leaves room for the extension under the usual 255-byte limit.
const maxFileNameBytes = 200

// FileName returns the artifact base name for a scan: its name, or
// Scan_<unix seconds> when the name is empty. Path separators are replaced
// and long names are cut to maxFileNameBytes on a rune boundary.
func FileName(scanName string, now time.Time) string {
	name := strings.TrimSpace(scanName)
	if name == "" {
		return "Scan_" + strconv.FormatInt(now.Unix(), 10)
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)

	if len(name) > maxFileNameBytes {
		cut := 0
		for i := range name {
			if i > maxFileNameBytes {
				break
			}
			cut = i
		}
		name = strings.TrimSpace(name[:cut])
	}
	return name
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, write func(io.Writer) error) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Gone after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
