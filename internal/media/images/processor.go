// Package images normalizes captured page images and renders thumbnails.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
)

// DefaultQuality is the JPEG quality used for stored pages.
const DefaultQuality = 80

// ErrUndecodable is returned for payloads that no registered codec accepts.
var ErrUndecodable = errors.New("image cannot be decoded")

// Normalized is a page image ready for storage.
type Normalized struct {
	JPEG     []byte
	Width    int
	Height   int
	BlurHash string
}

// Processor turns captured blobs (JPEG, PNG, GIF, WebP) into stored JPEG pages.
type Processor struct {
	quality int
	logger  *slog.Logger
}

// NewProcessor creates a Processor. Quality outside 1-100 falls back to DefaultQuality.
func NewProcessor(quality int, logger *slog.Logger) *Processor {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Processor{quality: quality, logger: logger}
}

// Normalize decodes data and re-encodes it as JPEG.
// Returns ErrUndecodable if data is not an image.
func (p *Processor) Normalize(data []byte) (*Normalized, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUndecodable)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	// A missing placeholder is not worth dropping the page for.
	hash, err := ComputeBlurHash(img)
	if err != nil {
		p.logger.Warn("failed to compute blurhash", "format", format, "error", err)
	}

	bounds := img.Bounds()
	p.logger.Debug("normalized page image",
		"format", format,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"in_bytes", len(data),
		"out_bytes", buf.Len(),
	)

	return &Normalized{
		JPEG:     buf.Bytes(),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		BlurHash: hash,
	}, nil
}

// Decode decodes a stored page payload.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUndecodable)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return img, nil
}
