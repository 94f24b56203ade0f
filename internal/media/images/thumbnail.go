package images

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ThumbnailSize is the longest side of list-view thumbnails.
const ThumbnailSize = 320

var (
	fastScaler    draw.Scaler = draw.ApproxBiLinear
	qualityScaler draw.Scaler = draw.CatmullRom
)

// Thumbnail decodes data and returns a JPEG no larger than maxSide on either axis.
func Thumbnail(data []byte, maxSide int) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fit(img, maxSide, qualityScaler), &jpeg.Options{Quality: DefaultQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales img down so neither side exceeds maxSide, keeping aspect ratio.
// Images already within bounds are returned as-is.
func fit(img image.Image, maxSide int, scaler draw.Scaler) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	var dw, dh int
	if w > h {
		dw = maxSide
		dh = max(h*maxSide/w, 1)
	} else {
		dh = maxSide
		dw = max(w*maxSide/h, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	scaler.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
