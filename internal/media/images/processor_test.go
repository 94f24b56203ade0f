package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanixapp/scanix-server/internal/logger"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessor_Normalize_PNGToJPEG(t *testing.T) {
	p := NewProcessor(80, logger.Discard().Logger)

	out, err := p.Normalize(pngBytes(t, 200, 100))
	require.NoError(t, err)

	assert.Equal(t, 200, out.Width)
	assert.Equal(t, 100, out.Height)
	assert.NotEmpty(t, out.BlurHash)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.JPEG))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 200, cfg.Width)
}

func TestProcessor_Normalize_Undecodable(t *testing.T) {
	p := NewProcessor(80, logger.Discard().Logger)

	for _, data := range [][]byte{nil, {}, []byte("not an image")} {
		_, err := p.Normalize(data)
		assert.ErrorIs(t, err, ErrUndecodable)
	}
}

func TestNewProcessor_QualityFallback(t *testing.T) {
	assert.Equal(t, DefaultQuality, NewProcessor(0, logger.Discard().Logger).quality)
	assert.Equal(t, DefaultQuality, NewProcessor(150, logger.Discard().Logger).quality)
	assert.Equal(t, 95, NewProcessor(95, logger.Discard().Logger).quality)
}

func TestThumbnail_FitsWithinBounds(t *testing.T) {
	thumb, err := Thumbnail(pngBytes(t, 800, 400), 100)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestThumbnail_SmallImageKeepsSize(t *testing.T) {
	thumb, err := Thumbnail(pngBytes(t, 40, 60), 100)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())
}

func TestThumbnail_Undecodable(t *testing.T) {
	_, err := Thumbnail([]byte("nope"), 100)
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestComputeBlurHash(t *testing.T) {
	img, err := Decode(pngBytes(t, 300, 300))
	require.NoError(t, err)

	hash, err := ComputeBlurHash(img)
	require.NoError(t, err)
	// 4x3 components: 1 + 1 + 4 + 2*(4*3-1) characters.
	assert.Len(t, hash, 28)
}

func TestFit_KeepsAspectRatio(t *testing.T) {
	tall := image.NewRGBA(image.Rect(0, 0, 10, 1000))
	out := fit(tall, 64, fastScaler)
	assert.Equal(t, 64, out.Bounds().Dy())
	assert.Equal(t, 1, out.Bounds().Dx())
}
