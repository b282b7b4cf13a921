package acquisition

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/nfnt/resize"

	"github.com/example/plant-scan/internal/detection"
)

const (
	// DefaultMaxDimension bounds the longest side of an encoded frame.
	DefaultMaxDimension = 1280
	// DefaultJPEGQuality is used when encoding frames.
	DefaultJPEGQuality = 90
)

// Raster is the offscreen buffer frames and example images are drawn onto
// before being encoded into the submission payload.
type Raster struct {
	MaxDimension uint
	Quality      int
}

// NewRaster returns a raster with default settings.
func NewRaster() *Raster {
	return &Raster{MaxDimension: DefaultMaxDimension, Quality: DefaultJPEGQuality}
}

// Encode draws img onto the buffer, downscales it when it exceeds
// MaxDimension and encodes it as JPEG.
func (r *Raster) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no frame", ErrDecodeFailure)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrDecodeFailure)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)

	var out image.Image = canvas
	if r.MaxDimension > 0 && (uint(bounds.Dx()) > r.MaxDimension || uint(bounds.Dy()) > r.MaxDimension) {
		out = resize.Thumbnail(r.MaxDimension, r.MaxDimension, canvas, resize.Bilinear)
	}

	quality := r.Quality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBytes decodes an encoded image and re-encodes it through the buffer.
func (r *Raster) EncodeBytes(data []byte) ([]byte, error) {
	img, _, err := detection.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return r.Encode(img)
}
