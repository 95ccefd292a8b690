package drive

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Register decoders for the image formats accepted on upload.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

// PreviewMaxDim is the longest edge of a generated preview, in pixels.
const PreviewMaxDim = 400

// MaxPreviewPixels bounds the source images RenderPreview will decode.
const MaxPreviewPixels = 50_000_000

var (
	// ErrNotDecodable is returned when bytes are not an image this package can read.
	ErrNotDecodable = errors.New("content is not a decodable image")

	// ErrTooManyPixels is returned for images larger than MaxPreviewPixels.
	ErrTooManyPixels = errors.New("image is too large to preview")
)

// Preview is a rendered JPEG thumbnail together with the source dimensions.
type Preview struct {
	JPEG         []byte
	SourceWidth  int
	SourceHeight int
}

// ImageDimensions decodes only the header of data.
func ImageDimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, ErrNotDecodable
	}
	return cfg.Width, cfg.Height, nil
}

// RenderPreview scales data down so its longest edge is at most maxDim and
// encodes the result as JPEG. Images already within bounds are re-encoded
// at their own size.
func RenderPreview(data []byte, maxDim int) (*Preview, error) {
	w, h, err := ImageDimensions(data)
	if err != nil {
		return nil, err
	}
	if w*h > MaxPreviewPixels {
		return nil, ErrTooManyPixels
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrNotDecodable
	}

	bounds := src.Bounds()
	w, h = bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, ErrNotDecodable
	}

	newW, newH := w, h
	if w > maxDim || h > maxDim {
		if w > h {
			newW, newH = maxDim, max(1, h*maxDim/w)
		} else {
			newW, newH = max(1, w*maxDim/h), maxDim
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encoding preview: %w", err)
	}
	return &Preview{JPEG: buf.Bytes(), SourceWidth: w, SourceHeight: h}, nil
}
