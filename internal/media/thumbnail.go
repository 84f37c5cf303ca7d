package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	thumbnailMaxSide     = 512
	thumbnailJPEGQuality = 90
)

// Thumbnail is a downscaled JPEG rendition of a source image.
type Thumbnail struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// BuildThumbnail decodes an image (jpeg, png, gif, or webp) and scales
// it down to fit within 512px on the longer side, re-encoding as JPEG.
// Images already small enough are still re-encoded so the output format
// is uniform.
// Parameters:
//   - data: raw source image bytes.
// Returns:
//   - *Thumbnail: encoded thumbnail with its dimensions.
//   - error: non-nil if decoding or encoding fails.
func BuildThumbnail(data []byte) (*Thumbnail, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image has empty bounds")
	}

	targetW, targetH := fitWithin(width, height, thumbnailMaxSide)
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return &Thumbnail{
		Data:     buf.Bytes(),
		Width:    targetW,
		Height:   targetH,
		MimeType: "image/jpeg",
	}, nil
}

// fitWithin scales (w, h) proportionally so the longer side equals
// maxSide, never upscaling.
func fitWithin(w, h, maxSide int) (int, int) {
	longer := w
	if h > w {
		longer = h
	}
	if longer <= maxSide {
		return w, h
	}
	scaledW := w * maxSide / longer
	scaledH := h * maxSide / longer
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}
	return scaledW, scaledH
}
