package frames

import (
	"bytes"
	"fmt"
	"image"

	"vidgif/internal/gifenc"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support
)

// DecodeStill decodes a still image into a single-frame sequence, resized
// to at most maxWidth and truncated to even dimensions. Posts sometimes
// attach a picture where a clip was expected; a one-frame GIF is still a
// valid conversion result.
func (d *Decoder) DecodeStill(data []byte, maxWidth int) (*Sequence, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	width, height := targetDimensions(b.Dx(), b.Dy(), maxWidth)
	if width == 0 || height == 0 {
		return nil, ErrNoFrames
	}

	resized := imaging.Resize(img, width, height, imaging.Lanczos)

	frame := gifenc.NewFrame(width, height)
	for y := 0; y < height; y++ {
		// NRGBA rows are already 4 bytes per pixel in RGBA order.
		row := resized.Pix[y*resized.Stride : y*resized.Stride+width*4]
		copy(frame.Pix[y*width*4:], row)
	}

	return &Sequence{Width: width, Height: height, Frames: []*gifenc.Frame{frame}}, nil
}
