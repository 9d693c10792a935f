package gifenc

// PaletteSize is the number of entries in every frame palette. Frames with
// fewer distinct colors get the remaining slots padded with black.
const PaletteSize = 256

// RGB is a single 24-bit palette entry.
type RGB struct {
	R, G, B uint8
}

// Frame is one decoded video frame: a Width×Height buffer of RGBA pixels,
// 8 bits per channel, row-major, 4 bytes per pixel. The pixel buffer is
// treated as immutable once captured.
type Frame struct {
	Width  int
	Height int
	Pix    []byte // len must equal Width*Height*4
}

// NewFrame allocates a zeroed (black, transparent) frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// valid reports whether the pixel buffer matches the declared dimensions.
func (f *Frame) valid() bool {
	return f.Width >= 0 && f.Height >= 0 && len(f.Pix) == f.Width*f.Height*4
}

// IndexedFrame is the quantized form of a Frame: one palette index per
// pixel plus the local palette that produced it. Palettes are local to
// each frame; no global palette is shared across frames.
type IndexedFrame struct {
	Width   int
	Height  int
	Indices []byte // len == Width*Height, every value indexes Palette
	Palette [PaletteSize]RGB
}

// EvenDimension truncates d down to the nearest even value. GIF output in
// this pipeline requires even frame dimensions, matching what the frame
// provider produces.
func EvenDimension(d int) int {
	if d < 0 {
		return 0
	}
	return d &^ 1
}

// cropEven returns the frame truncated to even dimensions, dropping the
// last pixel column and row when needed. Frames that are already even are
// returned unchanged.
func cropEven(f *Frame) *Frame {
	w, h := EvenDimension(f.Width), EvenDimension(f.Height)
	if w == f.Width && h == f.Height {
		return f
	}
	out := NewFrame(w, h)
	for y := 0; y < h; y++ {
		src := f.Pix[y*f.Width*4 : y*f.Width*4+w*4]
		copy(out.Pix[y*w*4:], src)
	}
	return out
}
