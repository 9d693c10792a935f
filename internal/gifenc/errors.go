package gifenc

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when the pipeline is given no frames.
var ErrEmptyInput = errors.New("gifenc: no frames to encode")

// DimensionError reports a frame whose dimensions disagree with the first
// frame of the sequence. The whole conversion is aborted; no partial
// container is ever produced.
type DimensionError struct {
	Frame      int
	Width      int
	Height     int
	WantWidth  int
	WantHeight int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("gifenc: frame %d is %dx%d, want %dx%d",
		e.Frame, e.Width, e.Height, e.WantWidth, e.WantHeight)
}

// EncodingError reports an internal invariant violation during quantization,
// LZW coding or container assembly, with the frame index at which it occurred.
type EncodingError struct {
	Frame int
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("gifenc: frame %d: %v", e.Frame, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
