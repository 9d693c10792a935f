// Package gifenc implements a from-scratch animated GIF encoder.
//
// The encoder takes a sequence of raw RGBA frames and produces a complete
// GIF89a byte buffer. Each frame is reduced to a 256-color palette with
// median-cut quantization, compressed with the GIF variant of LZW, and
// framed into the binary container with a local color table per frame.
//
// The package has no dependency on where frames come from or where the
// output goes; callers provide fully materialized frames and receive one
// immutable byte buffer. Progress is reported through an optional callback
// and cancellation is observed between frames via context.
package gifenc
