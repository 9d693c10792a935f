package gifenc

import (
	"context"
	"errors"
	"sync"
)

// colorDepth is fixed at 8 bits: every frame carries a 256-entry palette.
const colorDepth = 8

// encodedFrame is the per-frame output of the quantize+compress stage,
// slotted by frame index so container order always equals input order.
type encodedFrame struct {
	indexed   *IndexedFrame
	bitstream []byte
}

// Encoder runs the full conversion pipeline: quantization and LZW
// compression across an ordered frame sequence, then container assembly.
// Frame processing fans out over a small worker pool; output order is
// preserved regardless of completion order.
type Encoder struct {
	workers int
}

// NewEncoder creates an encoder that processes up to workers frames
// concurrently. Values below 1 are treated as 1 (sequential).
func NewEncoder(workers int) *Encoder {
	if workers < 1 {
		workers = 1
	}
	return &Encoder{workers: workers}
}

// Encode converts the frame sequence into a complete GIF byte buffer.
//
// delayCS is the per-frame delay in centiseconds. onProgress, if non-nil,
// is invoked with a monotonically non-decreasing fraction after each frame
// completes, reaching exactly 1.0 only once the container bytes exist.
//
// Encode either returns the full valid buffer or an error and no output;
// it never returns a partial container. Cancellation is observed between
// frames and surfaces ctx.Err().
func (e *Encoder) Encode(ctx context.Context, frames []*Frame, delayCS int, onProgress func(float64)) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyInput
	}

	for i, f := range frames {
		if f.Width != frames[0].Width || f.Height != frames[0].Height {
			return nil, &DimensionError{
				Frame:      i,
				Width:      f.Width,
				Height:     f.Height,
				WantWidth:  frames[0].Width,
				WantHeight: frames[0].Height,
			}
		}
		if !f.valid() {
			return nil, &EncodingError{Frame: i, Err: errors.New("pixel buffer does not match dimensions")}
		}
	}

	// The container requires even dimensions. Providers normally deliver
	// even frames already; odd ones lose their last row/column here.
	cropped := make([]*Frame, len(frames))
	for i, f := range frames {
		cropped[i] = cropEven(f)
	}
	frames = cropped
	width, height := frames[0].Width, frames[0].Height

	quantizer := NewQuantizer()
	encoded := make([]*encodedFrame, len(frames))

	progress := newProgressTracker(len(frames), onProgress)

	var err error
	if e.workers == 1 || len(frames) == 1 {
		err = encodeSequential(ctx, frames, quantizer, encoded, progress)
	} else {
		err = e.encodeParallel(ctx, frames, quantizer, encoded, progress)
	}
	if err != nil {
		return nil, err
	}

	var w containerWriter
	w.writeHeader(width, height)
	for _, ef := range encoded {
		w.writeFrame(ef.indexed, ef.bitstream, delayCS)
	}
	w.writeTrailer()

	progress.finish()
	return w.bytes(), nil
}

// encodeFrame quantizes and compresses a single frame.
func encodeFrame(f *Frame, q *Quantizer) (*encodedFrame, error) {
	indexed := q.Quantize(f)
	bitstream := compressIndices(indexed.Indices, colorDepth)
	if len(bitstream) < 2 {
		return nil, errors.New("empty bitstream")
	}
	return &encodedFrame{indexed: indexed, bitstream: bitstream}, nil
}

// encodeSequential processes frames in order on the calling goroutine,
// checking for cancellation between frames.
func encodeSequential(ctx context.Context, frames []*Frame, q *Quantizer, out []*encodedFrame, progress *progressTracker) error {
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		ef, err := encodeFrame(f, q)
		if err != nil {
			return &EncodingError{Frame: i, Err: err}
		}
		out[i] = ef
		progress.frameDone()
	}
	return nil
}

// encodeParallel fans frame work out over the worker pool. Each worker
// writes into its own result slot, so no ordering work is needed afterward.
func (e *Encoder) encodeParallel(ctx context.Context, frames []*Frame, q *Quantizer, out []*encodedFrame, progress *progressTracker) error {
	jobs := make(chan int)
	errCh := make(chan error, e.workers)

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Keep draining jobs after a failure so the feeder never
			// blocks on a dead worker pool.
			for i := range jobs {
				ef, err := encodeFrame(frames[i], q)
				if err != nil {
					select {
					case errCh <- &EncodingError{Frame: i, Err: err}:
					default:
					}
					continue
				}
				out[i] = ef
				progress.frameDone()
			}
		}()
	}

	var cancelErr error
feed:
	for i := range frames {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelErr = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if cancelErr != nil {
		return cancelErr
	}
	select {
	case err := <-errCh:
		return err
	default:
	}
	// A worker may have exited early on error, leaving unfilled slots.
	for i, ef := range out {
		if ef == nil {
			return &EncodingError{Frame: i, Err: errors.New("frame was not encoded")}
		}
	}
	return nil
}

// progressTracker serializes progress callbacks from concurrent workers and
// keeps the reported fraction monotonically non-decreasing. The fraction
// stays below 1.0 until finish is called after container assembly.
type progressTracker struct {
	mu     sync.Mutex
	done   int
	total  int
	report func(float64)
}

func newProgressTracker(total int, report func(float64)) *progressTracker {
	return &progressTracker{total: total, report: report}
}

func (p *progressTracker) frameDone() {
	if p.report == nil {
		return
	}
	// The callback runs under the lock so concurrent workers can never
	// deliver fractions out of order.
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.report(float64(p.done) / float64(p.total+1))
}

func (p *progressTracker) finish() {
	if p.report == nil {
		return
	}
	p.report(1.0)
}
