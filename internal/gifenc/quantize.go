package gifenc

import (
	"sort"
	"sync"
)

// sampleBudget bounds how many pixels are sampled to build a palette. The
// stride is chosen so the sample count stays near this budget regardless of
// frame resolution, keeping quantization cost roughly constant per frame.
const sampleBudget = 9216

// Quantizer reduces full-color frames to 256-color indexed frames using
// median-cut. A Quantizer is scoped to one conversion: its nearest-color
// cache assumes successive frames of the same clip produce similar
// palettes, and it must not be reused across conversions.
type Quantizer struct {
	mu    sync.Mutex
	cache map[uint16]uint8 // reduced-precision RGB key -> palette index
}

// NewQuantizer creates a quantizer with an empty nearest-color cache.
func NewQuantizer() *Quantizer {
	return &Quantizer{cache: make(map[uint16]uint8)}
}

// Quantize builds a 256-entry palette for the frame with median-cut and
// maps every pixel to its nearest palette entry by squared RGB distance.
// The palette always has exactly 256 entries; unused slots are black.
func (q *Quantizer) Quantize(f *Frame) *IndexedFrame {
	out := &IndexedFrame{
		Width:   f.Width,
		Height:  f.Height,
		Indices: make([]byte, f.Width*f.Height),
	}

	samples := subsample(f)
	palette := medianCut(samples)
	copy(out.Palette[:], palette)

	for i := 0; i < len(out.Indices); i++ {
		r := f.Pix[i*4]
		g := f.Pix[i*4+1]
		b := f.Pix[i*4+2]
		out.Indices[i] = q.nearest(out.Palette[:], r, g, b)
	}

	return out
}

// subsample draws RGB triples from the frame at a stride that keeps the
// sample count near sampleBudget. Alpha is discarded.
func subsample(f *Frame) []RGB {
	pixels := f.Width * f.Height
	if pixels == 0 {
		return nil
	}

	stride := pixels / sampleBudget
	if stride < 1 {
		stride = 1
	}

	samples := make([]RGB, 0, pixels/stride+1)
	for i := 0; i < pixels; i += stride {
		samples = append(samples, RGB{f.Pix[i*4], f.Pix[i*4+1], f.Pix[i*4+2]})
	}
	return samples
}

// bucket is one median-cut cluster of sample colors.
type bucket struct {
	samples []RGB
}

// ranges returns the widest channel (0=R, 1=G, 2=B) and its value range.
func (b *bucket) ranges() (channel, span int) {
	if len(b.samples) == 0 {
		return 0, 0
	}
	var lo, hi [3]int
	for ch := 0; ch < 3; ch++ {
		lo[ch], hi[ch] = 255, 0
	}
	for _, s := range b.samples {
		for ch, v := range [3]int{int(s.R), int(s.G), int(s.B)} {
			if v < lo[ch] {
				lo[ch] = v
			}
			if v > hi[ch] {
				hi[ch] = v
			}
		}
	}
	channel, span = 0, hi[0]-lo[0]
	for ch := 1; ch < 3; ch++ {
		if hi[ch]-lo[ch] > span {
			channel, span = ch, hi[ch]-lo[ch]
		}
	}
	return channel, span
}

// channelValue returns one channel of a sample.
func channelValue(s RGB, ch int) uint8 {
	switch ch {
	case 0:
		return s.R
	case 1:
		return s.G
	default:
		return s.B
	}
}

// mean returns the per-channel arithmetic mean of the bucket, rounded.
func (b *bucket) mean() RGB {
	n := len(b.samples)
	if n == 0 {
		return RGB{}
	}
	var r, g, bl int
	for _, s := range b.samples {
		r += int(s.R)
		g += int(s.G)
		bl += int(s.B)
	}
	return RGB{
		R: uint8((r + n/2) / n),
		G: uint8((g + n/2) / n),
		B: uint8((bl + n/2) / n),
	}
}

// medianCut splits the sample set into up to 256 buckets and returns their
// mean colors in production order. A bucket with fewer than two members, or
// with zero range in every channel, is never split; plateau-heavy inputs may
// therefore yield fewer than 256 distinct colors even with abundant samples.
func medianCut(samples []RGB) []RGB {
	if len(samples) == 0 {
		return nil
	}

	buckets := []*bucket{{samples: samples}}
	for len(buckets) < PaletteSize {
		// Pick the bucket and channel with the largest value range.
		best, bestCh, bestSpan := -1, 0, 0
		for i, b := range buckets {
			if len(b.samples) < 2 {
				continue
			}
			ch, span := b.ranges()
			if span > bestSpan {
				best, bestCh, bestSpan = i, ch, span
			}
		}
		if best < 0 {
			break // nothing left to split
		}

		b := buckets[best]
		sort.Slice(b.samples, func(i, j int) bool {
			return channelValue(b.samples[i], bestCh) < channelValue(b.samples[j], bestCh)
		})
		mid := len(b.samples) / 2
		buckets[best] = &bucket{samples: b.samples[:mid]}
		buckets = append(buckets, &bucket{samples: b.samples[mid:]})
	}

	palette := make([]RGB, len(buckets))
	for i, b := range buckets {
		palette[i] = b.mean()
	}
	return palette
}

// cacheKey reduces a color to 5 bits per channel, giving a 15-bit key that
// tolerates small color noise while keeping the cache bounded.
func cacheKey(r, g, b uint8) uint16 {
	return uint16(r>>3)<<10 | uint16(g>>3)<<5 | uint16(b>>3)
}

// nearest finds the palette index closest to (r, g, b) by squared Euclidean
// distance, first index wins on ties. An exact match short-circuits the
// scan. Results are cached under a reduced-precision key shared across the
// frames of one conversion.
func (q *Quantizer) nearest(palette []RGB, r, g, b uint8) uint8 {
	key := cacheKey(r, g, b)

	q.mu.Lock()
	if idx, ok := q.cache[key]; ok {
		q.mu.Unlock()
		return idx
	}
	q.mu.Unlock()

	best, bestDist := 0, 1<<30
	for i, p := range palette {
		dr := int(p.R) - int(r)
		dg := int(p.G) - int(g)
		db := int(p.B) - int(b)
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}

	q.mu.Lock()
	q.cache[key] = uint8(best)
	q.mu.Unlock()
	return uint8(best)
}
