package gifenc

const (
	maxCodeWidth = 12              // GIF caps code width at 12 bits
	maxDictSize  = 1 << maxCodeWidth // 4096 entries before a forced reset
	maxSubBlock  = 255             // data bytes per container sub-block
)

// lzwEncoder holds the dictionary and bit-packing state for one frame's
// compression pass. Codes are packed least-significant-bit first into the
// rolling accumulator; completed bytes are grouped into length-prefixed
// sub-blocks of at most 255 bytes.
type lzwEncoder struct {
	minCodeSize int
	clearCode   uint32
	endCode     uint32

	dict  map[uint32]uint32 // (prefix code << 8 | next symbol) -> code
	next  uint32            // next assignable code
	width uint              // current code width in bits

	acc   uint32 // pending bits, LSB first
	nbits uint   // number of pending bits in acc

	block []byte // current sub-block, flushed at maxSubBlock bytes
	out   []byte
}

// compressIndices compresses a palette-index stream with the GIF variant of
// LZW. The output starts with the one-byte minimum code size, followed by
// the sub-blocked bitstream and a zero-length terminator block.
func compressIndices(indices []byte, colorDepth int) []byte {
	minCodeSize := colorDepth
	if minCodeSize < 2 {
		minCodeSize = 2
	}

	e := &lzwEncoder{
		minCodeSize: minCodeSize,
		clearCode:   1 << uint(minCodeSize),
		block:       make([]byte, 0, maxSubBlock),
		out:         make([]byte, 0, len(indices)/4+64),
	}
	e.endCode = e.clearCode + 1

	e.out = append(e.out, byte(minCodeSize))
	e.reset()
	e.emit(e.clearCode)

	if len(indices) > 0 {
		prefix := uint32(indices[0])
		for _, sym := range indices[1:] {
			key := prefix<<8 | uint32(sym)
			if code, ok := e.dict[key]; ok {
				prefix = code
				continue
			}

			e.emit(prefix)
			if e.grow() {
				e.dict[key] = e.next
			} else {
				// Dictionary would overflow 4096 entries: signal a
				// reset and start over from the current symbol.
				e.emit(e.clearCode)
				e.reset()
			}
			prefix = uint32(sym)
		}

		e.emit(prefix)
		e.grow()
	}

	e.emit(e.endCode)
	e.flush()
	return e.out
}

// reset restores the initial dictionary (identity mapping for all symbols
// below the clear code, implied) and the initial code width.
func (e *lzwEncoder) reset() {
	e.dict = make(map[uint32]uint32, maxDictSize)
	e.next = e.endCode // next assignable code is endCode+1, see grow
	e.width = uint(e.minCodeSize) + 1
}

// grow advances the next-code counter and widens the code size when the
// next code would exceed the current width's range. It reports false when
// the dictionary is full and a reset is required; in that case no new code
// may be assigned.
func (e *lzwEncoder) grow() bool {
	e.next++
	if e.next < 1<<e.width {
		return true
	}
	if e.width < maxCodeWidth {
		e.width++
		return true
	}
	return e.next < maxDictSize
}

// emit packs one code of the current width into the bitstream.
func (e *lzwEncoder) emit(code uint32) {
	e.acc |= code << e.nbits
	e.nbits += e.width
	for e.nbits >= 8 {
		e.writeByte(byte(e.acc))
		e.acc >>= 8
		e.nbits -= 8
	}
}

// writeByte appends one completed byte to the current sub-block, flushing
// the block when it reaches the 255-byte limit.
func (e *lzwEncoder) writeByte(b byte) {
	e.block = append(e.block, b)
	if len(e.block) == maxSubBlock {
		e.flushBlock()
	}
}

func (e *lzwEncoder) flushBlock() {
	if len(e.block) == 0 {
		return
	}
	e.out = append(e.out, byte(len(e.block)))
	e.out = append(e.out, e.block...)
	e.block = e.block[:0]
}

// flush drains the remaining bits, closes the final sub-block, and writes
// the zero-length block that terminates the sub-block sequence.
func (e *lzwEncoder) flush() {
	if e.nbits > 0 {
		e.writeByte(byte(e.acc))
		e.acc, e.nbits = 0, 0
	}
	e.flushBlock()
	e.out = append(e.out, 0)
}
