package gifenc

import "bytes"

// Container framing constants (GIF89a).
const (
	extensionIntroducer = 0x21
	graphicControlLabel = 0xF9
	applicationLabel    = 0xFF
	imageSeparator      = 0x2C
	trailerByte         = 0x3B

	// Logical screen descriptor flags: no global color table, color
	// resolution 7 (256-entry tables), not sorted, zero size field.
	screenFlags = 0x70

	// Image descriptor flags: local color table present, 2^(7+1)=256 entries.
	imageFlags = 0x87
)

var gif89aSignature = []byte("GIF89a")

// containerWriter assembles the binary GIF container. All multi-byte
// integers are little-endian.
type containerWriter struct {
	buf bytes.Buffer
}

func (w *containerWriter) writeByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *containerWriter) writeUint16(v int) {
	w.buf.WriteByte(byte(v))
	w.buf.WriteByte(byte(v >> 8))
}

// writeHeader emits the signature, the logical screen descriptor, and the
// NETSCAPE2.0 application extension declaring infinite looping. It is
// written once, before any frame.
func (w *containerWriter) writeHeader(width, height int) {
	w.buf.Write(gif89aSignature)

	w.writeUint16(width)
	w.writeUint16(height)
	w.writeByte(screenFlags)
	w.writeByte(0) // background color index
	w.writeByte(0) // pixel aspect ratio

	w.writeByte(extensionIntroducer)
	w.writeByte(applicationLabel)
	w.writeByte(11)
	w.buf.WriteString("NETSCAPE2.0")
	w.writeByte(3) // sub-block size
	w.writeByte(1) // sub-block index
	w.writeUint16(0) // loop count, 0 = forever
	w.writeByte(0) // block terminator
}

// writeFrame emits one frame group: graphic control extension, image
// descriptor, the 256-entry local color table, and the LZW bitstream.
func (w *containerWriter) writeFrame(frame *IndexedFrame, bitstream []byte, delayCS int) {
	w.writeByte(extensionIntroducer)
	w.writeByte(graphicControlLabel)
	w.writeByte(4)          // block size
	w.writeByte(0)          // no disposal method, no transparency
	w.writeUint16(delayCS)  // delay in centiseconds
	w.writeByte(0)          // transparent color index (unused)
	w.writeByte(0)          // block terminator

	w.writeByte(imageSeparator)
	w.writeUint16(0) // left position
	w.writeUint16(0) // top position
	w.writeUint16(frame.Width)
	w.writeUint16(frame.Height)
	w.writeByte(imageFlags)

	for _, c := range frame.Palette {
		w.writeByte(c.R)
		w.writeByte(c.G)
		w.writeByte(c.B)
	}

	w.buf.Write(bitstream)
}

// writeTrailer emits the single byte marking the end of the container.
func (w *containerWriter) writeTrailer() {
	w.writeByte(trailerByte)
}

func (w *containerWriter) bytes() []byte {
	return w.buf.Bytes()
}
