package gifenc

import (
	"bytes"
	"testing"
)

// buildContainer assembles a container directly through the writer, without
// the pipeline, for structural checks.
func buildContainer(t *testing.T, frames []*IndexedFrame, width, height, delayCS int) []byte {
	t.Helper()

	var w containerWriter
	w.writeHeader(width, height)
	for _, f := range frames {
		bitstream := compressIndices(f.Indices, colorDepth)
		w.writeFrame(f, bitstream, delayCS)
	}
	w.writeTrailer()
	return w.bytes()
}

// walkContainer structurally parses the container, returning the number of
// image descriptor blocks. A byte scan for 0x2C would miscount, since
// palette and bitstream bytes may contain that value.
func walkContainer(t *testing.T, data []byte) (imageBlocks int) {
	t.Helper()

	if !bytes.HasPrefix(data, gif89aSignature) {
		t.Fatalf("container starts with %q, want %q", data[:6], gif89aSignature)
	}
	pos := 6 + 7 // signature + logical screen descriptor (no global table)

	skipSubBlocks := func() {
		for {
			if pos >= len(data) {
				t.Fatal("unterminated sub-block sequence")
			}
			size := int(data[pos])
			pos++
			if size == 0 {
				return
			}
			pos += size
		}
	}

	for pos < len(data) {
		switch data[pos] {
		case extensionIntroducer:
			pos += 2 // introducer + label
			skipSubBlocks()
		case imageSeparator:
			imageBlocks++
			pos += 10 // separator + position + dimensions + flags
			pos += PaletteSize * 3
			pos++ // LZW minimum code size
			skipSubBlocks()
		case trailerByte:
			if pos != len(data)-1 {
				t.Fatalf("trailer at offset %d, but container has %d bytes", pos, len(data))
			}
			return imageBlocks
		default:
			t.Fatalf("unexpected block introducer 0x%02X at offset %d", data[pos], pos)
		}
	}
	t.Fatal("container has no trailer byte")
	return 0
}

func quantizedSolid(width, height int, c RGB) *IndexedFrame {
	q := NewQuantizer()
	return q.Quantize(solidFrame(width, height, c))
}

func TestContainerStructure(t *testing.T) {
	tests := []struct {
		name   string
		frames []*IndexedFrame
	}{
		{"single frame", []*IndexedFrame{quantizedSolid(8, 6, RGB{255, 0, 0})}},
		{"three frames", []*IndexedFrame{
			quantizedSolid(8, 6, RGB{255, 0, 0}),
			quantizedSolid(8, 6, RGB{0, 255, 0}),
			quantizedSolid(8, 6, RGB{0, 0, 255}),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildContainer(t, tt.frames, 8, 6, 10)

			if got := walkContainer(t, data); got != len(tt.frames) {
				t.Errorf("found %d image blocks, want %d", got, len(tt.frames))
			}
			if data[len(data)-1] != trailerByte {
				t.Errorf("last byte = 0x%02X, want 0x%02X", data[len(data)-1], trailerByte)
			}
		})
	}
}

func TestContainerHeaderLayout(t *testing.T) {
	data := buildContainer(t, []*IndexedFrame{quantizedSolid(300, 130, RGB{1, 2, 3})}, 300, 130, 10)

	// Little-endian logical screen dimensions.
	if w := int(data[6]) | int(data[7])<<8; w != 300 {
		t.Errorf("screen width = %d, want 300", w)
	}
	if h := int(data[8]) | int(data[9])<<8; h != 130 {
		t.Errorf("screen height = %d, want 130", h)
	}
	if data[10] != screenFlags {
		t.Errorf("screen flags = 0x%02X, want 0x%02X", data[10], screenFlags)
	}

	// The NETSCAPE2.0 looping extension sits right after the descriptor,
	// before any frame, with loop count zero (loop forever).
	ext := data[13:]
	if ext[0] != extensionIntroducer || ext[1] != applicationLabel || ext[2] != 11 {
		t.Fatalf("expected application extension after screen descriptor, got % X", ext[:3])
	}
	if string(ext[3:14]) != "NETSCAPE2.0" {
		t.Errorf("application identifier = %q", ext[3:14])
	}
	if ext[14] != 3 || ext[15] != 1 || ext[16] != 0 || ext[17] != 0 || ext[18] != 0 {
		t.Errorf("loop sub-block = % X, want 03 01 00 00 00", ext[14:19])
	}
}

func TestContainerFrameLayout(t *testing.T) {
	frame := quantizedSolid(4, 4, RGB{9, 8, 7})
	data := buildContainer(t, []*IndexedFrame{frame}, 4, 4, 25)

	// Graphic control extension follows the looping extension.
	gce := data[13+19:]
	if gce[0] != extensionIntroducer || gce[1] != graphicControlLabel {
		t.Fatalf("expected graphic control extension, got % X", gce[:2])
	}
	if gce[2] != 4 {
		t.Errorf("GCE block size = %d, want 4", gce[2])
	}
	if gce[3] != 0 {
		t.Errorf("GCE packed flags = 0x%02X, want 0 (no disposal, no transparency)", gce[3])
	}
	if delay := int(gce[4]) | int(gce[5])<<8; delay != 25 {
		t.Errorf("delay = %d centiseconds, want 25", delay)
	}

	desc := gce[8:]
	if desc[0] != imageSeparator {
		t.Fatalf("expected image separator, got 0x%02X", desc[0])
	}
	if x := int(desc[1]) | int(desc[2])<<8; x != 0 {
		t.Errorf("image left = %d, want 0", x)
	}
	if desc[9] != imageFlags {
		t.Errorf("image flags = 0x%02X, want 0x%02X (local 256-entry table)", desc[9], imageFlags)
	}

	// Local color table: first entry is the frame's single color.
	table := desc[10:]
	if table[0] != 9 || table[1] != 8 || table[2] != 7 {
		t.Errorf("palette entry 0 = %v, want {9 8 7}", table[:3])
	}
}
