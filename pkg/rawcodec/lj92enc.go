package rawcodec

import(
	"bytes"
	"fmt"
)

// Encode compresses a w*h mosaic as LJ92. The mosaic is written as a
// two-component image of w/2 columns, so that each component carries
// one color of a Bayer row pair; prediction is from the left neighbor
// of the same component (predictor 1).
func Encode(samples []uint16, w, h, bpp int) ([]byte, error) {
	if err := checkBPP(bpp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if bpp < 2 {
		return nil, fmt.Errorf("%w: precision %d too low", ErrEncode, bpp)
	}
	if w <= 0 || h <= 0 || len(samples) < w*h {
		return nil, fmt.Errorf("%w: %d samples for a %dx%d frame", ErrEncode, len(samples), w, h)
	}

	nc := 2
	cols := w / 2
	if w%2 != 0 {
		nc, cols = 1, w
	}
	if cols > 0xFFFF || h > 0xFFFF {
		return nil, fmt.Errorf("%w: %dx%d too large", ErrEncode, w, h)
	}

	mask := 1<<uint(bpp) - 1
	diffs := make([]int, w*h)
	var freq [17]int
	initial := 1 << uint(bpp-1)

	for y:=0; y<h; y++ {
		for i:=0; i<w; i++ {
			v := int(samples[y*w+i]) & mask
			var pred int
			switch {
			case y == 0 && i < nc:
				pred = initial
			case i < nc:
				pred = int(samples[(y-1)*w+i]) & mask
			default:
				pred = int(samples[y*w+i-nc]) & mask
			}
			diff := int(int16(uint16(v - pred)))
			diffs[y*w+i] = diff
			freq[category(diff)]++
		}
	}

	t := buildOptimalTable(freq)

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, markerSOI})

	// DHT
	nvals := len(t.vals)
	buf.Write([]byte{0xFF, markerDHT, byte((19+nvals)>>8), byte(19+nvals), 0x00})
	for l:=1; l<=16; l++ {
		buf.WriteByte(byte(t.bits[l]))
	}
	buf.Write(t.vals)

	// SOF3
	sofLen := 8 + 3*nc
	buf.Write([]byte{0xFF, markerSOF3, byte(sofLen>>8), byte(sofLen), byte(bpp),
		byte(h>>8), byte(h), byte(cols>>8), byte(cols), byte(nc)})
	for c:=0; c<nc; c++ {
		buf.Write([]byte{byte(c+1), 0x11, 0x00})
	}

	// SOS
	sosLen := 6 + 2*nc
	buf.Write([]byte{0xFF, markerSOS, byte(sosLen>>8), byte(sosLen), byte(nc)})
	for c:=0; c<nc; c++ {
		buf.Write([]byte{byte(c+1), 0x00})
	}
	buf.Write([]byte{0x01, 0x00, 0x00}) // predictor 1, Se, Ah/Al

	bw := bitWriter{w: &buf}
	for _, diff := range diffs {
		s := category(diff)
		bw.put(uint32(t.code[s]), uint(t.size[s]))
		if s > 0 && s < 16 {
			v := diff
			if v < 0 {
				v += (1 << uint(s)) - 1
			}
			bw.put(uint32(v), uint(s))
		}
	}
	bw.flush()

	buf.Write([]byte{0xFF, markerEOI})
	return buf.Bytes(), nil
}

// category is the SSSS value, the number of bits needed for a difference
func category(diff int) int {
	if diff < 0 {
		diff = -diff
	}
	if diff == 32768 {
		return 16
	}
	n := 0
	for diff > 0 {
		n++
		diff >>= 1
	}
	return n
}

type bitWriter struct {
	w    *bytes.Buffer
	acc  uint32
	n    uint
}

func (bw *bitWriter)put(v uint32, n uint) {
	for n > 0 {
		take := n
		if take > 8 { take = 8 }
		n -= take
		bits := (v >> n) & (1<<take - 1)
		bw.acc = bw.acc<<take | bits
		bw.n += take
		for bw.n >= 8 {
			b := byte(bw.acc >> (bw.n - 8))
			bw.w.WriteByte(b)
			if b == 0xFF {
				bw.w.WriteByte(0x00)
			}
			bw.n -= 8
		}
	}
}

// flush pads the final byte with 1 bits
func (bw *bitWriter)flush() {
	if bw.n > 0 {
		bw.put(1<<(8-bw.n) - 1, 8-bw.n)
	}
	bw.acc = 0
}

// Compress encodes a frame for export
func Compress(samples []uint16, w, h, bpp int) ([]byte, error) {
	return Encode(samples, w, h, bpp)
}

// Decompress decodes an exported or camera-written LJ92 frame back into a w*h mosaic
func Decompress(data []byte, w, h int) ([]uint16, error) {
	return DecodeInto(data, w*h)
}
