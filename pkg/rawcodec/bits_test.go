package rawcodec

import(
	"math/rand"
	"testing"
)

func randomSamples(n, bpp int, seed int64) []uint16 {
	r := rand.New(rand.NewSource(seed))
	s := make([]uint16, n)
	for i := range s {
		s[i] = uint16(r.Intn(1 << uint(bpp)))
	}
	return s
}

// naivePixel reads sample i by walking the stream bit by bit: each
// little-endian word holds its bits MSB first.
func naivePixel(packed []byte, i, bpp int) uint16 {
	v := 0
	for b := i*bpp; b < (i+1)*bpp; b++ {
		w := int(packed[2*(b/16)]) | int(packed[2*(b/16)+1])<<8
		bit := (w >> uint(15 - b%16)) & 1
		v = v<<1 | bit
	}
	return uint16(v)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, bpp := range []int{10, 12, 14, 16} {
		for _, n := range []int{1, 7, 16, 333, 70000} {
			in := randomSamples(n, bpp, int64(n*bpp))
			packed := Pack(in, bpp)
			if len(packed) != PackedSize(n, 1, bpp) {
				t.Errorf("bpp %d n %d: packed %d bytes, PackedSize says %d", bpp, n, len(packed), PackedSize(n, 1, bpp))
			}
			out, err := Unpack(packed, bpp, n)
			if err != nil {
				t.Fatalf("bpp %d n %d: %v", bpp, n, err)
			}
			for i := range in {
				if in[i] != out[i] {
					t.Fatalf("bpp %d n %d: sample %d is %d, want %d", bpp, n, i, out[i], in[i])
				}
			}
		}
	}
}

func TestUnpackPixelMatchesBitReader(t *testing.T) {
	for _, bpp := range []int{10, 12, 14} {
		packed := Pack(randomSamples(97, bpp, 42), bpp)
		for i:=0; i<97; i++ {
			if got, want := UnpackPixel(packed, i, bpp), naivePixel(packed, i, bpp); got != want {
				t.Errorf("bpp %d pixel %d: %d, want %d", bpp, i, got, want)
			}
		}
	}
}

func TestPackKnownLayout(t *testing.T) {
	// Two 12-bit samples 0xABC, 0x123: the bit stream is ABC123(00)
	// as words 0xABC1, 0x2300, stored little-endian.
	got := Pack([]uint16{0xABC, 0x123}, 12)
	want := []byte{0xC1, 0xAB, 0x00, 0x23}
	if string(got) != string(want) {
		t.Errorf("Pack = % x, want % x", got, want)
	}
}

func TestUnpackErrors(t *testing.T) {
	if _, err := Unpack(make([]byte, 10), 14, 100); err == nil {
		t.Errorf("short buffer accepted")
	}
	if _, err := Unpack(make([]byte, 10), 17, 1); err == nil {
		t.Errorf("17 bpp accepted")
	}
}
