package rawcodec

import(
	"errors"
	"testing"
)

func TestLJ92RoundTrip(t *testing.T) {
	tests := []struct{
		w, h, bpp int
	}{
		{16, 8, 14},
		{64, 33, 12},
		{15, 9, 14}, // odd width, one component
		{8, 8, 16},
		{2, 1, 10},
	}

	for _, tc := range tests {
		in := randomSamples(tc.w*tc.h, tc.bpp, int64(tc.w*100+tc.h))
		enc, err := Compress(in, tc.w, tc.h, tc.bpp)
		if err != nil {
			t.Fatalf("%dx%d@%d: encode: %v", tc.w, tc.h, tc.bpp, err)
		}

		img, err := Decode(enc)
		if err != nil {
			t.Fatalf("%dx%d@%d: decode: %v", tc.w, tc.h, tc.bpp, err)
		}
		if img.Samples() != tc.w*tc.h || img.Bits != tc.bpp {
			t.Errorf("%dx%d@%d: decoded %dx%dx%d@%d", tc.w, tc.h, tc.bpp, img.Width, img.Height, img.Components, img.Bits)
		}
		wantComps := 2
		if tc.w%2 != 0 {
			wantComps = 1
		}
		if img.Components != wantComps {
			t.Errorf("%dx%d: %d components, want %d", tc.w, tc.h, img.Components, wantComps)
		}

		out, err := Decompress(enc, tc.w, tc.h)
		if err != nil {
			t.Fatal(err)
		}
		for i := range in {
			if in[i] != out[i] {
				t.Fatalf("%dx%d@%d: sample %d is %d, want %d", tc.w, tc.h, tc.bpp, i, out[i], in[i])
			}
		}
	}
}

func TestLJ92FlatFrameCompresses(t *testing.T) {
	in := make([]uint16, 128*64)
	for i := range in {
		in[i] = 2048
	}
	enc, err := Encode(in, 128, 64, 14)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc) > len(in)/4 {
		t.Errorf("flat frame encoded to %d bytes", len(enc))
	}
	out, err := Decompress(enc, 128, 64)
	if err != nil || out[len(out)-1] != 2048 {
		t.Errorf("flat frame decode: %v", err)
	}
}

func TestLJ92CorruptStreams(t *testing.T) {
	good, _ := Encode(randomSamples(32*4, 14, 1), 32, 4, 14)

	sof0 := append([]byte{}, good...)
	for i:=0; i+1 < len(sof0); i++ {
		if sof0[i] == 0xFF && sof0[i+1] == markerSOF3 {
			sof0[i+1] = 0xC0
			break
		}
	}

	tests := map[string][]byte{
		"empty":     {},
		"no SOI":    {0x00, 0x11, 0x22, 0x33, 0x44},
		"baseline":  sof0,
		"truncated": good[:20],
	}
	for name, data := range tests {
		_, err := Decode(data)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("%s: err = %v, want ErrDecode", name, err)
			continue
		}
		var de DecodeError
		if !errors.As(err, &de) || de.Code != LJ92ErrorCorrupt {
			t.Errorf("%s: err = %#v, want a corrupt-stream DecodeError", name, err)
		}
	}
}

func TestLJ92FrameTooSmall(t *testing.T) {
	enc, _ := Encode(randomSamples(16*8, 14, 3), 16, 8, 14)
	_, err := DecodeInto(enc, 16*4)
	var de DecodeError
	if !errors.As(err, &de) || de.Code != LJ92ErrorTooWide {
		t.Errorf("err = %v, want TooWide", err)
	}
}

func TestLJ92StreamShorterThanFrame(t *testing.T) {
	enc, _ := Encode(randomSamples(16*4, 14, 3), 16, 4, 14)
	out, err := DecodeInto(enc, 16*8)
	var de DecodeError
	if out != nil || !errors.As(err, &de) || de.Code != LJ92ErrorCorrupt {
		t.Errorf("got %d samples, err = %v; want a corrupt-stream DecodeError", len(out), err)
	}
	if !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestEncodeRejects(t *testing.T) {
	if _, err := Encode(make([]uint16, 10), 4, 4, 14); !errors.Is(err, ErrEncode) {
		t.Errorf("short input: %v", err)
	}
	if _, err := Encode(make([]uint16, 16), 4, 4, 1); !errors.Is(err, ErrEncode) {
		t.Errorf("1-bit precision: %v", err)
	}
}

func TestOptimalHuffmanTable(t *testing.T) {
	freq := [17]int{1000, 500, 250, 125, 60, 30, 15, 8, 4, 2, 1, 1, 0, 0, 0, 0, 1}
	tbl := buildOptimalTable(freq)

	total := 0
	for l:=1; l<=16; l++ {
		total += tbl.bits[l]
	}
	if total != len(tbl.vals) || total != 13 {
		t.Fatalf("%d codes for %d symbols, want 13", total, len(tbl.vals))
	}

	// Kraft: the codes must fit, and leave room so that none is all ones
	kraft := 0.0
	for l:=1; l<=16; l++ {
		kraft += float64(tbl.bits[l]) / float64(int(1)<<uint(l))
	}
	if kraft >= 1.0 {
		t.Errorf("kraft sum %f, want < 1", kraft)
	}
	if tbl.size[0] > tbl.size[10] {
		t.Errorf("most frequent symbol has a longer code (%d) than a rare one (%d)", tbl.size[0], tbl.size[10])
	}
	for _, s := range tbl.vals {
		if tbl.size[s] == 0 || tbl.size[s] > 16 {
			t.Errorf("symbol %d has code length %d", s, tbl.size[s])
		}
	}
}
