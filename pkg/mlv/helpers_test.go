package mlv

import(
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/abworrall/mlvraw/pkg/rawcodec"
)

// Builders for synthetic recordings

const(
	testW   = 16
	testH   = 8
	testBPP = 14
)

func blockBytes(v interface{}) []byte {
	var b bytes.Buffer
	writeStruct(&b, v)
	return b.Bytes()
}

func mlviBlock(frames uint32, videoClass uint16) []byte {
	h := FileHeader{
		FileMagic:       [4]byte{'M', 'L', 'V', 'I'},
		BlockSize:       uint32(sizeMLVI),
		FileGuid:        0x1234,
		VideoClass:      videoClass,
		VideoFrameCount: frames,
		SourceFpsNom:    25000,
		SourceFpsDenom:  1000,
	}
	copy(h.VersionString[:], "v2.0")
	return blockBytes(h)
}

func rawiBlock(w, h, bpp int) []byte {
	r := RawImageInfo{BlockHeader: newHeader("RAWI", sizeRAWI, 0), XRes: uint16(w), YRes: uint16(h)}
	r.RawInfo.Width = int32(w)
	r.RawInfo.Height = int32(h)
	r.RawInfo.BitsPerPixel = int32(bpp)
	r.RawInfo.BlackLevel = 2048
	r.RawInfo.WhiteLevel = 15000
	r.RawInfo.CfaPattern = 0x02010100
	return blockBytes(r)
}

// testSamples is a recognisable mosaic for frame `n`
func testSamples(n int) []uint16 {
	s := make([]uint16, testW*testH)
	for i := range s {
		s[i] = uint16((n*131 + i*7) % (1 << testBPP))
	}
	return s
}

func vidfBlock(frameNumber uint32, ts uint64, payload []byte, frameSpace int) []byte {
	v := VideoFrameHeader{
		BlockHeader: newHeader("VIDF", sizeVIDF + frameSpace + len(payload), ts),
		FrameNumber: frameNumber,
		FrameSpace:  uint32(frameSpace),
	}
	out := blockBytes(v)
	out = append(out, make([]byte, frameSpace)...)
	return append(out, payload...)
}

func testFrame(n int, ts uint64) []byte {
	return vidfBlock(uint32(n), ts, rawcodec.Pack(testSamples(n), testBPP), 8)
}

func writeBlocks(t *testing.T, path string, blocks ...[]byte) {
	t.Helper()
	var b bytes.Buffer
	for _, bl := range blocks {
		b.Write(bl)
	}
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeTestClip writes a single-chunk recording of `n` frames, with ascending timestamps
func writeTestClip(t *testing.T, n int, extra ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mlv")
	blocks := [][]byte{mlviBlock(uint32(n), VideoClassRaw), rawiBlock(testW, testH, testBPP)}
	blocks = append(blocks, extra...)
	for i:=0; i<n; i++ {
		blocks = append(blocks, testFrame(i, uint64(1000 + i*40000)))
	}
	writeBlocks(t, path, blocks...)
	return path
}

func mustOpen(t *testing.T, path string) *Container {
	t.Helper()
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func samplesEqual(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
