package rawproc

import(
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/abworrall/mlvraw/pkg/debayer"
	"github.com/abworrall/mlvraw/pkg/mlv"
	"github.com/abworrall/mlvraw/pkg/rawcodec"
)

const(
	testBlack = 2048
	testWhite = 15000
	testBPP   = 14
)

func tag(s string) [4]byte {
	var t [4]byte
	copy(t[:], s)
	return t
}

// writeClip writes a minimal uncompressed recording holding `frames`
func writeClip(t *testing.T, w, h int, model uint32, frames ...[]uint16) string {
	t.Helper()
	var b bytes.Buffer
	put := func(v interface{}) { binary.Write(&b, binary.LittleEndian, v) }

	put(mlv.FileHeader{
		FileMagic: tag("MLVI"), BlockSize: uint32(binary.Size(mlv.FileHeader{})),
		FileGuid: 77, VideoClass: mlv.VideoClassRaw, VideoFrameCount: uint32(len(frames)),
		SourceFpsNom: 24000, SourceFpsDenom: 1001,
	})

	rawi := mlv.RawImageInfo{XRes: uint16(w), YRes: uint16(h)}
	rawi.BlockHeader = mlv.BlockHeader{Type: tag("RAWI"), BlockSize: uint32(binary.Size(rawi))}
	rawi.RawInfo.Width, rawi.RawInfo.Height = int32(w), int32(h)
	rawi.RawInfo.BitsPerPixel = testBPP
	rawi.RawInfo.BlackLevel, rawi.RawInfo.WhiteLevel = testBlack, testWhite
	rawi.RawInfo.CfaPattern = int32(debayer.RGGB.Pattern())
	put(rawi)

	idnt := mlv.Identity{CameraModel: model}
	idnt.BlockHeader = mlv.BlockHeader{Type: tag("IDNT"), BlockSize: uint32(binary.Size(idnt))}
	put(idnt)

	for i, f := range frames {
		payload := rawcodec.Pack(f, testBPP)
		vidf := mlv.VideoFrameHeader{FrameNumber: uint32(i)}
		vidf.BlockHeader = mlv.BlockHeader{Type: tag("VIDF"), BlockSize: uint32(binary.Size(vidf) + len(payload)), Timestamp: uint64(1 + i)}
		put(vidf)
		b.Write(payload)
	}

	path := filepath.Join(t.TempDir(), "dark.mlv")
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func constSamples(n int, v uint16) []uint16 {
	s := make([]uint16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

var flatRGB = [3]uint16{3000, 5000, 4000}

func flatMosaic(t *testing.T, w, h int) *Mosaic {
	t.Helper()
	s := make([]uint16, w*h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			s[y*w+x] = flatRGB[debayer.RGGB.Color(x, y)]
		}
	}
	m, err := NewMosaic(s, w, h, debayer.RGGB, testBlack, testWhite)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func sameMosaic(a, b *Mosaic, tol float32) bool {
	if len(a.Pix) != len(b.Pix) || a.White != b.White || a.Black != b.Black {
		return false
	}
	for i := range a.Pix {
		d := a.Pix[i] - b.Pix[i]
		if d > tol || d < -tol {
			return false
		}
	}
	return true
}
