package pipeline

import(
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/abworrall/mlvraw/pkg/debayer"
	"github.com/abworrall/mlvraw/pkg/ecolor"
	"github.com/abworrall/mlvraw/pkg/mlv"
	"github.com/abworrall/mlvraw/pkg/rawcodec"
)

const(
	testBlack = 2048
	testWhite = 15000
	testBPP   = 14

	// 5D Mark III
	testModel = 0x80000285
)

type testClip struct {
	W, H   int
	Model  uint32
	Frames [][]uint16
	RAWC   *mlv.RawCapture
	Name   string
}

func tag(s string) [4]byte {
	var t [4]byte
	copy(t[:], s)
	return t
}

func (tc testClip)write(t *testing.T) string {
	t.Helper()
	var b bytes.Buffer
	put := func(v interface{}) { binary.Write(&b, binary.LittleEndian, v) }

	put(mlv.FileHeader{
		FileMagic: tag("MLVI"), BlockSize: uint32(binary.Size(mlv.FileHeader{})),
		FileGuid: 1234, VideoClass: mlv.VideoClassRaw, VideoFrameCount: uint32(len(tc.Frames)),
		SourceFpsNom: 25000, SourceFpsDenom: 1000,
	})

	rawi := mlv.RawImageInfo{XRes: uint16(tc.W), YRes: uint16(tc.H)}
	rawi.BlockHeader = mlv.BlockHeader{Type: tag("RAWI"), BlockSize: uint32(binary.Size(rawi))}
	rawi.RawInfo.Width, rawi.RawInfo.Height = int32(tc.W), int32(tc.H)
	rawi.RawInfo.BitsPerPixel = testBPP
	rawi.RawInfo.BlackLevel, rawi.RawInfo.WhiteLevel = testBlack, testWhite
	rawi.RawInfo.CfaPattern = int32(debayer.RGGB.Pattern())
	put(rawi)

	if tc.RAWC != nil {
		rawc := *tc.RAWC
		rawc.BlockHeader = mlv.BlockHeader{Type: tag("RAWC"), BlockSize: uint32(binary.Size(rawc))}
		put(rawc)
	}

	idnt := mlv.Identity{CameraModel: tc.Model}
	idnt.BlockHeader = mlv.BlockHeader{Type: tag("IDNT"), BlockSize: uint32(binary.Size(idnt))}
	put(idnt)

	for i, f := range tc.Frames {
		payload := rawcodec.Pack(f, testBPP)
		vidf := mlv.VideoFrameHeader{FrameNumber: uint32(i)}
		vidf.BlockHeader = mlv.BlockHeader{Type: tag("VIDF"), BlockSize: uint32(binary.Size(vidf) + len(payload)), Timestamp: uint64(1000 * (i + 1))}
		put(vidf)
		b.Write(payload)
	}

	name := tc.Name
	if name == "" {
		name = "clip.mlv"
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func constFrame(n int, v uint16) []uint16 {
	s := make([]uint16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// neutralFrame is a grey card lit by the calibration's own illuminant:
// each photosite at black + k times the camera neutral for its colour.
func neutralFrame(t *testing.T, w, h int, k float64) []uint16 {
	t.Helper()
	cal, err := ecolor.BuiltinCameras.Calibration(testModel)
	if err != nil {
		t.Fatal(err)
	}
	n := cal.NeutralRGB
	s := make([]uint16, w*h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			s[y*w + x] = uint16(math.Round(testBlack + k*n[debayer.RGGB.Color(x, y)]))
		}
	}
	return s
}

func testConfig() Config {
	c := NewConfig()
	c.Workers = 2
	c.Colorspace = "rec709"
	return c
}

func openClip(t *testing.T, path string, cfg Config) *Reader {
	t.Helper()
	r, err := Open(path, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}
