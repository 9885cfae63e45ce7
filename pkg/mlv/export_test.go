package mlv

import(
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abworrall/mlvraw/pkg/rawcodec"
)

func exportAndOpen(t *testing.T, c *Container, opt ExportOptions) *Container {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.mlv")
	if err := c.ExportFile(out, opt); err != nil {
		t.Fatalf("export %s: %v", opt.Mode, err)
	}
	return mustOpen(t, out)
}

func TestExportFastPassRange(t *testing.T) {
	c := mustOpen(t, writeTestClip(t, 10))
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	out := exportAndOpen(t, c, ExportOptions{Mode: ExportFastPass, Start: 3, End: 6, AppVersion: "1.2", Now: now})

	if out.FrameCount() != 4 || out.MLVI.VideoFrameCount != 4 {
		t.Fatalf("exported %d frames (header says %d), want 4", out.FrameCount(), out.MLVI.VideoFrameCount)
	}
	for i:=0; i<4; i++ {
		samples, _, err := out.ReadFrameSamples(i)
		if err != nil || !samplesEqual(samples, testSamples(i+2)) {
			t.Errorf("exported frame %d != source frame %d (err %v)", i, i+2, err)
		}
		if out.Idx.Video[i].FrameOffset != out.Idx.Video[i].BlockOffset + uint64(sizeVIDF) {
			t.Errorf("exported frame %d still has frameSpace", i)
		}
	}

	vers, err := out.Versions()
	if err != nil || len(vers) != 1 {
		t.Fatalf("Versions = %v, %v", vers, err)
	}
	want := "exported by mlvraw version 1.2 on 14:05:06 Mar  9 2024; export mode: MLV_FAST_PASS (audio: OFF) "
	if vers[0] != want {
		t.Errorf("provenance\n got %q\nwant %q", vers[0], want)
	}
	if out.MLVI.FileNum != 0 || out.MLVI.FileCount != 1 {
		t.Errorf("file num/count = %d/%d", out.MLVI.FileNum, out.MLVI.FileCount)
	}
}

func TestExportCompressDecompressRoundTrip(t *testing.T) {
	c := mustOpen(t, writeTestClip(t, 5))

	comp := exportAndOpen(t, c, ExportOptions{Mode: ExportCompress})
	if !comp.IsCompressed() {
		t.Fatalf("compressed export has videoClass 0x%x", comp.MLVI.VideoClass)
	}
	for i:=0; i<5; i++ {
		samples, _, err := comp.ReadFrameSamples(i)
		if err != nil || !samplesEqual(samples, testSamples(i)) {
			t.Errorf("compressed frame %d does not decode to the original (err %v)", i, err)
		}
	}

	if err := comp.ExportFile(filepath.Join(t.TempDir(), "x.mlv"), ExportOptions{Mode: ExportCompress}); !errors.Is(err, ErrExport) {
		t.Errorf("compressing a compressed clip: err = %v, want ErrExport", err)
	}

	decomp := exportAndOpen(t, comp, ExportOptions{Mode: ExportDecompress})
	if decomp.IsCompressed() || decomp.MLVI.VideoClass != VideoClassRaw {
		t.Fatalf("decompressed export has videoClass 0x%x", decomp.MLVI.VideoClass)
	}
	for i:=0; i<5; i++ {
		a, _ := c.FrameAt(i)
		b, _ := decomp.FrameAt(i)
		if string(a.Payload) != string(b.Payload) {
			t.Errorf("frame %d: decompressed payload differs from the original packing", i)
		}
	}
}

func TestExportAveragedFrame(t *testing.T) {
	c := mustOpen(t, writeTestClip(t, 4))
	out := exportAndOpen(t, c, ExportOptions{Mode: ExportAveragedFrame, Start: 1, End: 3})

	if out.FrameCount() != 1 || out.MLVI.VideoFrameCount != 1 {
		t.Fatalf("averaged export has %d frames", out.FrameCount())
	}
	got, rf, err := out.ReadFrameSamples(0)
	if err != nil {
		t.Fatal(err)
	}
	if rf.Header.FrameNumber != 3 {
		t.Errorf("frame number %d, want the number of frames averaged (3)", rf.Header.FrameNumber)
	}
	s0, s1, s2 := testSamples(0), testSamples(1), testSamples(2)
	for i := range got {
		want := uint16((uint64(s0[i]) + uint64(s1[i]) + uint64(s2[i]) + 1) / 3)
		if got[i] != want {
			t.Fatalf("pixel %d = %d, want %d", i, got[i], want)
		}
	}
	vers, _ := out.Versions()
	if len(vers) == 0 || !strings.Contains(vers[0], "MLV_AVERAGED_FRAME (audio: OFF)") {
		t.Errorf("provenance %v", vers)
	}
}

func TestExportInternalDarkFrame(t *testing.T) {
	c := mustOpen(t, writeTestClip(t, 2))
	if err := c.ExportFile(filepath.Join(t.TempDir(), "df.mlv"), ExportOptions{Mode: ExportDarkFrameInternal}); !errors.Is(err, ErrExport) {
		t.Fatalf("DF_INT without DARK: err = %v, want ErrExport", err)
	}

	dark := make([]uint16, testW*testH)
	for i := range dark {
		dark[i] = uint16(2000 + i%5)
	}
	packed := rawcodec.Pack(dark, testBPP)
	dh := DarkFrameHeader{
		BlockHeader:     newHeader("DARK", sizeDARK + len(packed), 0),
		SamplesAveraged: 64,
		CameraModel:     0x80000285,
		XRes:            testW,
		YRes:            testH,
		RawWidth:        testW,
		RawHeight:       testH,
		BitsPerPixel:    testBPP,
		BlackLevel:      2000,
		WhiteLevel:      15000,
		SourceFpsNom:    24000,
		SourceFpsDenom:  1001,
		IsoValue:        1600,
	}
	withDark := mustOpen(t, writeTestClip(t, 2, append(blockBytes(dh), packed...)))
	out := exportAndOpen(t, withDark, ExportOptions{Mode: ExportDarkFrameInternal})

	got, rf, err := out.ReadFrameSamples(0)
	if err != nil {
		t.Fatal(err)
	}
	if !samplesEqual(got, dark) {
		t.Errorf("exported dark frame differs from the DARK block")
	}
	if rf.Header.FrameNumber != 64 {
		t.Errorf("frame number %d, want samplesAveraged", rf.Header.FrameNumber)
	}
	if out.MLVI.SourceFpsNom != 24000 || out.ISO() != 1600 || out.CameraModel() != 0x80000285 {
		t.Errorf("DARK overrides not applied: fps %d, iso %d, model %x", out.MLVI.SourceFpsNom, out.ISO(), out.CameraModel())
	}
}

func TestExportEmbedsExternalDarkFrame(t *testing.T) {
	c := mustOpen(t, writeTestClip(t, 3))
	df := &DarkFrame{
		Header:  DarkFrameHeader{XRes: testW, YRes: testH, BitsPerPixel: testBPP, SamplesAveraged: 8},
		Samples: testSamples(42),
	}
	out := exportAndOpen(t, c, ExportOptions{Mode: ExportFastPass, DarkFrame: df})
	if out.DARK == nil || out.DARK.SamplesAveraged != 8 {
		t.Fatalf("DARK block not embedded: %+v", out.DARK)
	}
	if out.FrameCount() != 3 {
		t.Errorf("frames = %d", out.FrameCount())
	}
}

func TestParseExportMode(t *testing.T) {
	for _, m := range []ExportMode{ExportFastPass, ExportCompress, ExportDecompress, ExportAveragedFrame, ExportDarkFrameInternal} {
		got, err := ParseExportMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseExportMode(%s) = %v, %v", m, got, err)
		}
	}
	if _, err := ParseExportMode("bogus"); err == nil {
		t.Errorf("expected an error for a bogus mode")
	}
}
