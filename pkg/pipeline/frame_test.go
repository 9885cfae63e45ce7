package pipeline

import(
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lmittmann/ppm"
	"github.com/mdouchement/hdr/codec/rgbe"
	"golang.org/x/image/tiff"

	"github.com/abworrall/mlvraw/pkg/ecolor"
	"github.com/abworrall/mlvraw/pkg/mlv"
)

func testFrame(w, h int, cs ecolor.Colorspace) *Frame {
	f := NewBlackFrame(0, w, h, cs)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			i := 3*(y*w + x)
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = float32(x)/float32(w), 0.5, 2.0 // blue is over white
		}
	}
	return f
}

func TestFrameImplementsImage(t *testing.T) {
	f := testFrame(8, 4, ecolor.Rec709)
	var img image.Image = f
	if img.Bounds() != image.Rect(0, 0, 8, 4) || f.Size() != 32 {
		t.Errorf("bounds %v, size %d", img.Bounds(), f.Size())
	}
	c := f.RGBAt(4, 1)
	if c.R != 0.5 || c.G != 0.5 || c.B != 2 {
		t.Errorf("RGBAt = %v", c)
	}
	if r, _, _, _ := img.At(4, 1).RGBA(); r == 0 {
		t.Errorf("At(4,1) has no red")
	}
}

func TestFrameDisplay(t *testing.T) {
	f := testFrame(4, 2, ecolor.Rec709)
	if d, _ := f.Display(); d != f {
		t.Error("rec709 frames should display as they are")
	}

	// White in AP0 is white in sRGB
	ap0 := NewBlackFrame(0, 2, 2, ecolor.ACESAP0)
	for i := range ap0.Pix {
		ap0.Pix[i] = 0.25
	}
	d, err := ap0.Display()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range d.Pix {
		if v < 0.249 || v > 0.251 {
			t.Fatalf("display pix %d = %f", i, v)
		}
	}
	if ap0.Pix[0] != 0.25 {
		t.Error("Display changed the original frame")
	}
}

func TestFrameWriters(t *testing.T) {
	dir := t.TempDir()
	f := testFrame(16, 8, ecolor.Rec709)

	hdrFile := filepath.Join(dir, "f.hdr")
	if err := f.WriteHDR(hdrFile); err != nil {
		t.Fatal(err)
	}
	r, _ := os.Open(hdrFile)
	img, err := rgbe.Decode(r)
	r.Close()
	if err != nil || img.Bounds() != f.Bounds() {
		t.Errorf("hdr: %v, %v", err, img)
	}

	tiffFile := filepath.Join(dir, "f.tiff")
	if err := f.WriteTIFF(tiffFile); err != nil {
		t.Fatal(err)
	}
	r, _ = os.Open(tiffFile)
	timg, err := tiff.Decode(r)
	r.Close()
	if err != nil {
		t.Fatal(err)
	}
	red, green, blue, _ := timg.At(8, 3).RGBA()
	if red != 0x8000 || green != 0x8000 || blue != 0xFFFF {
		t.Errorf("tiff (8,3) = %04x %04x %04x", red, green, blue)
	}

	ppmFile := filepath.Join(dir, "f.ppm")
	if err := f.WritePPM(ppmFile); err != nil {
		t.Fatal(err)
	}
	r, _ = os.Open(ppmFile)
	pimg, err := ppm.Decode(r)
	r.Close()
	if err != nil {
		t.Fatal(err)
	}
	// 0.5 linear is 188 in sRGB
	if _, g, _, _ := pimg.At(1, 1).RGBA(); g>>8 != 188 {
		t.Errorf("ppm green = %d", g>>8)
	}
}

func TestWritePreviewPNG(t *testing.T) {
	dir := t.TempDir()
	f := testFrame(30, 18, ecolor.ACESAP1)
	f.AspectRatio = 5.0 / 3.0

	for _, tm := range []string{"linear", "reinhard05"} {
		out := filepath.Join(dir, tm + ".png")
		if err := f.WritePreviewPNG(out, tm, "frame 0"); err != nil {
			t.Fatalf("%s: %v", tm, err)
		}
		r, _ := os.Open(out)
		cfg, err := png.DecodeConfig(r)
		r.Close()
		if err != nil || cfg.Width != 30 || cfg.Height != 30 {
			t.Errorf("%s: %v, %dx%d", tm, err, cfg.Width, cfg.Height)
		}
	}

	if err := f.WritePreviewPNG(filepath.Join(dir, "x.png"), "fattal02", ""); err == nil {
		t.Error("no error for an unknown tonemapper")
	}
}

func TestStretchToAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 6))
	if StretchToAspect(img, 1) != image.Image(img) || StretchToAspect(img, 0) != image.Image(img) {
		t.Error("square pixels should be left alone")
	}
	if b := StretchToAspect(img, 5.0/3.0).Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Errorf("stretched to %v", b)
	}
}

func TestLevelHistograms(t *testing.T) {
	n := tw * th
	path := testClip{W: tw, H: th, Model: testModel, Frames: [][]uint16{constFrame(n, 3000)}}.write(t)
	c, err := mlv.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	hists, err := LevelHistograms(c, 0)
	if err != nil || len(hists) != 4 {
		t.Fatalf("%d histograms, %v", len(hists), err)
	}
	report, err := HistogramReport(c, 7)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range append(CFASiteNames[:], "frame 0", "RGGB") {
		if !strings.Contains(report, s) {
			t.Errorf("report lacks %q:\n%s", s, report)
		}
	}
}

func TestDecodedFrameRoundTripsThroughTIFF(t *testing.T) {
	path := testClip{W: tw, H: th, Model: testModel, Frames: [][]uint16{neutralFrame(t, tw, th, greyK)}}.write(t)
	cfg := testConfig()
	r := openClip(t, path, cfg)

	f, err := r.DecodeFrame(context.Background(), 0, cfg.RawInfo(), ecolor.Rec709)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "grey.tiff")
	if err := f.WriteTIFF(out); err != nil {
		t.Fatal(err)
	}
	fh, _ := os.Open(out)
	defer fh.Close()
	img, err := tiff.Decode(fh)
	if err != nil {
		t.Fatal(err)
	}
	red, green, blue, _ := img.At(tw/2, th/2).RGBA()
	wantF := greyK / (testWhite - testBlack) * 0xFFFF
	want := uint32(wantF)
	for _, v := range []uint32{red, green, blue} {
		if v + 200 < want || v > want + 200 {
			t.Errorf("grey came back as %d %d %d, wanted %d", red, green, blue, want)
		}
	}
}
