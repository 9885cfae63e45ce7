package pipeline

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/lmittmann/ppm"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/abworrall/mlvraw/pkg/ecolor"
	"github.com/abworrall/mlvraw/pkg/emath"
)

// Frame is one developed frame: interleaved linear float RGB in the
// output colorspace, 1.0 being the white level. Implements image.Image
// and hdr.Image.
type Frame struct {
	Index       int // after clamping
	Timestamp   uint64
	Width       int
	Height      int
	Pix         []float32
	Colorspace  ecolor.Colorspace
	AspectRatio float64 // from the RAWC block; 0 or 1 means square pixels
}

func NewBlackFrame(index, w, h int, cs ecolor.Colorspace) *Frame {
	return &Frame{Index: index, Width: w, Height: h, Pix: make([]float32, 3*w*h), Colorspace: cs}
}

func (f *Frame)String() string {
	return fmt.Sprintf("frame %d (%dx%d, %s, ts %d)", f.Index, f.Width, f.Height, f.Colorspace, f.Timestamp)
}

// Implement image.Image
func (f *Frame)ColorModel() color.Model       { return hdrcolor.RGBModel }
func (f *Frame)Bounds() image.Rectangle       { return image.Rect(0, 0, f.Width, f.Height) }
func (f *Frame)At(x, y int) color.Color       { return f.HDRAt(x, y) }

// Implement hdr.Image
func (f *Frame)HDRAt(x, y int) hdrcolor.Color { return f.RGBAt(x, y) }
func (f *Frame)Size() int                     { return f.Width * f.Height }

func (f *Frame)RGBAt(x, y int) hdrcolor.RGB {
	i := 3*(y*f.Width + x)
	return hdrcolor.RGB{R: float64(f.Pix[i]), G: float64(f.Pix[i+1]), B: float64(f.Pix[i+2])}
}

// Display returns the frame converted to linear sRGB(D65), for things
// that get looked at rather than graded.
func (f *Frame)Display() (*Frame, error) {
	if f.Colorspace == ecolor.Rec709 {
		return f, nil
	}
	toXYZ, err := ecolor.ToXYZD50(f.Colorspace)
	if err != nil {
		return nil, err
	}
	d := *f
	d.Pix = append([]float32(nil), f.Pix...)
	d.Colorspace = ecolor.Rec709
	ecolor.Developer{Gains: emath.Vec3{1, 1, 1}, Matrix: ecolor.XYZD50_to_linear_sRGBD65.Mult(toXYZ)}.DevelopPix(d.Pix)
	return &d, nil
}

// WriteHDR writes a Radiance .hdr file, with no loss of range
func (f *Frame)WriteHDR(filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("Frame.WriteHDR, open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, f)
	}
}

func to16(v float32) uint16 {
	return uint16(emath.Clamp(float64(v), 0, 1) * 0xFFFF + 0.5)
}

// RGBA64 is the frame clipped to [0,1], still linear
func (f *Frame)RGBA64() *image.RGBA64 {
	img := image.NewRGBA64(f.Bounds())
	for y:=0; y<f.Height; y++ {
		for x:=0; x<f.Width; x++ {
			i := 3*(y*f.Width + x)
			img.SetRGBA64(x, y, color.RGBA64{R: to16(f.Pix[i]), G: to16(f.Pix[i+1]), B: to16(f.Pix[i+2]), A: 0xFFFF})
		}
	}
	return img
}

// WriteTIFF writes a 16-bit linear TIFF in the frame's own colorspace
func (f *Frame)WriteTIFF(filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("Frame.WriteTIFF, open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return tiff.Encode(writer, f.RGBA64(), &tiff.Options{Compression: tiff.Deflate})
	}
}

// SRGB8 is the frame as a gamma encoded 8-bit sRGB image, clipped at white
func (f *Frame)SRGB8() (*image.RGBA, error) {
	d, err := f.Display()
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(d.Bounds())
	for y:=0; y<d.Height; y++ {
		for x:=0; x<d.Width; x++ {
			i := 3*(y*d.Width + x)
			v := emath.Vec3{float64(d.Pix[i]), float64(d.Pix[i+1]), float64(d.Pix[i+2])}
			v.FloorAt(0)
			v.CeilingAt(1)
			g := emath.GammaExpand_sRGB(v)
			img.SetRGBA(x, y, color.RGBA{uint8(math.Round(g[0]*255)), uint8(math.Round(g[1]*255)), uint8(math.Round(g[2]*255)), 0xFF})
		}
	}
	return img, nil
}

// WritePPM writes an 8-bit sRGB PPM, for quick looks
func (f *Frame)WritePPM(filename string) error {
	img, err := f.SRGB8()
	if err != nil {
		return err
	}
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("Frame.WritePPM, open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return ppm.Encode(writer, img)
	}
}

// WritePreviewPNG tone maps the frame with the named operator, fixes
// the pixel aspect, and stamps `label` in the bottom left corner.
func (f *Frame)WritePreviewPNG(filename, tonemapper, label string) error {
	d, err := f.Display()
	if err != nil {
		return err
	}
	img, err := Tonemap(tonemapper, d)
	if err != nil {
		return err
	}
	img = StretchToAspect(img, f.AspectRatio)

	dc := gg.NewContextForImage(img)
	if label != "" {
		h := float64(dc.Height())
		dc.SetRGB(0, 0, 0)
		dc.DrawString(label, 9, h-7)
		dc.SetRGB(1, 1, 0)
		dc.DrawString(label, 8, h-8)
	}
	return dc.SavePNG(filename)
}

// StretchToAspect undoes the vertical squeeze of line skipped
// recordings; `aspect` is the RAWC pixel aspect ratio.
func StretchToAspect(img image.Image, aspect float64) image.Image {
	if aspect <= 0 || math.Abs(aspect - 1) < 1e-3 {
		return img
	}
	b := img.Bounds()
	h := int(math.Round(float64(b.Dy()) * aspect))
	dst := image.NewRGBA64(image.Rect(0, 0, b.Dx(), h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
