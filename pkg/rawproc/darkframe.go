package rawproc

import(
	"fmt"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/mlvraw/pkg/mlv"
)

// LoadDarkFrame reads a dark frame file: a recording whose first frame
// is an averaged exposure with the lens cap on, as written by an
// averaged-frame export.
func LoadDarkFrame(path string) (*mlv.DarkFrame, error) {
	c, err := mlv.Open(path)
	if err != nil {
		return nil, fmt.Errorf("darkframe '%s': %w", path, err)
	}
	defer c.Close()

	samples, rf, err := c.ReadFrameSamples(0)
	if err != nil {
		return nil, fmt.Errorf("darkframe '%s': %w", path, err)
	}

	df := &mlv.DarkFrame{Samples: samples}
	h := &df.Header
	h.SamplesAveraged = rf.Header.FrameNumber
	h.CameraModel = c.CameraModel()
	h.XRes, h.YRes = uint16(c.Width()), uint16(c.Height())
	h.RawWidth, h.RawHeight = uint32(c.RAWI.RawInfo.Width), uint32(c.RAWI.RawInfo.Height)
	h.BitsPerPixel = uint32(c.BitsPerPixel())
	h.BlackLevel, h.WhiteLevel = uint32(c.BlackLevel()), uint32(c.WhiteLevel())
	h.SourceFpsNom, h.SourceFpsDenom = c.MLVI.SourceFpsNom, c.MLVI.SourceFpsDenom
	if c.EXPO != nil {
		h.IsoMode, h.IsoValue, h.IsoAnalog = c.EXPO.IsoMode, c.EXPO.IsoValue, c.EXPO.IsoAnalog
		h.DigitalGain, h.ShutterValue = c.EXPO.DigitalGain, c.EXPO.ShutterValue
	}
	if c.RAWC != nil {
		h.BinningX, h.SkippingX = c.RAWC.BinningX, c.RAWC.SkippingX
		h.BinningY, h.SkippingY = c.RAWC.BinningY, c.RAWC.SkippingY
	}
	return df, nil
}

// ValidateDarkFrame checks that a dark frame can be subtracted from frames of `m`.
func ValidateDarkFrame(df *mlv.DarkFrame, m *Mosaic, cameraModel uint32, bpp int) error {
	h := df.Header
	switch {
	case int(h.XRes) != m.Width || int(h.YRes) != m.Height:
		return fmt.Errorf("darkframe resolution %dx%d does not match the clip's %dx%d", h.XRes, h.YRes, m.Width, m.Height)
	case len(df.Samples) < m.Width*m.Height:
		return fmt.Errorf("darkframe has %d samples, need %d", len(df.Samples), m.Width*m.Height)
	case bpp > 0 && int(h.BitsPerPixel) != bpp:
		return fmt.Errorf("darkframe is %d bits per pixel, the clip is %d", h.BitsPerPixel, bpp)
	case cameraModel != 0 && h.CameraModel != 0 && h.CameraModel != cameraModel:
		return fmt.Errorf("darkframe is from camera %#x, the clip from %#x", h.CameraModel, cameraModel)
	}
	return nil
}

// SubtractDarkFrame removes the fixed pattern: each sample loses the
// dark frame's excess over its own black level.
func SubtractDarkFrame(m *Mosaic, df *mlv.DarkFrame) {
	darkBlack := float32(df.Header.BlackLevel)
	for i, v := range m.Pix {
		v = v - float32(df.Samples[i]) + darkBlack
		if v < 0 {
			v = 0
		}
		m.Pix[i] = v
	}
}

// DarkFrameStats summarizes the dark frame's excess over its black level
type DarkFrameStats struct {
	Mean         float64
	Median       int64
	P99          int64
	Max          int64
}

func (s DarkFrameStats)String() string {
	return fmt.Sprintf("darkframe excess: mean %.2f, median %d, p99 %d, max %d", s.Mean, s.Median, s.P99, s.Max)
}

func GetDarkFrameStats(df *mlv.DarkFrame) DarkFrameStats {
	h := hdrhistogram.New(0, 1<<16, 3)
	black := int64(df.Header.BlackLevel)
	for _, v := range df.Samples {
		excess := int64(v) - black
		if excess < 0 {
			excess = 0
		}
		h.RecordValue(excess)
	}
	return DarkFrameStats{
		Mean:   h.Mean(),
		Median: h.ValueAtQuantile(50),
		P99:    h.ValueAtQuantile(99),
		Max:    h.Max(),
	}
}
