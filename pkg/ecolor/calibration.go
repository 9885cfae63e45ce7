package ecolor

import(
	"errors"
	"fmt"
	"math"

	"github.com/abworrall/mlvraw/pkg/emath"
	"github.com/abworrall/mlvraw/pkg/mlv"
)

var ErrCalibration = errors.New("ecolor: no usable camera calibration")

// CalibrationData is what a DNG would say about a camera's colour:
// two XYZ->camera matrices, each measured under a reference
// illuminant, and the as-shot neutral.
type CalibrationData struct {
	Camera           string
	ColorMatrix1     emath.Mat3
	ColorMatrix2     emath.Mat3
	Illuminant1      uint16 // EXIF LightSource values
	Illuminant2      uint16

	// Camera RGB of a neutral surface under the scene's light; the
	// inverse of the white balance gains
	NeutralRGB       emath.Vec3
	BaselineExposure float64
}

func (c CalibrationData)String() string {
	return fmt.Sprintf("%s: illum %d/%d (%.0fK/%.0fK), neutral %s, baseline exposure %.2f",
		c.Camera, c.Illuminant1, c.Illuminant2, LightSourceToTemperature(c.Illuminant1),
		LightSourceToTemperature(c.Illuminant2), c.NeutralRGB, c.BaselineExposure)
}

// Validate checks that the matrices can be interpolated and inverted
func (c CalibrationData)Validate() error {
	for i, m := range []emath.Mat3{c.ColorMatrix1, c.ColorMatrix2} {
		for r, s := range m.RowSums() {
			if s == 0 || math.IsNaN(s) {
				return fmt.Errorf("%w: %s ColorMatrix%d row %d sums to %v", ErrCalibration, c.Camera, i+1, r, s)
			}
		}
		if m.Det() == 0 {
			return fmt.Errorf("%w: %s ColorMatrix%d is singular", ErrCalibration, c.Camera, i+1)
		}
	}
	if c.NeutralRGB.Min() <= 0 {
		return fmt.Errorf("%w: %s neutral %s", ErrCalibration, c.Camera, c.NeutralRGB)
	}
	return nil
}

func (c CalibrationData)mireds() (float64, float64) {
	clampK := func(tag uint16) float64 {
		return emath.Clamp(LightSourceToTemperature(tag), MinCCT, MaxCCT)
	}
	return KelvinToMired(clampK(c.Illuminant1)), KelvinToMired(clampK(c.Illuminant2))
}

// XYZToCamera interpolates the two colour matrices in mired space.
// At the first illuminant's mired it is ColorMatrix1, at the second's
// it is ColorMatrix2; beyond them it is clamped to the nearer one.
func (c CalibrationData)XYZToCamera(mired float64) emath.Mat3 {
	mir1, mir2 := c.mireds()
	if mir1 == mir2 {
		return c.ColorMatrix1
	}
	w := emath.Clamp((mir1 - mired) / (mir1 - mir2), 0, 1)
	return c.ColorMatrix1.Lerp(c.ColorMatrix2, w)
}

// NeutralFor is the camera's response to a Planckian white at `kelvin`,
// normalized to green = 1.
func (c CalibrationData)NeutralFor(kelvin float64) emath.Vec3 {
	kelvin = emath.Clamp(kelvin, MinCCT, MaxCCT)
	return c.XYZToCamera(KelvinToMired(kelvin)).Apply(TemperatureToXYZ(kelvin)).NormalizeY()
}

// WithTemperature swaps the as-shot neutral for a user chosen white
func (c CalibrationData)WithTemperature(kelvin float64) CalibrationData {
	c.NeutralRGB = c.NeutralFor(kelvin)
	return c
}

// A CalibrationSource looks up colour calibration by camera model id
type CalibrationSource interface {
	Calibration(cameraModel uint32) (CalibrationData, error)
}

// CameraTable is a fixed set of calibrations
type CameraTable map[uint32]CalibrationData

func (t CameraTable)Calibration(cameraModel uint32) (CalibrationData, error) {
	c, exists := t[cameraModel]
	if !exists {
		return CalibrationData{}, fmt.Errorf("%w: camera model %#x not in table", ErrCalibration, cameraModel)
	}
	if c.NeutralRGB == (emath.Vec3{}) {
		c.NeutralRGB = c.NeutralFor(LightSourceToTemperature(c.Illuminant2))
	}
	return c, nil
}

// Sources tries each source in turn
type Sources []CalibrationSource

func (s Sources)Calibration(cameraModel uint32) (CalibrationData, error) {
	errs := []string{}
	for _, src := range s {
		c, err := src.Calibration(cameraModel)
		if err == nil {
			return c, nil
		}
		errs = append(errs, err.Error())
	}
	return CalibrationData{}, fmt.Errorf("%w: camera %#x: %v", ErrCalibration, cameraModel, errs)
}

func d65Camera(name string, m ...float64) CalibrationData {
	var cm emath.Mat3
	for i := range cm {
		cm[i] = m[i] / 10000
	}
	return CalibrationData{Camera: name, ColorMatrix1: cm, ColorMatrix2: cm, Illuminant1: 21, Illuminant2: 21}
}

// BuiltinCameras has the D65 matrices of the cameras that record MLV,
// keyed by the model id in their IDNT block.
var BuiltinCameras = CameraTable{
	0x80000218: d65Camera("Canon EOS 5D Mark II", 4716, 603, -830, -7798, 15474, 2480, -1496, 1937, 6651),
	0x80000250: d65Camera("Canon EOS 7D", 6844, -996, -856, -3876, 11761, 2396, -593, 1772, 6198),
	0x80000261: d65Camera("Canon EOS 50D", 4920, 616, -593, -6493, 13964, 2784, -1774, 3178, 7005),
	0x80000270: d65Camera("Canon EOS 550D", 6941, -1164, -857, -3825, 11597, 2534, -416, 1540, 6039),
	0x80000285: d65Camera("Canon EOS 5D Mark III", 6722, -635, -963, -4287, 12460, 2028, -908, 2162, 5668),
	0x80000286: d65Camera("Canon EOS 600D", 6461, -907, -882, -4300, 12184, 2378, -819, 1944, 5931),
	0x80000287: d65Camera("Canon EOS 60D", 6719, -994, -925, -4408, 12426, 2211, -887, 2129, 6051),
	0x80000288: d65Camera("Canon EOS 1100D", 6444, -904, -893, -4563, 12308, 2535, -903, 2016, 6728),
	0x80000301: d65Camera("Canon EOS 650D", 6602, -841, -939, -4472, 12458, 2247, -975, 2039, 6148),
	0x80000302: d65Camera("Canon EOS 6D", 7034, -804, -1014, -4420, 12564, 2058, -851, 1994, 5758),
	0x80000325: d65Camera("Canon EOS 70D", 7034, -804, -1014, -4420, 12564, 2058, -851, 1994, 5758),
	0x80000326: d65Camera("Canon EOS 700D", 6602, -841, -939, -4472, 12458, 2247, -975, 2039, 6148),
	0x80000331: d65Camera("Canon EOS M", 6602, -841, -939, -4472, 12458, 2247, -975, 2039, 6148),
	0x80000346: d65Camera("Canon EOS 100D", 6602, -841, -939, -4472, 12458, 2247, -975, 2039, 6148),
}

// FromRawInfo builds a single-illuminant calibration from the colour
// matrix the camera embeds in the RAWI block (nine num/den pairs).
func FromRawInfo(ri mlv.RawInfoBody) (CalibrationData, error) {
	var m emath.Mat3
	for i := range m {
		num, den := ri.ColorMatrix1[2*i], ri.ColorMatrix1[2*i+1]
		if den == 0 {
			return CalibrationData{}, fmt.Errorf("%w: RAWI color matrix entry %d has a zero denominator", ErrCalibration, i)
		}
		m[i] = float64(num) / float64(den)
	}
	if m.IsZero() {
		return CalibrationData{}, fmt.Errorf("%w: RAWI has no color matrix", ErrCalibration)
	}

	illum := uint16(ri.CalibrationIlluminant1)
	if illum == 0 {
		illum = 21
	}
	c := CalibrationData{Camera: "RAWI", ColorMatrix1: m, ColorMatrix2: m, Illuminant1: illum, Illuminant2: illum}
	c.NeutralRGB = c.NeutralFor(LightSourceToTemperature(illum))
	return c, c.Validate()
}
