package ecolor

import(
	"fmt"
	"os"
	"path/filepath"

	"github.com/rwcarlsen/goexif/tiff"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// DNG tags holding colour calibration
const(
	tagUniqueCameraModel      = 0xC614
	tagColorMatrix1           = 0xC621
	tagColorMatrix2           = 0xC622
	tagAsShotNeutral          = 0xC628
	tagBaselineExposure       = 0xC62A
	tagCalibrationIlluminant1 = 0xC65A
	tagCalibrationIlluminant2 = 0xC65B
)

// LoadCalibrationFromDNG reads the colour calibration out of the first
// IFD of a DNG, e.g. one written by the camera's stills mode.
func LoadCalibrationFromDNG(path string) (CalibrationData, error) {
	f, err := os.Open(path)
	if err != nil {
		return CalibrationData{}, err
	}
	defer f.Close()

	t, err := tiff.Decode(f)
	if err != nil {
		return CalibrationData{}, fmt.Errorf("%s: %v", path, err)
	}
	if len(t.Dirs) == 0 {
		return CalibrationData{}, fmt.Errorf("%w: %s has no IFDs", ErrCalibration, path)
	}

	tags := map[uint16]*tiff.Tag{}
	for _, tag := range t.Dirs[0].Tags {
		tags[tag.Id] = tag
	}

	rationals := func(id uint16, n int) ([]float64, error) {
		tag, exists := tags[id]
		if !exists {
			return nil, fmt.Errorf("tag %#x missing", id)
		}
		if int(tag.Count) < n {
			return nil, fmt.Errorf("tag %#x has %d values, want %d", id, tag.Count, n)
		}
		vals := make([]float64, n)
		for i := range vals {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return nil, fmt.Errorf("tag %#x: %v", id, err)
			}
			if den == 0 {
				return nil, fmt.Errorf("tag %#x value %d has a zero denominator", id, i)
			}
			vals[i] = float64(num) / float64(den)
		}
		return vals, nil
	}
	illuminant := func(id uint16) uint16 {
		if tag, exists := tags[id]; exists {
			if v, err := tag.Int(0); err == nil {
				return uint16(v)
			}
		}
		return 21
	}
	mat3 := func(v []float64) emath.Mat3 {
		var m emath.Mat3
		copy(m[:], v)
		return m
	}

	c := CalibrationData{Camera: filepath.Base(path)}
	if tag, exists := tags[tagUniqueCameraModel]; exists {
		if s, err := tag.StringVal(); err == nil {
			c.Camera = s
		}
	}

	cm1, err := rationals(tagColorMatrix1, 9)
	if err != nil {
		return CalibrationData{}, fmt.Errorf("%w: %s: %v", ErrCalibration, path, err)
	}
	c.ColorMatrix1, c.Illuminant1 = mat3(cm1), illuminant(tagCalibrationIlluminant1)

	// Single illuminant DNGs are fine; both ends of the interpolation are then the same
	if cm2, err := rationals(tagColorMatrix2, 9); err == nil {
		c.ColorMatrix2, c.Illuminant2 = mat3(cm2), illuminant(tagCalibrationIlluminant2)
	} else {
		c.ColorMatrix2, c.Illuminant2 = c.ColorMatrix1, c.Illuminant1
	}

	if be, err := rationals(tagBaselineExposure, 1); err == nil {
		c.BaselineExposure = be[0]
	}
	if n, err := rationals(tagAsShotNeutral, 3); err == nil {
		c.NeutralRGB = emath.Vec3{n[0], n[1], n[2]}
	} else {
		c.NeutralRGB = c.NeutralFor(LightSourceToTemperature(c.Illuminant2))
	}

	return c, c.Validate()
}

// DNGDir is a directory of reference DNGs, one per camera, named by
// model id like "80000285.dng".
type DNGDir string

func (d DNGDir)Calibration(cameraModel uint32) (CalibrationData, error) {
	return LoadCalibrationFromDNG(filepath.Join(string(d), fmt.Sprintf("%x.dng", cameraModel)))
}
