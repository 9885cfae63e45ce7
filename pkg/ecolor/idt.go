package ecolor

import(
	"fmt"
	"math"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// DNGIdt derives the Input Device Transform for a camera from DNG style
// calibration data: find the scene's colour temperature from the
// neutral, interpolate the camera matrix for it, then adapt the
// camera's white to the output colorspace's white.
type DNGIdt struct {
	Cal  CalibrationData
	CAT  CATransform

	cameraToXYZ emath.Mat3
	whitePoint  emath.Vec3
	solved      bool
}

func NewDNGIdt(cal CalibrationData, cat CATransform) (*DNGIdt, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &DNGIdt{Cal: cal, CAT: cat}, nil
}

// WeightedXYZToCamera is the XYZ->camera matrix at `mired`
func (d *DNGIdt)WeightedXYZToCamera(mired float64) emath.Mat3 {
	return d.Cal.XYZToCamera(mired)
}

const mireTolerance = 1e-9

// FindXYZToCameraMatrix searches the mired range spanned by the two
// calibration illuminants for the temperature at which the camera's
// view of `neutral` is consistent: inverting the matrix for that mired
// and estimating the CCT of the neutral gives the same mired back.
// Without a crossing in range, the mired with the smallest residual wins.
func (d *DNGIdt)FindXYZToCameraMatrix(neutral emath.Vec3) emath.Mat3 {
	mir1, mir2 := d.Cal.mireds()
	maxMir, minMir := KelvinToMired(MinCCT), KelvinToMired(MaxCCT)
	lo := emath.Clamp(math.Min(mir1, mir2), minMir, maxMir)
	hi := emath.Clamp(math.Max(mir1, mir2), minMir, maxMir)
	step := math.Max(5.0, (hi - lo) / 50.0)

	residual := func(mir float64) (float64, bool) {
		camToXYZ, err := d.WeightedXYZToCamera(mir).Inverse()
		if err != nil {
			return 0, false
		}
		return mir - KelvinToMired(EstimateCCT(camToXYZ.Apply(neutral))), true
	}

	estimate := lo
	var lastMir, lastErr, smallest float64
	haveLast, haveSmallest := false, false
	for mir := lo; mir < hi; mir += step {
		e, ok := residual(mir)
		if !ok {
			continue
		}
		if math.Abs(e) <= mireTolerance {
			estimate = mir
			break
		}
		if haveLast && e*lastErr <= 0 {
			// secant between the two samples either side of zero
			estimate = mir + e / (e - lastErr) * (mir - lastMir)
			break
		}
		if !haveSmallest || math.Abs(e) < math.Abs(smallest) {
			estimate, smallest, haveSmallest = mir, e, true
		}
		lastMir, lastErr, haveLast = mir, e, true
	}

	return d.WeightedXYZToCamera(estimate)
}

// CameraXYZAndWhitePoint returns the camera->XYZ matrix (scaled by the
// baseline exposure) and the XYZ of the camera's white, with Y = 1.
func (d *DNGIdt)CameraXYZAndWhitePoint() (emath.Mat3, emath.Vec3, error) {
	if d.solved {
		return d.cameraToXYZ, d.whitePoint, nil
	}

	m, err := d.FindXYZToCameraMatrix(d.Cal.NeutralRGB).Inverse()
	if err != nil {
		return emath.Mat3{}, emath.Vec3{}, fmt.Errorf("%w: %v", ErrCalibration, err)
	}
	m = m.Scale(math.Pow(2, d.Cal.BaselineExposure))

	w := m.Apply(d.Cal.NeutralRGB)
	if w[1] == 0 {
		return emath.Mat3{}, emath.Vec3{}, fmt.Errorf("%w: camera white %s has no luminance", ErrCalibration, w)
	}

	d.cameraToXYZ, d.whitePoint, d.solved = m, w.NormalizeY(), true
	return d.cameraToXYZ, d.whitePoint, nil
}

// CATMatrix adapts from the camera's white to the colorspace's
func (d *DNGIdt)CATMatrix(cs Colorspace) (emath.Mat3, error) {
	_, white, err := d.CameraXYZAndWhitePoint()
	if err != nil {
		return emath.Mat3{}, err
	}
	return CATMatrix(white, cs.WhiteXYZ(), d.CAT)
}

// IDTMatrix takes camera XYZ into the colorspace: XYZ->RGB . CAT
// (with AP0->AP1 folded into XYZ->RGB for ACESAP1).
func (d *DNGIdt)IDTMatrix(cs Colorspace) (emath.Mat3, error) {
	cat, err := d.CATMatrix(cs)
	if err != nil {
		return emath.Mat3{}, err
	}
	toRGB, err := cs.XYZToRGB()
	if err != nil {
		return emath.Mat3{}, err
	}
	m := toRGB.Mult(cat)
	if s := m.RowSums(); s[0]+s[1]+s[2] == 0 {
		return emath.Mat3{}, fmt.Errorf("%w: degenerate IDT", ErrCalibration)
	}
	return m, nil
}

// CameraToOutputMatrix is the whole transform for white balanced camera
// RGB (camera RGB divided by the neutral): a white balanced white comes
// out as the colorspace's white, times 2^BaselineExposure.
func (d *DNGIdt)CameraToOutputMatrix(cs Colorspace) (emath.Mat3, error) {
	idt, err := d.IDTMatrix(cs)
	if err != nil {
		return emath.Mat3{}, err
	}
	camToXYZ, _, _ := d.CameraXYZAndWhitePoint()
	y := camToXYZ.Apply(d.Cal.NeutralRGB)[1] / math.Pow(2, d.Cal.BaselineExposure)

	return idt.Mult(camToXYZ).Mult(emath.Diag(d.Cal.NeutralRGB)).Scale(1 / y), nil
}

// WhiteBalanceOnlyMatrix adapts the camera's white to `targetWhite`
// (XYZ) without any change of gamut; the output is still XYZ.
func (d *DNGIdt)WhiteBalanceOnlyMatrix(targetWhite emath.Vec3) (emath.Mat3, error) {
	_, white, err := d.CameraXYZAndWhitePoint()
	if err != nil {
		return emath.Mat3{}, err
	}
	return CATMatrix(white, targetWhite, d.CAT)
}
