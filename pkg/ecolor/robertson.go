package ecolor

import(
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// Correlated colour temperature by Robertson's method: a table of
// isotemperature lines, each a point (u,v) on the Planckian locus in
// CIE 1960 UCS and the slope t of the line through it. Rows are in
// increasing mired order (robertsonMired).
var robertsonUVT = [31][3]float64{
	{0.18006, 0.26352, -0.24341},
	{0.18066, 0.26589, -0.25479},
	{0.18133, 0.26846, -0.26876},
	{0.18208, 0.27119, -0.28539},
	{0.18293, 0.27407, -0.3047},
	{0.18388, 0.27709, -0.32675},
	{0.18494, 0.28021, -0.35156},
	{0.18611, 0.28342, -0.37915},
	{0.18740, 0.28668, -0.40955},
	{0.18880, 0.28997, -0.44278},
	{0.19032, 0.29326, -0.47888},
	{0.19462, 0.30141, -0.58204},
	{0.19962, 0.30921, -0.70471},
	{0.20525, 0.31647, -0.84901},
	{0.21142, 0.32312, -1.0182},
	{0.21807, 0.32909, -1.2168},
	{0.22511, 0.33439, -1.4512},
	{0.23247, 0.33904, -1.7298},
	{0.24010, 0.34308, -2.0637},
	{0.24792, 0.34655, -2.4681},
	{0.25591, 0.34951, -2.9641},
	{0.26400, 0.35200, -3.5814},
	{0.27218, 0.35407, -4.3633},
	{0.28039, 0.35577, -5.3762},
	{0.28863, 0.35714, -6.7262},
	{0.29685, 0.35823, -8.5955},
	{0.30505, 0.35907, -11.324},
	{0.31320, 0.35968, -15.628},
	{0.32129, 0.36011, -23.325},
	{0.32931, 0.36038, -40.77},
	{0.33724, 0.36051, -116.45},
}

var robertsonMired = [31]float64{
	1.0e-10, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
	125, 150, 175, 200, 225, 250, 275, 300, 325, 350,
	375, 400, 425, 450, 475, 500, 525, 550, 575, 600,
}

const(
	MinCCT = 2000.0
	MaxCCT = 50000.0
)

func KelvinToMired(k float64) float64 { return 1.0e6 / k }

// XYZToUV gives CIE 1960 UCS coordinates. ok is false for black, which has none.
func XYZToUV(xyz emath.Vec3) (u, v float64, ok bool) {
	d := xyz[0] + 15*xyz[1] + 3*xyz[2]
	if d == 0 {
		return 0, 0, false
	}
	return 4 * xyz[0] / d, 6 * xyz[1] / d, true
}

// robertsonLength is the signed distance from (u,v) to an isotemperature line
func robertsonLength(u, v float64, uvt [3]float64) float64 {
	t := uvt[2]
	s0 := -math.Copysign(1, t) / math.Sqrt(1 + t*t)
	s1 := t * s0
	return s0*(v - uvt[1]) - s1*(u - uvt[0])
}

// EstimateCCT returns the correlated colour temperature of `xyz`, in
// Kelvin. The result is always within [MinCCT, MaxCCT].
func EstimateCCT(xyz emath.Vec3) float64 {
	u, v, ok := XYZToUV(xyz)
	if !ok {
		return MinCCT
	}

	var this, prev float64
	i := 0
	for ; i < len(robertsonUVT); i++ {
		if this = robertsonLength(u, v, robertsonUVT[i]); this <= 0 {
			break
		}
		prev = this
	}

	var mired float64
	switch {
	case i == 0:
		mired = robertsonMired[0]
	case i >= len(robertsonUVT):
		mired = robertsonMired[len(robertsonMired)-1]
	default:
		mired = robertsonMired[i-1] + prev*(robertsonMired[i] - robertsonMired[i-1]) / (prev - this)
	}

	return emath.Clamp(1.0e6 / mired, MinCCT, MaxCCT)
}

// TemperatureToXY runs the table backwards: the chromaticity of a
// Planckian radiator at `kelvin`.
func TemperatureToXY(kelvin float64) (x, y float64) {
	mired := KelvinToMired(kelvin)
	i := 0
	for ; i < len(robertsonMired); i++ {
		if robertsonMired[i] >= mired {
			break
		}
	}

	var u, v float64
	switch {
	case i == 0:
		u, v = robertsonUVT[0][0], robertsonUVT[0][1]
	case i >= len(robertsonMired):
		last := robertsonUVT[len(robertsonUVT)-1]
		u, v = last[0], last[1]
	default:
		w := (mired - robertsonMired[i-1]) / (robertsonMired[i] - robertsonMired[i-1])
		u = w*robertsonUVT[i][0] + (1-w)*robertsonUVT[i-1][0]
		v = w*robertsonUVT[i][1] + (1-w)*robertsonUVT[i-1][1]
	}

	d := 2*u - 8*v + 4
	return 3*u / d, 2*v / d
}

// TemperatureToXYZ is the white point at `kelvin`, with Y = 1
func TemperatureToXYZ(kelvin float64) emath.Vec3 {
	x, y := TemperatureToXY(kelvin)
	X, Y, Z := colorful.XyyToXyz(x, y, 1.0)
	return emath.Vec3{X, Y, Z}
}

// EXIF LightSource values and the temperatures used for them
var lightSourceTemperatures = map[uint16]float64{
	0:  5500, // unknown
	1:  5500, // daylight
	2:  3500, // fluorescent
	3:  3400, // tungsten
	10: 5550, // cloudy
	17: 2856, // standard light A
	18: 4874, // standard light B
	19: 6774, // standard light C
	20: 5500, // D55
	21: 6500, // D65
	22: 7500, // D75
}

// LightSourceToTemperature maps a DNG CalibrationIlluminant tag to
// Kelvin. Values from 32768 up encode a temperature directly.
func LightSourceToTemperature(tag uint16) float64 {
	if tag >= 32768 {
		return float64(tag) - 32768
	}
	if k, exists := lightSourceTemperatures[tag]; exists {
		return k
	}
	return 5500
}
