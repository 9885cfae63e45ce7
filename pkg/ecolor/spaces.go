package ecolor

import(
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// A Colorspace is an output RGB space for developed frames
type Colorspace int

const(
	ACESAP0 Colorspace = iota // ACES2065-1
	ACESAP1                   // ACEScg primaries
	Rec709
	XYZD50                    // no gamut change; the IDT stops at the adaptation
)

var colorspaceNames = map[Colorspace]string{
	ACESAP0: "aces-ap0",
	ACESAP1: "aces-ap1",
	Rec709:  "rec709",
	XYZD50:  "xyz-d50",
}

func (cs Colorspace)String() string {
	if n, exists := colorspaceNames[cs]; exists {
		return n
	}
	return fmt.Sprintf("colorspace(%d)", int(cs))
}

func ListColorspaces() []string {
	return []string{"aces-ap0", "aces-ap1", "rec709", "xyz-d50"}
}

func ParseColorspace(s string) (Colorspace, error) {
	for cs, n := range colorspaceNames {
		if strings.EqualFold(s, n) {
			return cs, nil
		}
	}
	return 0, fmt.Errorf("colorspace '%s' not known (try %v)", s, ListColorspaces())
}

// xy chromaticities of the red, green and blue primaries, then the white
type primaries [4][2]float64

var(
	primariesAP0 = primaries{{0.7347, 0.2653}, {0.0, 1.0}, {0.0001, -0.077}, {0.32168, 0.33767}}
	primariesAP1 = primaries{{0.713, 0.293}, {0.165, 0.830}, {0.128, 0.044}, {0.32168, 0.33767}}
	primaries709 = primaries{{0.64, 0.33}, {0.30, 0.60}, {0.15, 0.06}, {0.3127, 0.3290}}

	// The AP1 IDT is the AP0 one followed by this
	AP0ToAP1 = emath.Mat3{
		 1.4514393161, -0.2365107469, -0.2149285693,
		-0.0765537734,  1.1762296998, -0.0996759264,
		 0.0083161484, -0.0060324498,  0.9977163014,
	}
)

// rgbToXYZ builds the matrix taking RGB in these primaries to XYZ, such
// that RGB (1,1,1) lands on the white point with Y = 1.
func (p primaries)rgbToXYZ() (emath.Mat3, error) {
	var m emath.Mat3
	for c:=0; c<3; c++ {
		x, y := p[c][0], p[c][1]
		m[0*3+c], m[1*3+c], m[2*3+c] = x, y, 1-x-y
	}
	gains, err := m.Solve(p.white())
	if err != nil {
		return emath.Mat3{}, err
	}
	return m.Mult(emath.Diag(gains)), nil
}

func (p primaries)white() emath.Vec3 {
	X, Y, Z := colorful.XyyToXyz(p[3][0], p[3][1], 1.0)
	return emath.Vec3{X, Y, Z}
}

// WhiteXYZ is the colorspace's reference white, with Y = 1
func (cs Colorspace)WhiteXYZ() emath.Vec3 {
	switch cs {
	case ACESAP0, ACESAP1: return primariesAP0.white()
	case Rec709:           return primaries709.white()
	default:               return emath.Vec3(colorful.D50)
	}
}

// XYZToRGB takes XYZ (relative to the colorspace's own white) into the colorspace
func (cs Colorspace)XYZToRGB() (emath.Mat3, error) {
	var p primaries
	switch cs {
	case ACESAP0, ACESAP1: p = primariesAP0
	case Rec709:           p = primaries709
	case XYZD50:           return emath.IdentityMat3(), nil
	default:
		return emath.Mat3{}, fmt.Errorf("colorspace %d not known", int(cs))
	}

	toXYZ, err := p.rgbToXYZ()
	if err != nil {
		return emath.Mat3{}, err
	}
	m, err := toXYZ.Inverse()
	if err != nil {
		return emath.Mat3{}, err
	}
	if cs == ACESAP1 {
		m = AP0ToAP1.Mult(m)
	}
	return m, nil
}
