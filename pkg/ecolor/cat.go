package ecolor

import(
	"fmt"
	"strings"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// A CATransform is the cone response model used for chromatic adaptation
type CATransform int

const(
	Bradford CATransform = iota
	CAT02
	CMCCAT2000
)

var catNames = map[CATransform]string{Bradford: "bradford", CAT02: "cat02", CMCCAT2000: "cmccat2000"}

func (c CATransform)String() string {
	if n, exists := catNames[c]; exists {
		return n
	}
	return fmt.Sprintf("cat(%d)", int(c))
}

func ParseCATransform(s string) (CATransform, error) {
	for c, n := range catNames {
		if strings.EqualFold(s, n) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("chromatic adaptation '%s' not known (try bradford, cat02, cmccat2000)", s)
}

var catMatrices = map[CATransform]emath.Mat3{
	Bradford: {
		 0.8951,  0.2664, -0.1614,
		-0.7502,  1.7135,  0.0367,
		 0.0389, -0.0685,  1.0296,
	},
	CAT02: {
		 0.7328,  0.4296, -0.1624,
		-0.7036,  1.6975,  0.0061,
		 0.0030,  0.0136,  0.9834,
	},
	CMCCAT2000: {
		 0.7982,  0.3389, -0.1371,
		-0.5918,  1.5512,  0.0406,
		 0.0008,  0.0239,  0.9753,
	},
}

func (c CATransform)Matrix() emath.Mat3 {
	if m, exists := catMatrices[c]; exists {
		return m
	}
	return catMatrices[Bradford]
}

// CATMatrix adapts XYZ seen under white `src` to how it would look
// under white `dst`: B^-1 . diag(B.dst / B.src) . B
func CATMatrix(src, dst emath.Vec3, c CATransform) (emath.Mat3, error) {
	b := c.Matrix()
	coneSrc, coneDst := b.Apply(src), b.Apply(dst)
	var scale emath.Vec3
	for i := range scale {
		if coneSrc[i] == 0 {
			return emath.Mat3{}, fmt.Errorf("%w: source white %s has no %s response", ErrCalibration, src, c)
		}
		scale[i] = coneDst[i] / coneSrc[i]
	}

	bInv, err := b.Inverse()
	if err != nil {
		return emath.Mat3{}, err
	}
	return bInv.Mult(emath.Diag(scale)).Mult(b), nil
}
