package ecolor

import(
	"fmt"

	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/mlvraw/pkg/emath"
)

var(
	// Translates XYZ(D50) to sRGB(D65)
	//
	// http://www.brucelindbloom.com/index.html?Eqn_RGB_XYZ_Matrix.html
	//
	// Bruce Lindbloom's second table bundles in the Bradford adaptation
	// from D50 to D65, so white stays white.
	XYZD50_to_linear_sRGBD65 = emath.Mat3{
		 3.1338561, -1.6168667, -0.4906146,
		-0.9787684,  1.9161415,  0.0334540,
		 0.0719453, -0.2289914,  1.4052427,
	}

	Rec709_to_XYZ = emath.Mat3{
		0.4124564, 0.3575761, 0.1804375,
		0.2126729, 0.7151522, 0.0721750,
		0.0193339, 0.1191920, 0.9503041,
	}
)

// A Developer applies white balance and a colour matrix to demosaiced
// camera RGB. The gains are applied first (if the demosaicer didn't),
// then the matrix.
type Developer struct {
	Gains  emath.Vec3
	Matrix emath.Mat3
}

func (d Developer)String() string {
	return fmt.Sprintf("gains %s, matrix\n%s", d.Gains, d.Matrix)
}

// Develop converts one camera RGB value
func (d Developer)Develop(in hdrcolor.RGB) hdrcolor.RGB {
	v := d.Matrix.Apply(emath.Vec3{in.R * d.Gains[0], in.G * d.Gains[1], in.B * d.Gains[2]})
	return hdrcolor.RGB{R: v[0], G: v[1], B: v[2]}
}

// DevelopPix converts interleaved RGB triples in place
func (d Developer)DevelopPix(pix []float32) {
	m := d.Matrix
	g := d.Gains
	for i:=0; i+2 < len(pix); i += 3 {
		r, gr, b := float64(pix[i])*g[0], float64(pix[i+1])*g[1], float64(pix[i+2])*g[2]
		pix[i]   = float32(m[0]*r + m[1]*gr + m[2]*b)
		pix[i+1] = float32(m[3]*r + m[4]*gr + m[5]*b)
		pix[i+2] = float32(m[6]*r + m[7]*gr + m[8]*b)
	}
}

// ToXYZD50 returns the matrix taking colorspace RGB to XYZ(D50), for
// previews; it is the inverse of the colorspace's own transform
// followed by an adaptation to D50.
func ToXYZD50(cs Colorspace) (emath.Mat3, error) {
	toRGB, err := cs.XYZToRGB()
	if err != nil {
		return emath.Mat3{}, err
	}
	toXYZ, err := toRGB.Inverse()
	if err != nil {
		return emath.Mat3{}, err
	}
	cat, err := CATMatrix(cs.WhiteXYZ(), XYZD50.WhiteXYZ(), Bradford)
	if err != nil {
		return emath.Mat3{}, err
	}
	return cat.Mult(toXYZ), nil
}

// XYZToSRGB also adjusts reference white from D50 to D65
func XYZToSRGB(xyz hdrcolor.XYZ) hdrcolor.RGB {
	rgb := XYZD50_to_linear_sRGBD65.Apply(emath.Vec3{xyz.X, xyz.Y, xyz.Z})
	return hdrcolor.RGB{R: rgb[0], G: rgb[1], B: rgb[2]}
}

func HDRRGBFloorAt(c1 hdrcolor.RGB, min float64) hdrcolor.RGB {
	c2 := c1
	if c2.R < min { c2.R = min }
	if c2.G < min { c2.G = min }
	if c2.B < min { c2.B = min }
	return c2
}
