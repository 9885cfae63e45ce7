package emath

// 3x3 matrices and vectors, used for all the color transforms

import(
	"fmt"
	"math"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// Use local types so we can hang methods off them
type Vec3 f64.Vec3
type Mat3 f64.Mat3

func IdentityMat3() Mat3 {
	return Mat3{1, 0, 0,   0, 1, 0,   0, 0, 1}
}

// Diag places the vector on the diagonal of a matrix
func Diag(v Vec3) Mat3 {
	return Mat3{
		v[0],    0,    0,
		   0, v[1],    0,
		   0,    0, v[2],
	}
}

func (a Mat3)Mult(b Mat3) Mat3 {
	return Mat3{
		a[3*0+0]*b[3*0+0] + a[3*0+1]*b[3*1+0] + a[3*0+2]*b[3*2+0],
		a[3*0+0]*b[3*0+1] + a[3*0+1]*b[3*1+1] + a[3*0+2]*b[3*2+1],
		a[3*0+0]*b[3*0+2] + a[3*0+1]*b[3*1+2] + a[3*0+2]*b[3*2+2],

		a[3*1+0]*b[3*0+0] + a[3*1+1]*b[3*1+0] + a[3*1+2]*b[3*2+0],
		a[3*1+0]*b[3*0+1] + a[3*1+1]*b[3*1+1] + a[3*1+2]*b[3*2+1],
		a[3*1+0]*b[3*0+2] + a[3*1+1]*b[3*1+2] + a[3*1+2]*b[3*2+2],

		a[3*2+0]*b[3*0+0] + a[3*2+1]*b[3*1+0] + a[3*2+2]*b[3*2+0],
		a[3*2+0]*b[3*0+1] + a[3*2+1]*b[3*1+1] + a[3*2+2]*b[3*2+1],
		a[3*2+0]*b[3*0+2] + a[3*2+1]*b[3*1+2] + a[3*2+2]*b[3*2+2],
	}
}

func (m Mat3)Apply(v Vec3) Vec3 {
	return Vec3{
		(m[3*0+0]*v[0] + m[3*0+1]*v[1] + m[3*0+2]*v[2]),
		(m[3*1+0]*v[0] + m[3*1+1]*v[1] + m[3*1+2]*v[2]),
		(m[3*2+0]*v[0] + m[3*2+1]*v[1] + m[3*2+2]*v[2]),
	}
}

func (m Mat3)Scale(s float64) Mat3 {
	for i := range m {
		m[i] *= s
	}
	return m
}

func (m Mat3)Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Lerp blends two matrices; w=0 gives `a`, w=1 gives `b`
func (a Mat3)Lerp(b Mat3, w float64) Mat3 {
	var out Mat3
	for i := range a {
		out[i] = a[i]*(1-w) + b[i]*w
	}
	return out
}

func (m Mat3)RowSums() Vec3 {
	return Vec3{
		m[0] + m[1] + m[2],
		m[3] + m[4] + m[5],
		m[6] + m[7] + m[8],
	}
}

func (m Mat3)IsZero() bool {
	return m == Mat3{}
}

func (m Mat3)dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]})
}

func fromDense(d *mat.Dense) Mat3 {
	var m Mat3
	for r:=0; r<3; r++ {
		for c:=0; c<3; c++ {
			m[3*r+c] = d.At(r, c)
		}
	}
	return m
}

func (m Mat3)Det() float64 {
	return mat.Det(m.dense())
}

// Inverse fails if the matrix is singular, or too close to singular to be useful
func (m Mat3)Inverse() (Mat3, error) {
	var inv mat.Dense
	if err := inv.Inverse(m.dense()); err != nil {
		return Mat3{}, fmt.Errorf("mat3 inverse: %v", err)
	}
	return fromDense(&inv), nil
}

// Solve returns x such that m.Apply(x) == v
func (m Mat3)Solve(v Vec3) (Vec3, error) {
	var x mat.VecDense
	if err := x.SolveVec(m.dense(), mat.NewVecDense(3, []float64{v[0], v[1], v[2]})); err != nil {
		return Vec3{}, fmt.Errorf("mat3 solve: %v", err)
	}
	return Vec3{x.AtVec(0), x.AtVec(1), x.AtVec(2)}, nil
}

// ApproxEqual compares element-wise, within tolerance `eps`
func (a Mat3)ApproxEqual(b Mat3, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func (m Mat3)String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*0+0], m[3*0+1], m[3*0+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*1+0], m[3*1+1], m[3*1+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*2+0], m[3*2+1], m[3*2+2])
	return str
}
func (v Vec3)String() string {
	return fmt.Sprintf("[%12.10f, %12.10f, %12.10f]", v[0], v[1], v[2])
}

// Places the vector on the diagonal of a matrix, then inverts it
func (v Vec3)InvertDiag() Mat3 {
	return Mat3{
		1.0 / v[0],           0,           0,
		0,           1.0 / v[1],           0,
		0,                    0,  1.0 / v[2],
	}
}

func (v Vec3)Scale(s float64) Vec3 { return Vec3{v[0]*s, v[1]*s, v[2]*s} }

func (v Vec3)Min() float64 { return math.Min(v[0], math.Min(v[1], v[2])) }
func (v Vec3)Max() float64 { return math.Max(v[0], math.Max(v[1], v[2])) }

// NormalizeY scales the vector so that the middle (Y, or G) component is 1
func (v Vec3)NormalizeY() Vec3 {
	if v[1] == 0 {
		return v
	}
	return v.Scale(1.0 / v[1])
}

func (v *Vec3)FloorAt(min float64) {
	if v[0] < min { v[0] = min }
	if v[1] < min { v[1] = min }
	if v[2] < min { v[2] = min }
}

func (v *Vec3)CeilingAt(max float64) {
	if v[0] > max { v[0] = max }
	if v[1] > max { v[1] = max }
	if v[2] > max { v[2] = max }
}
