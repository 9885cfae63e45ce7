package emath

import(
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMat3Inverse(t *testing.T) {
	m := Mat3{2, 1, 0,  0, 1, 3,  1, 0, 1}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	if !m.Mult(inv).ApproxEqual(IdentityMat3(), 1e-10) {
		t.Errorf("m * inv(m) =\n%s", m.Mult(inv))
	}

	if _, err := (Mat3{1, 2, 3,  2, 4, 6,  0, 0, 1}).Inverse(); err == nil {
		t.Error("no error inverting a singular matrix")
	}
}

func TestMat3Solve(t *testing.T) {
	m := Mat3{4, 1, 0,  1, 3, 1,  0, 1, 2}
	want := Vec3{1, -2, 0.5}
	got, err := m.Solve(m.Apply(want))
	if err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if math.Abs(got[i] - want[i]) > 1e-9 {
			t.Fatalf("Solve = %s, wanted %s", got, want)
		}
	}
}

func TestMat3Lerp(t *testing.T) {
	a, b := IdentityMat3(), Diag(Vec3{3, 3, 3})
	if a.Lerp(b, 0) != a || a.Lerp(b, 1) != b {
		t.Error("Lerp endpoints")
	}
	if got := a.Lerp(b, 0.5); got != Diag(Vec3{2, 2, 2}) {
		t.Errorf("Lerp(0.5) =\n%s", got)
	}
}

func TestVec3Helpers(t *testing.T) {
	v := Vec3{2, 4, -1}
	if v.NormalizeY() != (Vec3{0.5, 1, -0.25}) {
		t.Errorf("NormalizeY = %s", v.NormalizeY())
	}
	if v.Min() != -1 || v.Max() != 4 {
		t.Errorf("min/max %f %f", v.Min(), v.Max())
	}
	v.FloorAt(0)
	v.CeilingAt(3)
	if v != (Vec3{2, 3, 0}) {
		t.Errorf("floor/ceiling gave %s", v)
	}
	if got := (Vec3{2, 4, 8}).InvertDiag().Apply(Vec3{2, 4, 8}); got != (Vec3{1, 1, 1}) {
		t.Errorf("InvertDiag = %s", got)
	}
}

func TestMiscHelpers(t *testing.T) {
	for _, test := range []struct{ in, want int }{{0, 1}, {1, 1}, {5, 8}, {256, 256}, {257, 512}} {
		if got := NextPow2(test.in); got != test.want {
			t.Errorf("NextPow2(%d) = %d", test.in, got)
		}
	}
	if Median3(3, 1, 2) != 2 || Median3(1, 2, 3) != 2 || Median3(2, 3, 1) != 2 {
		t.Error("Median3")
	}
	if ClampInt(-1, 0, 5) != 0 || ClampInt(9, 0, 5) != 5 || Clamp(0.5, 0, 1) != 0.5 {
		t.Error("Clamp")
	}
	if g := GammaExpand_F64(0.5); math.Abs(g - 0.7354) > 1e-4 {
		t.Errorf("GammaExpand_F64(0.5) = %f", g)
	}
}

func TestFloatGridBlur(t *testing.T) {
	g := NewFloatGrid(5, 4)
	if g.Dx() != 5 || g.Dy() != 4 {
		t.Fatalf("%dx%d", g.Dx(), g.Dy())
	}

	// A flat grid stays flat
	for y:=0; y<4; y++ {
		for x:=0; x<5; x++ {
			g.Set(x, y, 0.75)
		}
	}
	b := g.GaussianBlur()
	for y:=0; y<4; y++ {
		for x:=0; x<5; x++ {
			if math.Abs(b.Get(x, y) - 0.75) > 1e-12 {
				t.Fatalf("blurred flat grid has %f at (%d,%d)", b.Get(x, y), x, y)
			}
		}
	}

	// A spike spreads out, keeping its total
	g2 := NewFloatGrid(5, 5)
	g2.Set(2, 2, 16)
	b2 := g2.GaussianBlur()
	if b2.Get(2, 2) != 4 || b2.Get(1, 2) != 2 || b2.Get(1, 1) != 1 {
		t.Errorf("spike blurred to %f %f %f", b2.Get(2, 2), b2.Get(1, 2), b2.Get(1, 1))
	}
	if g2.Get(2, 2) != 16 {
		t.Error("blur changed its input")
	}
}

func TestFloatGridToImg(t *testing.T) {
	g := NewFloatGrid(64, 64)
	for y:=0; y<64; y++ {
		for x:=0; x<64; x++ {
			g.Set(x, y, float64(x) / 32)
		}
	}
	c := g.Copy()
	c.Clamp01()
	if c.Get(63, 0) != 1 || g.Get(63, 0) <= 1 {
		t.Errorf("Clamp01 on the copy: %f, original %f", c.Get(63, 0), g.Get(63, 0))
	}

	out := filepath.Join(t.TempDir(), "grid.png")
	if err := c.ToImg("test", out); err != nil {
		t.Fatal(err)
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		t.Errorf("png not written: %v", err)
	}
}
