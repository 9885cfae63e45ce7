package rawproc

import(
	"fmt"

	"github.com/abworrall/mlvraw/pkg/debayer"
	"github.com/abworrall/mlvraw/pkg/emath"
)

// A Mosaic is one frame of sensor samples. Black and White are the
// live levels, which processing may move; OrigBlack and OrigWhite are
// what the recording said.
type Mosaic struct {
	Width, Height        int
	CFA                  debayer.CFA
	Pix                  []float32
	Black, White         float32
	OrigBlack, OrigWhite float32
}

func NewMosaic(samples []uint16, w, h int, cfa debayer.CFA, black, white int) (*Mosaic, error) {
	if w < 4 || h < 4 || len(samples) < w*h {
		return nil, fmt.Errorf("rawproc: %d samples for a %dx%d frame", len(samples), w, h)
	}
	if white <= black {
		return nil, fmt.Errorf("rawproc: white level %d is not above black level %d", white, black)
	}
	m := &Mosaic{
		Width:     w,
		Height:    h,
		CFA:       cfa,
		Pix:       make([]float32, w*h),
		Black:     float32(black),
		White:     float32(white),
		OrigBlack: float32(black),
		OrigWhite: float32(white),
	}
	for i := range m.Pix {
		m.Pix[i] = float32(samples[i])
	}
	return m, nil
}

func (m *Mosaic)At(x, y int) float32     { return m.Pix[y*m.Width + x] }
func (m *Mosaic)Set(x, y int, v float32) { m.Pix[y*m.Width + x] = v }

func (m *Mosaic)in(x, y int) bool { return x >= 0 && y >= 0 && x < m.Width && y < m.Height }

func (m *Mosaic)Clone() *Mosaic {
	c := *m
	c.Pix = append([]float32(nil), m.Pix...)
	return &c
}

// Range is the live white level above black
func (m *Mosaic)Range() float32 { return m.White - m.Black }

// Input hands the mosaic to the demosaicer
func (m *Mosaic)Input(wb emath.Vec3) debayer.Input {
	return debayer.Input{
		Width:  m.Width,
		Height: m.Height,
		CFA:    m.CFA,
		Pix:    m.Pix,
		Black:  m.Black,
		White:  m.White,
		WB:     wb,
	}
}
