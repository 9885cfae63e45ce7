package debayer

import(
	"context"
	"fmt"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// Status codes for a DemosaicError that didn't come from the collaborator
const(
	StatusNoDelegate   = -1000
	StatusBadResult    = -1001
)

// DemosaicError is a failure of a Delegate, carrying its status code
type DemosaicError struct {
	Status int
	Msg    string
}

func (e DemosaicError)Error() string {
	return fmt.Sprintf("demosaic failed (status %d): %s", e.Status, e.Msg)
}

// DelegateParams is what an external demosaicer is given: a 16-bit
// mosaic spanning [Black, White], with the camera's balance and matrix.
type DelegateParams struct {
	Algorithm     Algorithm
	Width, Height int
	CFA           CFA
	Raw           []uint16
	Black, White  int
	WB            emath.Vec3
	CamToXYZ      emath.Mat3
	HighlightMode int // 0 clip, 1 unclip, 2 blend
}

// DelegateResult is interleaved 16-bit RGB
type DelegateResult struct {
	Width, Height int
	Pix           []uint16
}

// A Delegate demosaics with algorithms this package doesn't implement.
type Delegate interface {
	Demosaic(ctx context.Context, p DelegateParams) (DelegateResult, error)
}

// delegateParams rescales the mosaic to the full 16-bit range
func delegateParams(in Input, alg Algorithm) DelegateParams {
	p := DelegateParams{
		Algorithm: alg,
		Width:     in.Width,
		Height:    in.Height,
		CFA:       in.CFA,
		Raw:       make([]uint16, in.Width*in.Height),
		Black:     0,
		White:     0xFFFF,
		WB:        in.WB,
	}
	scale := float32(0xFFFF) / (in.White - in.Black)
	for i, v := range in.Pix[:in.Width*in.Height] {
		p.Raw[i] = uint16(emath.Clamp(float64((v - in.Black) * scale), 0, 0xFFFF))
	}
	return p
}

func delegate(ctx context.Context, in Input, alg Algorithm, d Delegate) (*Result, error) {
	if d == nil {
		return nil, DemosaicError{Status: StatusNoDelegate, Msg: fmt.Sprintf("%s needs a demosaic library, none configured", alg)}
	}

	out, err := d.Demosaic(ctx, delegateParams(in, alg))
	if err != nil {
		if _, isDemosaicErr := err.(DemosaicError); isDemosaicErr {
			return nil, err
		}
		return nil, DemosaicError{Status: StatusBadResult, Msg: err.Error()}
	}
	if out.Width != in.Width || out.Height != in.Height || len(out.Pix) < 3*out.Width*out.Height {
		return nil, DemosaicError{Status: StatusBadResult,
			Msg: fmt.Sprintf("%s returned %dx%d (%d samples) for a %dx%d mosaic", alg, out.Width, out.Height, len(out.Pix), in.Width, in.Height)}
	}

	r := &Result{Width: out.Width, Height: out.Height, Pix: make([]float32, 3*out.Width*out.Height)}
	for i := range r.Pix {
		r.Pix[i] = float32(out.Pix[i]) / 0xFFFF
	}
	return r, nil
}
