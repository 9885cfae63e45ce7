// Package debayer turns a Bayer mosaic into interleaved RGB.
package debayer

import(
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// Input is a reconstructed mosaic at sensor levels
type Input struct {
	Width, Height int
	CFA           CFA
	Pix           []float32
	Black, White  float32

	// Per-channel white balance gains (green normally 1); zero means no gains
	WB            emath.Vec3
}

// Result is interleaved float32 RGB, 1.0 being the white level
type Result struct {
	Width, Height int
	Pix           []float32
}

func (r *Result)At(x, y int) (float32, float32, float32) {
	i := 3*(y*r.Width + x)
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

type Options struct {
	// Runs the delegated algorithms; nil means they are unavailable
	Delegate Delegate

	// If set, PPG runs on this backend
	Backend  ComputeBackend

	Workers  int
}

func (in Input)validate() error {
	if in.Width < 2 || in.Height < 2 || len(in.Pix) < in.Width*in.Height {
		return fmt.Errorf("debayer: %d samples for a %dx%d mosaic", len(in.Pix), in.Width, in.Height)
	}
	if in.White <= in.Black {
		return fmt.Errorf("debayer: white level %.0f is not above black %.0f", in.White, in.Black)
	}
	return nil
}

func (in Input)gains() [3]float32 {
	if in.WB == (emath.Vec3{}) {
		return [3]float32{1, 1, 1}
	}
	return [3]float32{float32(in.WB[0]), float32(in.WB[1]), float32(in.WB[2])}
}

// Interpolate demosaics `in` with the chosen algorithm. White balance
// gains are applied to the output. The context is checked between
// bands of rows; an aborted run returns ctx.Err().
func Interpolate(ctx context.Context, in Input, alg Algorithm, opt Options) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	switch {
	case alg == Bilinear:
		p := newPlane(in)
		if err := parallelRows(ctx, opt.Workers, 0, in.Height, func(y0, y1 int) { p.bilinearRows(y0, y1, 0, in.Width) }); err != nil {
			return nil, err
		}
		return p.result(), nil

	case alg == PPG && opt.Backend != nil:
		return PPGOnBackend(ctx, opt.Backend, in)

	case alg == PPG:
		return ppgCPU(ctx, in, opt.Workers)

	case alg.Delegated():
		return delegate(ctx, in, alg, opt.Delegate)
	}

	panic(fmt.Sprintf("debayer: no algorithm %d", int(alg)))
}

// parallelRows splits [y0,y1) into bands, and hands them to workers.
func parallelRows(ctx context.Context, nWorkers, y0, y1 int, f func(y0, y1 int)) error {
	if nWorkers < 1 {
		nWorkers = runtime.NumCPU()
	}
	const bandHeight = 32

	var wg sync.WaitGroup
	bands := make(chan [2]int)
	for i:=0; i<nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range bands {
				f(b[0], b[1])
			}
		}()
	}

	var err error
	for y := y0; y < y1; y += bandHeight {
		if err = ctx.Err(); err != nil {
			break
		}
		end := y + bandHeight
		if end > y1 { end = y1 }
		bands <- [2]int{y, end}
	}
	close(bands)
	wg.Wait()
	return err
}
