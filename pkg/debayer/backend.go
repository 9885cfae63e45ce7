package debayer

import(
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// DeviceLimits are the figures a compute device reports about itself
type DeviceLimits struct {
	MaxWorkGroupSize    int    // work-items per group
	MaxWorkItemSizes    [2]int // per axis
	LocalMemSize        int    // bytes
	KernelWorkGroupSize int    // the kernel's own limit on work-items per group
}

// LocalBufferSpec describes how much local memory a kernel's tile
// needs: (XFactor*sx + XOffset) * (YFactor*sy + YOffset) cells of
// CellSize bytes, plus Overhead. SizeX and SizeY are the preferred tile.
type LocalBufferSpec struct {
	XFactor, XOffset int
	YFactor, YOffset int
	CellSize         int
	Overhead         int
	SizeX, SizeY     int
}

type TileSize struct {
	X, Y int
}

func (ts TileSize)String() string { return fmt.Sprintf("%dx%d", ts.X, ts.Y) }

func (b LocalBufferSpec)localMem(sx, sy int) int {
	return (b.XFactor*sx + b.XOffset) * (b.YFactor*sy + b.YOffset) * b.CellSize + b.Overhead
}

func clampPow2(v int) int {
	return emath.ClampInt(emath.NextPow2(v), 1, 1<<16)
}

// OptimizeTile finds the biggest tile, starting from the preferred
// size rounded up to a power of two, that the device can run: it
// halves the longer side until every limit is met. It reports false if
// not even a 1x1 tile fits.
func OptimizeTile(lim DeviceLimits, b LocalBufferSpec) (TileSize, bool) {
	sx, sy := clampPow2(b.SizeX), clampPow2(b.SizeY)

	for lim.MaxWorkItemSizes[0] < sx || lim.MaxWorkItemSizes[1] < sy ||
		lim.LocalMemSize < b.localMem(sx, sy) ||
		lim.MaxWorkGroupSize < sx*sy || lim.KernelWorkGroupSize < sx*sy {

		if sx == 1 && sy == 1 {
			return TileSize{1, 1}, false
		}
		if sx > sy {
			sx >>= 1
		} else {
			sy >>= 1
		}
	}
	return TileSize{sx, sy}, true
}

// A WorkGroup is one tile of a dispatch: global coordinates of its first work-item, and its size.
type WorkGroup struct {
	X, Y int
	W, H int
}

type KernelFunc func(g WorkGroup)

// ComputeBackend runs kernels over a 2D range in work-groups. Dispatch
// blocks until every group has finished.
type ComputeBackend interface {
	Limits() DeviceLimits
	Dispatch(ctx context.Context, name string, global, local [2]int, fn KernelFunc) error
}

// CPUBackend emulates a device with the given limits, running work-groups on goroutines.
type CPUBackend struct {
	DeviceLimits
	Workers int
}

func NewCPUBackend(lim DeviceLimits) *CPUBackend {
	return &CPUBackend{DeviceLimits: lim, Workers: runtime.NumCPU()}
}

func (b *CPUBackend)Limits() DeviceLimits { return b.DeviceLimits }

func (b *CPUBackend)Dispatch(ctx context.Context, name string, global, local [2]int, fn KernelFunc) error {
	if local[0] < 1 || local[1] < 1 || local[0]*local[1] > b.MaxWorkGroupSize ||
		local[0] > b.MaxWorkItemSizes[0] || local[1] > b.MaxWorkItemSizes[1] {
		return fmt.Errorf("debayer: kernel %s: work-group %dx%d exceeds device limits", name, local[0], local[1])
	}
	if global[0]%local[0] != 0 || global[1]%local[1] != 0 {
		return fmt.Errorf("debayer: kernel %s: global size %v is not a multiple of %v", name, global, local)
	}

	nWorkers := b.Workers
	if nWorkers < 1 { nWorkers = 1 }

	var wg sync.WaitGroup
	groups := make(chan WorkGroup)
	for i:=0; i<nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range groups {
				fn(g)
			}
		}()
	}

	var err error
 feed:
	for y:=0; y<global[1]; y += local[1] {
		for x:=0; x<global[0]; x += local[0] {
			if err = ctx.Err(); err != nil {
				break feed
			}
			groups <- WorkGroup{X: x, Y: y, W: local[0], H: local[1]}
		}
	}
	close(groups)
	wg.Wait()
	return err
}

// ppgLocalBuffer: a tile plus the 3 pixel apron PPG reads, 4 floats per cell
var ppgLocalBuffer = LocalBufferSpec{
	XFactor: 1, XOffset: 2*ppgBorder,
	YFactor: 1, YOffset: 2*ppgBorder,
	CellSize: 16,
	SizeX: 64, SizeY: 64,
}

// loadTile copies the tile and its apron, clipped to the image, into a
// local plane. Only the native samples are copied, plus green if
// `withGreen`; nothing another work-group may be writing is touched.
func (p *plane)loadTile(g WorkGroup, withGreen bool) *plane {
	x0, y0 := emath.ClampInt(p.x0 + g.X - ppgBorder, 0, p.w), emath.ClampInt(p.y0 + g.Y - ppgBorder, 0, p.h)
	x1, y1 := emath.ClampInt(p.x0 + g.X + g.W + ppgBorder, 0, p.w), emath.ClampInt(p.y0 + g.Y + g.H + ppgBorder, 0, p.h)

	l := &plane{w: x1-x0, h: y1-y0, x0: x0, y0: y0, cell: 4, cfa: p.cfa}
	l.pix = make([]float32, l.w*l.h*l.cell)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := p.cfa.Color(x, y)
			l.set(x, y, c, p.at(x, y, c))
			if withGreen && c != Green {
				l.set(x, y, Green, p.at(x, y, Green))
			}
		}
	}
	return l
}

// PPGOnBackend runs the two PPG passes as kernel dispatches over the
// interior of the image; the border is done on the host.
func PPGOnBackend(ctx context.Context, be ComputeBackend, in Input) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := newPlane(in)
	if ppgTooSmall(in) {
		p.bilinearRows(0, p.h, 0, p.w)
		return p.result(), nil
	}
	p.ppgBorderRows(0, p.h)

	tile, ok := OptimizeTile(be.Limits(), ppgLocalBuffer)
	if !ok {
		return nil, fmt.Errorf("debayer: no PPG tile fits the device (%+v)", be.Limits())
	}

	iw, ih := in.Width - 2*ppgBorder, in.Height - 2*ppgBorder
	global := [2]int{(iw + tile.X - 1) / tile.X * tile.X, (ih + tile.Y - 1) / tile.Y * tile.Y}
	local := [2]int{tile.X, tile.Y}

	// Work-item (i,j) is interior pixel (i+ppgBorder, j+ppgBorder)
	kernel := func(withGreen bool, f func(l *plane, x, y int)) KernelFunc {
		return func(g WorkGroup) {
			shifted := WorkGroup{X: g.X + ppgBorder, Y: g.Y + ppgBorder, W: g.W, H: g.H}
			l := p.loadTile(shifted, withGreen)
			for y := shifted.Y; y < shifted.Y+g.H && y < in.Height-ppgBorder; y++ {
				for x := shifted.X; x < shifted.X+g.W && x < in.Width-ppgBorder; x++ {
					f(l, x, y)
				}
			}
		}
	}

	green := kernel(false, func(l *plane, x, y int) {
		if p.cfa.Color(x, y) != Green {
			l.ppgGreen(x, y)
			p.set(x, y, Green, l.at(x, y, Green))
		}
	})
	redBlue := kernel(true, func(l *plane, x, y int) {
		l.ppgRedBlue(x, y)
		native := p.cfa.Color(x, y)
		for _, c := range []int{Red, Blue} {
			if c != native {
				p.set(x, y, c, l.at(x, y, c))
			}
		}
	})

	if err := be.Dispatch(ctx, "ppg_demosaic_green", global, local, green); err != nil {
		return nil, err
	}
	if err := be.Dispatch(ctx, "ppg_demosaic_redblue", global, local, redBlue); err != nil {
		return nil, err
	}
	return p.result(), nil
}
