package debayer

// plane is an image of `cell` floats per pixel, the first three being
// RGB; it is either the whole output image, or a work-group's local
// copy of a tile of it, whose top left is at (x0,y0).
type plane struct {
	w, h   int
	x0, y0 int
	cell   int
	cfa    CFA
	pix    []float32
}

// newPlane normalizes the mosaic, applies the gains, and places each
// sample in its own channel of an RGB image.
func newPlane(in Input) *plane {
	p := &plane{w: in.Width, h: in.Height, cell: 3, cfa: in.CFA, pix: make([]float32, 3*in.Width*in.Height)}
	gains := in.gains()
	scale := 1 / (in.White - in.Black)
	for y:=0; y<in.Height; y++ {
		for x:=0; x<in.Width; x++ {
			c := in.CFA.Color(x, y)
			p.pix[3*(y*in.Width+x) + c] = (in.Pix[y*in.Width+x] - in.Black) * scale * gains[c]
		}
	}
	return p
}

func (p *plane)at(x, y, c int) float32 {
	return p.pix[((y-p.y0)*p.w + (x-p.x0))*p.cell + c]
}

func (p *plane)set(x, y, c int, v float32) {
	p.pix[((y-p.y0)*p.w + (x-p.x0))*p.cell + c] = v
}

func (p *plane)result() *Result {
	return &Result{Width: p.w, Height: p.h, Pix: p.pix}
}

// bilinearPixel fills the two missing channels at (x,y) with the mean
// of the same-colour samples in the 3x3 neighbourhood. `w` and `h` are
// the full image size.
func (p *plane)bilinearPixel(x, y, w, h int) {
	native := p.cfa.Color(x, y)
	var sum [3]float32
	var n [3]int
	for dy:=-1; dy<=1; dy++ {
		for dx:=-1; dx<=1; dx++ {
			xx, yy := x+dx, y+dy
			if xx < 0 || yy < 0 || xx >= w || yy >= h || (dx == 0 && dy == 0) {
				continue
			}
			c := p.cfa.Color(xx, yy)
			sum[c] += p.at(xx, yy, c)
			n[c]++
		}
	}
	for c:=0; c<3; c++ {
		if c != native && n[c] > 0 {
			p.set(x, y, c, sum[c]/float32(n[c]))
		}
	}
}

func (p *plane)bilinearRows(y0, y1, x0, x1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			p.bilinearPixel(x, y, p.w, p.h)
		}
	}
}
