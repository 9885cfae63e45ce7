package debayer

import "context"

// PPG (patterned pixel grouping): green first, steered by horizontal
// and vertical gradients, then red and blue from colour differences
// against the finished green plane. The outer ppgBorder pixels are
// bilinear.

const ppgBorder = 3

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// ulim clamps v into the range spanned by a and b
func ulim(v, a, b float32) float32 {
	if a > b {
		a, b = b, a
	}
	if v < a { return a }
	if v > b { return b }
	return v
}

func floor0(v float32) float32 {
	if v < 0 {
		return 0
	}
	return v
}

var ppgAxes = [2][2]int{{1, 0}, {0, 1}}

func (p *plane)ppgGreen(x, y int) {
	c := p.cfa.Color(x, y)
	if c == Green {
		return
	}

	var guess, diff [2]float32
	c0 := p.at(x, y, c)
	for i, d := range ppgAxes {
		dx, dy := d[0], d[1]
		cm2, cp2 := p.at(x-2*dx, y-2*dy, c), p.at(x+2*dx, y+2*dy, c)
		gm1, gp1 := p.at(x-dx, y-dy, Green), p.at(x+dx, y+dy, Green)
		gm3, gp3 := p.at(x-3*dx, y-3*dy, Green), p.at(x+3*dx, y+3*dy, Green)

		guess[i] = (gm1 + c0 + gp1)*2 - cm2 - cp2
		diff[i] = (abs32(cm2-c0) + abs32(cp2-c0) + abs32(gm1-gp1))*3 + (abs32(gp3-gp1) + abs32(gm3-gm1))*2
	}

	i := 0
	if diff[0] > diff[1] {
		i = 1
	}
	dx, dy := ppgAxes[i][0], ppgAxes[i][1]
	p.set(x, y, Green, ulim(guess[i]/4, p.at(x+dx, y+dy, Green), p.at(x-dx, y-dy, Green)))
}

func (p *plane)ppgRedBlue(x, y int) {
	c := p.cfa.Color(x, y)
	g0 := p.at(x, y, Green)

	if c == Green {
		for _, d := range ppgAxes {
			dx, dy := d[0], d[1]
			col := p.cfa.Color(x+dx, y+dy)
			v := (p.at(x-dx, y-dy, col) + p.at(x+dx, y+dy, col) + 2*g0 - p.at(x-dx, y-dy, Green) - p.at(x+dx, y+dy, Green)) / 2
			p.set(x, y, col, floor0(v))
		}
		return
	}

	o := 2 - c
	var guess, diff [2]float32
	for i, d := range [2][2]int{{1, 1}, {-1, 1}} {
		dx, dy := d[0], d[1]
		om, op := p.at(x-dx, y-dy, o), p.at(x+dx, y+dy, o)
		gm, gp := p.at(x-dx, y-dy, Green), p.at(x+dx, y+dy, Green)
		diff[i] = abs32(om-op) + abs32(gm-g0) + abs32(gp-g0)
		guess[i] = om + op - gm + 2*g0 - gp
	}
	switch {
	case diff[0] < diff[1]: p.set(x, y, o, floor0(guess[0]/2))
	case diff[0] > diff[1]: p.set(x, y, o, floor0(guess[1]/2))
	default:                p.set(x, y, o, floor0((guess[0]+guess[1])/4))
	}
}

// ppgBorderRows fills in the border pixels of rows [y0,y1)
func (p *plane)ppgBorderRows(y0, y1 int) {
	for y := y0; y < y1; y++ {
		if y < ppgBorder || y >= p.h-ppgBorder {
			p.bilinearRows(y, y+1, 0, p.w)
			continue
		}
		p.bilinearRows(y, y+1, 0, ppgBorder)
		p.bilinearRows(y, y+1, p.w-ppgBorder, p.w)
	}
}

func ppgTooSmall(in Input) bool {
	return in.Width <= 2*ppgBorder || in.Height <= 2*ppgBorder
}

func ppgCPU(ctx context.Context, in Input, nWorkers int) (*Result, error) {
	p := newPlane(in)
	if ppgTooSmall(in) {
		p.bilinearRows(0, p.h, 0, p.w)
		return p.result(), nil
	}

	lo, hi := ppgBorder, in.Height-ppgBorder
	passes := []func(y0, y1 int){
		p.ppgBorderRows,
		func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				if y < lo || y >= hi { continue }
				for x := ppgBorder; x < p.w-ppgBorder; x++ {
					p.ppgGreen(x, y)
				}
			}
		},
		func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				if y < lo || y >= hi { continue }
				for x := ppgBorder; x < p.w-ppgBorder; x++ {
					p.ppgRedBlue(x, y)
				}
			}
		},
	}

	// Each pass needs the previous one complete
	for _, pass := range passes {
		if err := parallelRows(ctx, nWorkers, 0, in.Height, pass); err != nil {
			return nil, err
		}
	}
	return p.result(), nil
}
