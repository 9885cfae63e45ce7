package rawproc

import(
	"context"
	"fmt"

	"github.com/abworrall/mlvraw/pkg/debayer"
)

// Same-colour offsets covered by each window
var chromaWindows = map[ChromaSmooth][]int{
	ChromaSmooth2x2: {0, 2},
	ChromaSmooth3x3: {-2, 0, 2},
	ChromaSmooth5x5: {-4, -2, 0, 2, 4},
}

// greenAround is the mean of the green photosites beside (x,y)
func (m *Mosaic)greenAround(x, y int) float32 {
	sum, n := float32(0), 0
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		if m.in(x+d[0], y+d[1]) {
			sum += m.At(x+d[0], y+d[1])
			n++
		}
	}
	return sum / float32(n)
}

// SmoothChroma averages the red-green and blue-green differences over
// a window of same-colour photosites, which calms the colour moire a
// demosaicer would otherwise produce. Green is left alone.
func SmoothChroma(ctx context.Context, m *Mosaic, cs ChromaSmooth) error {
	offsets, exists := chromaWindows[cs]
	if !exists {
		if cs == ChromaSmoothOff {
			return nil
		}
		return fmt.Errorf("rawproc: no chroma smoothing mode %d", int(cs))
	}

	green := make([]float32, len(m.Pix))
	diff := make([]float32, len(m.Pix))
	err := forRows(ctx, m.Height, func(y int) {
		for x:=0; x<m.Width; x++ {
			if m.CFA.Color(x, y) == debayer.Green {
				continue
			}
			i := y*m.Width + x
			green[i] = m.greenAround(x, y)
			diff[i] = m.Pix[i] - green[i]
		}
	})
	if err != nil {
		return err
	}

	return forRows(ctx, m.Height, func(y int) {
		for x:=0; x<m.Width; x++ {
			if m.CFA.Color(x, y) == debayer.Green {
				continue
			}
			sum, n := float32(0), 0
			for _, dy := range offsets {
				for _, dx := range offsets {
					if m.in(x+dx, y+dy) {
						sum += diff[(y+dy)*m.Width + x+dx]
						n++
					}
				}
			}
			i := y*m.Width + x
			v := green[i] + sum/float32(n)
			if v < 0 {
				v = 0
			}
			m.Pix[i] = v
		}
	})
}
