package rawproc

import(
	"context"
	"log"
	"math"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/mlvraw/pkg/emath"
)

// Dual ISO recordings read alternate pairs of rows at two gains. The
// pattern repeats every four rows; a dualISOLayout says which of the
// four row classes (y%4) carry the brighter exposure.
type dualISOLayout [4]bool

const(
	// Bright samples above this fraction of the range are treated as clipped
	dualISOClip      = 0.9
	// Dark samples below this fraction of the range are too noisy to measure the gain with
	dualISONoise     = 0.01
	// Gains closer to 1 than this mean there's only one exposure
	dualISOMinGain   = 0.05
	// Alias map values above this pick the photosite's own exposure over a blend
	dualISOAliasing  = 0.05
	minGainSamples   = 64
)

// detectDualISO finds the two brightest row classes. They must be one
// even and one odd row, so that each exposure has a full Bayer tile.
func detectDualISO(m *Mosaic) (dualISOLayout, bool) {
	var sum [4]float64
	var n [4]int
	for y:=0; y<m.Height; y++ {
		for x:=0; x<m.Width; x++ {
			sum[y%4] += float64(m.At(x, y) - m.Black)
		}
		n[y%4] += m.Width
	}

	var mean [4]float64
	for k := range mean {
		if n[k] == 0 {
			return dualISOLayout{}, false
		}
		mean[k] = sum[k] / float64(n[k])
	}

	first, second := -1, -1
	for k := range mean {
		switch {
		case first < 0 || mean[k] > mean[first]:
			first, second = k, first
		case second < 0 || mean[k] > mean[second]:
			second = k
		}
	}
	if first%2 == second%2 {
		return dualISOLayout{}, false
	}

	var l dualISOLayout
	l[first], l[second] = true, true
	return l, true
}

// estimateGain compares each unclipped bright photosite with the dark
// photosites of the same colour two rows above and below; the gain is
// the median ratio. Ratios the histogram can't hold are counted in
// `dropped`.
func estimateGain(m *Mosaic, l dualISOLayout) (gain float64, dropped int, ok bool) {
	const scale = 1024
	h := hdrhistogram.New(1, 1<<30, 3)
	r := m.Range()

	for y:=0; y<m.Height; y++ {
		if !l[y%4] {
			continue
		}
		for x:=0; x<m.Width; x++ {
			b := m.At(x, y) - m.Black
			if b >= dualISOClip*r || b <= dualISONoise*r {
				continue
			}
			sum, n := float32(0), 0
			for _, yy := range []int{y-2, y+2} {
				if yy >= 0 && yy < m.Height {
					sum += m.At(x, yy) - m.Black
					n++
				}
			}
			if n == 0 {
				continue
			}
			d := sum / float32(n)
			if d <= dualISONoise*r {
				continue
			}
			v := int64(float64(b/d) * scale)
			if v < 1 {
				dropped++
			} else if err := h.RecordValue(v); err != nil {
				dropped++
			}
		}
	}

	if h.TotalCount() < minGainSamples {
		return 0, dropped, false
	}
	return float64(h.ValueAtQuantile(50)) / scale, dropped, true
}

// sameColourPairs are the pairs of photosites, two rows up and down,
// that can stand in for (x,y) in the other exposure.
var sameColourPairs = [3][2][2]int{
	{{0, -2}, {0, 2}},
	{{-2, -2}, {2, 2}},
	{{2, -2}, {-2, 2}},
}

// otherExposure estimates (x,y) from the rows of the other exposure,
// relative to black. ok is false if no pair is available.
func (m *Mosaic)otherExposure(x, y int, interp DualISOInterpolation) (v float32, clipped, ok bool) {
	clip := dualISOClip * m.Range()
	pairs := sameColourPairs[:]
	if interp == InterpolateMean {
		pairs = pairs[:1]
	}

	best := float32(math.MaxFloat32)
	for _, pair := range pairs {
		x1, y1 := x+pair[0][0], y+pair[0][1]
		x2, y2 := x+pair[1][0], y+pair[1][1]

		var a, b float32
		switch {
		case m.in(x1, y1) && m.in(x2, y2):
			a, b = m.At(x1, y1) - m.Black, m.At(x2, y2) - m.Black
		case m.in(x1, y1):
			a = m.At(x1, y1) - m.Black
			b = a
		case m.in(x2, y2):
			a = m.At(x2, y2) - m.Black
			b = a
		default:
			continue
		}
		// edge directed: interpolate along the pair that agrees best
		if d := float32(math.Abs(float64(a-b))); d < best {
			best = d
			v = (a + b) / 2
			clipped = a >= clip || b >= clip
			ok = true
		}
	}
	return
}

// mergeDualISO combines the two exposures into one frame at the bright
// exposure's scale. It returns the gain between them, or 0 if the frame
// was left alone.
func (r *Reconstructor)mergeDualISO(ctx context.Context, m *Mosaic, ri *RawInfo) (float64, error) {
	l, found := detectDualISO(m)
	if !found {
		ri.warnf("dual ISO: no interlaced exposures found")
		return 0, nil
	}
	gain, dropped, ok := estimateGain(m, l)
	if dropped > 0 {
		ri.warnf("dual ISO: %d bright/dark ratios out of range, left out of the gain", dropped)
	}
	if !ok {
		ri.warnf("dual ISO: too few usable photosites to measure the gain")
		return 0, nil
	}
	if math.Abs(gain - 1) < dualISOMinGain {
		return 0, nil
	}

	rng := m.Range()
	clip := dualISOClip * rng
	g := float32(gain)
	out := make([]float32, len(m.Pix))
	preview := ri.DualISO == DualISOPreview
	blend := !preview && ri.DualISOFullResBlending

	var aliasMap emath.FloatGrid
	useAliasMap := !preview && ri.DualISOAliasMap
	if useAliasMap {
		aliasMap = emath.NewFloatGrid(m.Width, m.Height)
	}

	err := forRows(ctx, m.Height, func(y int) {
		bright := l[y%4]
		for x:=0; x<m.Width; x++ {
			native := m.At(x, y) - m.Black
			other, otherClipped, otherOK := m.otherExposure(x, y, ri.DualISOInterpolation)
			if preview && !bright {
				otherOK = false // no interpolation into the dark rows
			}

			// B and D are the bright and (rescaled) dark estimates
			var B, D float32
			bOK := true
			if bright {
				B, bOK = native, native < clip
				D = other * g
				if !otherOK {
					D = native
				}
			} else {
				D = native * g
				B, bOK = other, otherOK && !otherClipped
			}

			var v float32
			switch {
			case !bOK:
				v = D
			case blend:
				// lean on the dark exposure as the bright one nears clipping
				w := float32(emath.Clamp(float64((clip - B) / (0.25 * clip)), 0, 1))
				v = w*B + (1-w)*D
			default:
				v = B
			}
			out[y*m.Width + x] = v

			if useAliasMap && bOK {
				aliasMap.Set(x, y, math.Abs(float64(B - D)) / float64(rng*g))
			}
		}
	})
	if err != nil {
		return 0, err
	}

	if useAliasMap {
		aliasMap = aliasMap.GaussianBlur()
		if r.Verbosity > 1 {
			log.Printf("rawproc: dual ISO gain %.3f, alias map %s", gain, aliasMap.Stats())
		}
		if r.AliasMapDebugFile != "" {
			dbg := aliasMap.Copy()
			dbg.Clamp01()
			if err := dbg.ToImg("dual ISO alias map", r.AliasMapDebugFile); err != nil {
				ri.warnf("dual ISO: alias map not saved: %v", err)
			}
		}
		for y:=0; y<m.Height; y++ {
			bright := l[y%4]
			for x:=0; x<m.Width; x++ {
				if aliasMap.Get(x, y) <= dualISOAliasing {
					continue
				}
				// Where the exposures disagree, keep what this photosite saw
				native := m.At(x, y) - m.Black
				if bright && native < clip {
					out[y*m.Width + x] = native
				} else if !bright {
					out[y*m.Width + x] = native * g
				}
			}
		}
	}

	for i, v := range out {
		m.Pix[i] = m.Black + v
	}
	m.White = m.Black + rng*g
	return gain, nil
}
