package rawproc

import(
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrNoPixelMap = errors.New("rawproc: no pixel map")

// A PixelMapSource knows which photosites of a sensor (in a given
// readout resolution) are focus pixels or otherwise unusable.
type PixelMapSource interface {
	PixelMap(cameraModel uint32, width, height int) ([]image.Point, error)
}

// FPMDir is a directory of focus pixel maps, one text file per camera
// and resolution, named like "80000331_1808x727.fpm".
type FPMDir string

func PixelMapName(cameraModel uint32, width, height int) string {
	return fmt.Sprintf("%x_%dx%d.fpm", cameraModel, width, height)
}

func (d FPMDir)PixelMap(cameraModel uint32, width, height int) ([]image.Point, error) {
	path := filepath.Join(string(d), PixelMapName(cameraModel, width, height))
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNoPixelMap, path)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	pts, err := ParsePixelMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return pts, nil
}

// ParsePixelMap reads "x y" pairs, one per line. Blank lines and lines
// starting with '#' are skipped.
func ParsePixelMap(r io.Reader) ([]image.Point, error) {
	pts := []image.Point{}
	s := bufio.NewScanner(r)
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: want 'x y', got %q", line, text)
		}
		x, err1 := strconv.Atoi(fields[0])
		y, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("line %d: bad coordinates %q", line, text)
		}
		pts = append(pts, image.Point{x, y})
	}
	return pts, s.Err()
}

// DetectBadPixels finds isolated hot and dead photosites: ones far
// brighter (or darker) than all four same-colour neighbours.
func DetectBadPixels(m *Mosaic) []image.Point {
	pts := []image.Point{}
	r := m.Range()
	for y:=2; y<m.Height-2; y++ {
		for x:=2; x<m.Width-2; x++ {
			v := m.At(x, y) - m.Black
			n := [4]float32{m.At(x-2, y), m.At(x+2, y), m.At(x, y-2), m.At(x, y+2)}
			lo, hi := n[0], n[0]
			for _, nv := range n[1:] {
				if nv < lo { lo = nv }
				if nv > hi { hi = nv }
			}
			lo -= m.Black
			hi -= m.Black

			hot := v - hi > 0.25*r && v > 4*hi
			dead := lo > 0.05*r && v < lo/8
			if hot || dead {
				pts = append(pts, image.Point{x, y})
			}
		}
	}
	return pts
}

var(
	repairCross    = []image.Point{{-2, 0}, {2, 0}, {0, -2}, {0, 2}}
	repairCorners  = []image.Point{{-2, -2}, {2, -2}, {-2, 2}, {2, 2}}
	repairPairs    = [][2]image.Point{{{-2, 0}, {2, 0}}, {{0, -2}, {0, 2}}}
)

// RepairPixels replaces the listed photosites with the mean of nearby
// good photosites of the same colour. Pixels with all four neighbours
// good go first, then those with a good opposite pair, then those with
// any good corners; a repaired pixel counts as good in later passes.
// Returns how many were repaired.
func RepairPixels(m *Mosaic, pts []image.Point) int {
	bad := map[image.Point]bool{}
	for _, p := range pts {
		if m.in(p.X, p.Y) {
			bad[p] = true
		}
	}
	good := func(p image.Point) bool { return m.in(p.X, p.Y) && !bad[p] }

	mean := func(p image.Point, offsets []image.Point, needAll bool) (float32, bool) {
		sum, n := float32(0), 0
		for _, o := range offsets {
			q := p.Add(o)
			if good(q) {
				sum += m.At(q.X, q.Y)
				n++
			} else if needAll {
				return 0, false
			}
		}
		if n == 0 {
			return 0, false
		}
		return sum / float32(n), true
	}

	passes := []func(p image.Point) (float32, bool){
		func(p image.Point) (float32, bool) { return mean(p, repairCross, true) },
		func(p image.Point) (float32, bool) {
			for _, pair := range repairPairs {
				if v, ok := mean(p, pair[:], true); ok {
					return v, true
				}
			}
			return 0, false
		},
		func(p image.Point) (float32, bool) { return mean(p, repairCorners, false) },
		func(p image.Point) (float32, bool) { return mean(p, repairCross, false) },
	}

	fixed := 0
	for _, pass := range passes {
		for progress := true; progress; {
			progress = false
			// Points in the order given, so the result doesn't depend on map iteration
			for _, p := range pts {
				if !bad[p] {
					continue
				}
				if v, ok := pass(p); ok {
					m.Set(p.X, p.Y, v)
					delete(bad, p)
					fixed++
					progress = true
				}
			}
		}
	}
	return fixed
}
