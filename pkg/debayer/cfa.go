package debayer

import "fmt"

// Colour channel indices, as used throughout
const(
	Red   = 0
	Green = 1
	Blue  = 2
)

// A CFA is the 2x2 Bayer tile: the colour at (0,0), (1,0), (0,1), (1,1).
type CFA [4]uint8

var(
	RGGB = CFA{Red, Green, Green, Blue}
	BGGR = CFA{Blue, Green, Green, Red}
	GRBG = CFA{Green, Red, Blue, Green}
	GBRG = CFA{Green, Blue, Red, Green}
)

// CFAFromPattern decodes a camera's packed cfa_pattern word, one
// colour per byte, little end first. Anything that isn't a Bayer tile
// comes back as RGGB, with ok false.
func CFAFromPattern(pattern uint32) (CFA, bool) {
	var c CFA
	for i := range c {
		c[i] = uint8(pattern >> uint(8*i))
	}
	switch c {
	case RGGB, BGGR, GRBG, GBRG:
		return c, true
	}
	return RGGB, false
}

// Color is the channel sampled at (x,y)
func (c CFA)Color(x, y int) int {
	return int(c[(y&1)<<1 | x&1])
}

func (c CFA)IsGreen(x, y int) bool { return c.Color(x, y) == Green }

// Shift is the pattern seen from an origin moved by (dx,dy)
func (c CFA)Shift(dx, dy int) CFA {
	var out CFA
	for y:=0; y<2; y++ {
		for x:=0; x<2; x++ {
			out[y<<1|x] = uint8(c.Color(x+dx, y+dy))
		}
	}
	return out
}

// Pattern is the inverse of CFAFromPattern
func (c CFA)Pattern() uint32 {
	return uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16 | uint32(c[3])<<24
}

func (c CFA)String() string {
	names := "RGB"
	s := ""
	for _, v := range c {
		if int(v) >= len(names) {
			return fmt.Sprintf("CFA%v", [4]uint8(c))
		}
		s += string(names[v])
	}
	return s
}
