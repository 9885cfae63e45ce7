package debayer

import(
	"fmt"
	"strings"
)

type Algorithm int

const(
	Bilinear Algorithm = iota
	PPG
	VNG
	AHD
	DCB
	DHT
	AAHD
)

var algorithmNames = map[Algorithm]string{
	Bilinear: "bilinear",
	PPG:      "ppg",
	VNG:      "vng",
	AHD:      "ahd",
	DCB:      "dcb",
	DHT:      "dht",
	AAHD:     "aahd",
}

func (a Algorithm)String() string {
	if s, exists := algorithmNames[a]; exists {
		return s
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// Delegated algorithms are not implemented here; they need a Delegate.
func (a Algorithm)Delegated() bool { return a >= VNG && a <= AAHD }

func ParseAlgorithm(s string) (Algorithm, error) {
	for a, name := range algorithmNames {
		if strings.EqualFold(s, name) {
			return a, nil
		}
	}
	return Bilinear, fmt.Errorf("debayer: unknown algorithm '%s'", s)
}

// LibRaw's user_qual numbering for the delegated algorithms
func (a Algorithm)librawQuality() int {
	switch a {
	case VNG:  return 1
	case PPG:  return 2
	case AHD:  return 3
	case DCB:  return 4
	case DHT:  return 11
	case AAHD: return 12
	}
	return 0
}
