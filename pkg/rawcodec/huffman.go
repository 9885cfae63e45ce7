package rawcodec

import "sort"

// A huffTable is a JPEG DHT table in canonical form: counts of codes
// per length (1..16) and the symbols in code order.
type huffTable struct {
	bits    [17]int
	vals    []byte

	// Decoding state, filled by build()
	maxcode [18]int32
	valptr  [17]int
	mincode [17]int32

	// Encoding state
	code    [256]uint16
	size    [256]uint8
}

// build derives the canonical codes (JPEG Annex C)
func (t *huffTable)build() {
	code := 0
	k := 0
	for l:=1; l<=16; l++ {
		t.valptr[l] = k
		t.mincode[l] = int32(code)
		for i:=0; i<t.bits[l]; i++ {
			if k < len(t.vals) {
				sym := t.vals[k]
				t.code[sym] = uint16(code)
				t.size[sym] = uint8(l)
			}
			code++
			k++
		}
		if t.bits[l] > 0 {
			t.maxcode[l] = int32(code - 1)
		} else {
			t.maxcode[l] = -1
		}
		code <<= 1
	}
	t.maxcode[17] = 0x7fffffff
}

// buildOptimalTable generates code lengths for the symbols 0..16 from
// their frequencies, limited to 16 bits (JPEG Annex K.2).
func buildOptimalTable(freqIn [17]int) *huffTable {
	var freq [258]int64
	for i, f := range freqIn {
		freq[i] = int64(f)
	}
	freq[256] = 1 // reserved, guarantees no code is all ones

	var codesize [258]int
	var others [258]int
	for i := range others {
		others[i] = -1
	}

	for {
		c1, c2 := -1, -1
		var v1, v2 int64 = 1<<62, 1<<62
		for i:=0; i<257; i++ {
			if freq[i] == 0 {
				continue
			}
			if freq[i] <= v1 {
				v2, c2 = v1, c1
				v1, c1 = freq[i], i
			} else if freq[i] <= v2 {
				v2, c2 = freq[i], i
			}
		}
		if c2 < 0 {
			break
		}

		freq[c1] += freq[c2]
		freq[c2] = 0

		codesize[c1]++
		for others[c1] >= 0 {
			c1 = others[c1]
			codesize[c1]++
		}
		others[c1] = c2

		codesize[c2]++
		for others[c2] >= 0 {
			c2 = others[c2]
			codesize[c2]++
		}
	}

	var bits [33]int
	for i:=0; i<257; i++ {
		if codesize[i] > 0 {
			if codesize[i] > 32 {
				codesize[i] = 32
			}
			bits[codesize[i]]++
		}
	}

	// Limit code lengths to 16
	for i:=32; i>16; i-- {
		for bits[i] > 0 {
			j := i - 2
			for bits[j] == 0 {
				j--
			}
			bits[i] -= 2
			bits[i-1]++
			bits[j+1] += 2
			bits[j]--
		}
	}
	// Drop the reserved symbol's code
	i := 16
	for bits[i] == 0 {
		i--
	}
	bits[i]--

	// Symbols in order of increasing code length
	syms := []int{}
	for s:=0; s<=16; s++ {
		if codesize[s] > 0 {
			syms = append(syms, s)
		}
	}
	sort.SliceStable(syms, func(a, b int) bool { return codesize[syms[a]] < codesize[syms[b]] })

	t := &huffTable{}
	for l:=1; l<=16; l++ {
		t.bits[l] = bits[l]
	}
	for _, s := range syms {
		t.vals = append(t.vals, byte(s))
	}
	t.build()
	return t
}
