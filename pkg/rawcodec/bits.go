// Package rawcodec converts between raw sensor samples and the forms
// they take inside a container: bit-packed little-endian 16-bit words,
// or a lossless JPEG (LJ92) stream.
package rawcodec

import(
	"fmt"
	"math/bits"
	"runtime"
	"sync"
)

// PackedSize is how many bytes a frame of w*h samples occupies, packed
// at `bpp` bits per sample. The stream is always a whole number of
// 16-bit words.
func PackedSize(w, h, bpp int) int {
	return 2 * ((w*h*bpp + 15) / 16)
}

// word fetches the k'th little-endian 16-bit word, treating anything past the end as zero.
func word(b []byte, k int) uint32 {
	i := 2*k
	switch {
	case i+1 < len(b): return uint32(b[i]) | uint32(b[i+1])<<8
	case i < len(b):   return uint32(b[i])
	}
	return 0
}

// UnpackPixel extracts the i'th sample from a packed stream. The
// stream is a sequence of 16-bit little-endian words, each filled MSB
// first; a sample may straddle two words. Reading the two words as a
// little-endian uint32 and rotating it brings the sample down to bit 0.
func UnpackPixel(packed []byte, i, bpp int) uint16 {
	off := i * bpp
	addr := off / 16
	shift := off % 16
	rot := 16 + (32 - bpp - shift)

	u := word(packed, addr) | word(packed, addr+1)<<16
	v := bits.RotateLeft32(u, -rot)
	return uint16(v & (1<<uint(bpp) - 1))
}

func checkBPP(bpp int) error {
	if bpp < 1 || bpp > 16 {
		return fmt.Errorf("rawcodec: unsupported bit depth %d", bpp)
	}
	return nil
}

// Unpack expands `pixelCount` samples from the packed stream. The work
// is split into contiguous spans, one per CPU.
func Unpack(packed []byte, bpp, pixelCount int) ([]uint16, error) {
	if err := checkBPP(bpp); err != nil {
		return nil, err
	}
	if need := (pixelCount*bpp + 7) / 8; len(packed) < need {
		return nil, fmt.Errorf("rawcodec: packed buffer has %d bytes, need %d for %d samples at %d bpp",
			len(packed), need, pixelCount, bpp)
	}

	out := make([]uint16, pixelCount)
	unpackSpans(packed, bpp, out)
	return out, nil
}

func unpackSpans(packed []byte, bpp int, out []uint16) {
	nWorkers := runtime.NumCPU()
	if len(out) < 1<<16 || nWorkers < 2 {
		for i := range out {
			out[i] = UnpackPixel(packed, i, bpp)
		}
		return
	}

	var wg sync.WaitGroup
	span := (len(out) + nWorkers - 1) / nWorkers
	for lo := 0; lo < len(out); lo += span {
		hi := lo + span
		if hi > len(out) { hi = len(out) }

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				out[i] = UnpackPixel(packed, i, bpp)
			}
		}(lo, hi)
	}
	wg.Wait()
}

// Pack is the inverse of Unpack. Samples are masked to `bpp` bits.
func Pack(samples []uint16, bpp int) []byte {
	if checkBPP(bpp) != nil {
		return nil
	}

	nBits := len(samples) * bpp
	words := make([]uint16, (nBits+15)/16)
	mask := uint32(1)<<uint(bpp) - 1

	for i, s := range samples {
		off := i * bpp
		addr := off / 16
		shift := off % 16

		// Place the sample in a 32-bit big-endian window spanning words[addr] and words[addr+1]
		w := (uint32(s) & mask) << uint(32 - shift - bpp)
		words[addr] |= uint16(w >> 16)
		if addr+1 < len(words) {
			words[addr+1] |= uint16(w)
		}
	}

	out := make([]byte, 2*len(words))
	for k, w := range words {
		out[2*k] = byte(w)
		out[2*k+1] = byte(w >> 8)
	}
	return out
}
