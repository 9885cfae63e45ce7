//go:build libraw

package debayer

// #cgo LDFLAGS: -lraw
// #include <stdlib.h>
// #include "libraw/libraw.h"
import "C"
import(
	"bytes"
	"context"
	"fmt"
	"image"
	"unsafe"

	"github.com/lmittmann/ppm"
)

// LibRawDelegate demosaics through libraw's dcraw pipeline, handing it
// the mosaic as a bare Bayer buffer.
type LibRawDelegate struct{}

func librawError(where string, res C.int) error {
	if res == 0 {
		return nil
	}
	return DemosaicError{Status: int(res), Msg: fmt.Sprintf("%s: %s", where, C.GoString(C.libraw_strerror(res)))}
}

// libraw's bayer_pattern codes
func librawPattern(c CFA) C.uchar {
	switch c {
	case BGGR: return C.LIBRAW_OPENBAYER_BGGR
	case GRBG: return C.LIBRAW_OPENBAYER_GRBG
	case GBRG: return C.LIBRAW_OPENBAYER_GBRG
	}
	return C.LIBRAW_OPENBAYER_RGGB
}

func (LibRawDelegate)Demosaic(ctx context.Context, p DelegateParams) (DelegateResult, error) {
	if err := ctx.Err(); err != nil {
		return DelegateResult{}, err
	}

	lr := C.libraw_init(0)
	if lr == nil {
		return DelegateResult{}, DemosaicError{Status: -1, Msg: "libraw_init failed"}
	}
	defer C.libraw_close(lr)

	raw := C.CBytes(uint16Bytes(p.Raw))
	defer C.free(raw)

	res := C.libraw_open_bayer(lr, (*C.uchar)(raw), C.uint(2*len(p.Raw)),
		C.ushort(p.Width), C.ushort(p.Height), 0, 0, 0, 0,
		0, librawPattern(p.CFA), 0, 0, C.uint(p.Black))
	if err := librawError("open_bayer", res); err != nil {
		return DelegateResult{}, err
	}
	if err := librawError("unpack", C.libraw_unpack(lr)); err != nil {
		return DelegateResult{}, err
	}

	C.libraw_set_demosaic(lr, C.int(p.Algorithm.librawQuality()))
	C.libraw_set_output_bps(lr, 16)
	C.libraw_set_gamma(lr, 0, 1.0)
	C.libraw_set_gamma(lr, 1, 1.0)
	C.libraw_set_no_auto_bright(lr, 1)
	C.libraw_set_highlight(lr, C.int(p.HighlightMode))
	C.libraw_set_output_color(lr, 0) // raw colour; the IDT is applied later
	for i:=0; i<3; i++ {
		mul := p.WB[i]
		if mul == 0 { mul = 1 }
		C.libraw_set_user_mul(lr, C.int(i), C.float(mul))
	}
	C.libraw_set_user_mul(lr, 3, C.float(p.WB[1]))

	if err := librawError("dcraw_process", C.libraw_dcraw_process(lr)); err != nil {
		return DelegateResult{}, err
	}

	var res2 C.int
	mem := C.libraw_dcraw_make_mem_image(lr, &res2)
	if err := librawError("make_mem_image", res2); err != nil {
		return DelegateResult{}, err
	}
	defer C.libraw_dcraw_clear_mem(mem)

	data := C.GoBytes(unsafe.Pointer(&mem.data), C.int(mem.data_size))
	if mem.bits == 16 {
		// libraw leaves 16-bit samples in host order, PPM wants big endian
		for i:=0; i+1 < len(data); i += 2 {
			data[i], data[i+1] = data[i+1], data[i]
		}
	}
	header := fmt.Sprintf("P6\n%d %d\n%d\n", int(mem.width), int(mem.height), (1<<uint(mem.bits))-1)
	img, err := ppm.Decode(bytes.NewReader(append([]byte(header), data...)))
	if err != nil {
		return DelegateResult{}, DemosaicError{Status: StatusBadResult, Msg: fmt.Sprintf("decoding libraw output: %v", err)}
	}
	return fromImage(img), nil
}

func uint16Bytes(v []uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, s := range v {
		b[2*i] = byte(s)
		b[2*i+1] = byte(s >> 8)
	}
	return b
}

func fromImage(img image.Image) DelegateResult {
	bounds := img.Bounds()
	out := DelegateResult{Width: bounds.Dx(), Height: bounds.Dy(), Pix: make([]uint16, 3*bounds.Dx()*bounds.Dy())}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = uint16(r), uint16(g), uint16(b)
			i += 3
		}
	}
	return out
}
