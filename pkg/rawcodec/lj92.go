package rawcodec

// A decoder for lossless JPEG (ITU T.81 process 14, "LJ92"), as
// written by cameras into compressed raw video frames.

const(
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOF3 = 0xC3
	markerDHT  = 0xC4
	markerSOS  = 0xDA
	markerDRI  = 0xDD
	markerRST0 = 0xD0
	markerRST7 = 0xD7
)

// Image is a decoded LJ92 frame. Samples are stored row by row, with
// the components of each column interleaved, so a 2-component stream
// of width W is a mosaic row of 2W samples.
type Image struct {
	Width      int // in columns (each column has Components samples)
	Height     int
	Components int
	Bits       int
	Pix        []uint16
}

// Samples is the number of sample values in the image
func (img Image)Samples() int { return img.Width * img.Height * img.Components }

type ljComponent struct {
	id       byte
	table    int
}

type ljDecoder struct {
	data       []byte
	pos        int

	tables     [4]*huffTable
	comps      []ljComponent
	width      int
	height     int
	bits       int
	predictor  int
	pointXform int
	restart    int

	// bit reader
	acc        uint64
	nacc       uint
	marker     byte
}

// Decode parses and decodes a complete LJ92 stream
func Decode(data []byte) (Image, error) {
	d := &ljDecoder{data: data}
	if err := d.parse(); err != nil {
		return Image{}, err
	}

	img := Image{
		Width:      d.width,
		Height:     d.height,
		Components: len(d.comps),
		Bits:       d.bits,
	}
	n := img.Samples()
	if n <= 0 || n > 1<<28 {
		return Image{}, DecodeError{Code: LJ92ErrorNoMemory, Msg: "unreasonable frame dimensions"}
	}
	img.Pix = make([]uint16, n)

	if err := d.decodeScan(img.Pix); err != nil {
		return Image{}, err
	}
	return img, nil
}

// DecodeInto decodes a stream that must hold exactly `pixelCount` samples
func DecodeInto(data []byte, pixelCount int) ([]uint16, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if img.Samples() > pixelCount {
		return nil, DecodeError{Code: LJ92ErrorTooWide, Msg: "stream larger than the frame"}
	}
	if img.Samples() < pixelCount {
		return nil, corrupt("stream has %d samples, frame needs %d", img.Samples(), pixelCount)
	}
	return img.Pix, nil
}

func (d *ljDecoder)u16(at int) int {
	return int(d.data[at])<<8 | int(d.data[at+1])
}

// parse walks the marker segments up to and including SOS
func (d *ljDecoder)parse() error {
	if len(d.data) < 4 || d.data[0] != 0xFF || d.data[1] != markerSOI {
		return corrupt("missing SOI marker")
	}
	d.pos = 2
	sawFrame := false

	for {
		// skip fill bytes
		for d.pos < len(d.data) && d.data[d.pos] == 0xFF && d.pos+1 < len(d.data) && d.data[d.pos+1] == 0xFF {
			d.pos++
		}
		if d.pos+4 > len(d.data) {
			return corrupt("truncated before scan")
		}
		if d.data[d.pos] != 0xFF {
			return corrupt("expected marker at %d", d.pos)
		}
		marker := d.data[d.pos+1]
		length := d.u16(d.pos+2)
		seg := d.pos + 4
		end := d.pos + 2 + length
		if length < 2 || end > len(d.data) {
			return corrupt("bad segment length %d for marker %02X", length, marker)
		}

		switch marker {
		case markerDHT:
			if err := d.parseDHT(seg, end); err != nil {
				return err
			}

		case markerSOF3:
			if end-seg < 6 {
				return corrupt("short SOF3")
			}
			d.bits = int(d.data[seg])
			d.height = d.u16(seg+1)
			d.width = d.u16(seg+3)
			nc := int(d.data[seg+5])
			if nc < 1 || nc > 4 || end-seg < 6+3*nc {
				return corrupt("bad component count %d", nc)
			}
			if d.bits < 2 || d.bits > 16 {
				return corrupt("bad precision %d", d.bits)
			}
			d.comps = make([]ljComponent, nc)
			for i:=0; i<nc; i++ {
				d.comps[i].id = d.data[seg+6+3*i]
			}
			sawFrame = true

		case markerDRI:
			d.restart = d.u16(seg)

		case markerSOS:
			if !sawFrame {
				return corrupt("scan before frame header")
			}
			ns := int(d.data[seg])
			if ns != len(d.comps) || end-seg < 1+2*ns+3 {
				return corrupt("scan has %d components, frame has %d", ns, len(d.comps))
			}
			for i:=0; i<ns; i++ {
				id := d.data[seg+1+2*i]
				tbl := int(d.data[seg+2+2*i] >> 4)
				for j := range d.comps {
					if d.comps[j].id == id {
						d.comps[j].table = tbl
					}
				}
				if tbl > 3 || d.tables[tbl] == nil {
					return corrupt("component %d uses missing huffman table %d", id, tbl)
				}
			}
			d.predictor = int(d.data[seg+1+2*ns])
			d.pointXform = int(d.data[seg+3+2*ns] & 0x0F)
			if d.predictor < 1 || d.predictor > 7 {
				return corrupt("bad predictor %d", d.predictor)
			}
			d.pos = end
			return nil

		case markerEOI:
			return corrupt("no scan found")

		default:
			if marker == 0xC0 || marker == 0xC1 || marker == 0xC2 {
				return corrupt("not a lossless JPEG (SOF%d)", marker-0xC0)
			}
			// APPn, COM etc. are skipped
		}
		d.pos = end
	}
}

func (d *ljDecoder)parseDHT(seg, end int) error {
	for seg < end {
		if seg+17 > end {
			return corrupt("short DHT")
		}
		class := d.data[seg] >> 4
		id := int(d.data[seg] & 0x0F)
		if class != 0 || id > 3 {
			return corrupt("bad DHT class/id %d/%d", class, id)
		}
		t := &huffTable{}
		total := 0
		for l:=1; l<=16; l++ {
			t.bits[l] = int(d.data[seg+l])
			total += t.bits[l]
		}
		seg += 17
		if total > 256 || seg+total > end {
			return corrupt("DHT overruns segment")
		}
		t.vals = append([]byte{}, d.data[seg:seg+total]...)
		seg += total
		t.build()
		d.tables[id] = t
	}
	return nil
}

// fill tops up the bit accumulator, unstuffing 0xFF00 and stopping at markers
func (d *ljDecoder)fill() {
	for d.nacc <= 56 {
		var b byte
		if d.marker != 0 || d.pos >= len(d.data) {
			b = 0
		} else {
			b = d.data[d.pos]
			if b == 0xFF {
				next := byte(0)
				if d.pos+1 < len(d.data) {
					next = d.data[d.pos+1]
				}
				if next == 0x00 {
					d.pos += 2
				} else {
					d.marker = next
					b = 0
				}
			} else {
				d.pos++
			}
		}
		d.acc |= uint64(b) << (56 - d.nacc)
		d.nacc += 8
	}
}

func (d *ljDecoder)getBits(n uint) int {
	if n == 0 {
		return 0
	}
	if d.nacc < n {
		d.fill()
	}
	v := int(d.acc >> (64 - n))
	d.acc <<= n
	d.nacc -= n
	return v
}

func (d *ljDecoder)decodeSymbol(t *huffTable) (int, error) {
	code := int32(0)
	for l:=1; l<=16; l++ {
		code = code<<1 | int32(d.getBits(1))
		if t.maxcode[l] >= 0 && code <= t.maxcode[l] {
			idx := t.valptr[l] + int(code - t.mincode[l])
			if idx < 0 || idx >= len(t.vals) {
				break
			}
			return int(t.vals[idx]), nil
		}
	}
	return 0, corrupt("invalid huffman code at byte %d", d.pos)
}

func (d *ljDecoder)decodeDiff(t *huffTable) (int, error) {
	s, err := d.decodeSymbol(t)
	if err != nil {
		return 0, err
	}
	switch {
	case s == 0:
		return 0, nil
	case s == 16:
		return 32768, nil
	case s > 16:
		return 0, corrupt("bad difference category %d", s)
	}
	v := d.getBits(uint(s))
	if v < 1<<uint(s-1) {
		v += -(1 << uint(s)) + 1
	}
	return v, nil
}

// resync discards remaining bits and consumes the RSTn marker that ends a restart interval
func (d *ljDecoder)resync() error {
	d.acc, d.nacc = 0, 0
	if d.marker == 0 {
		// scan forward to the marker
		for d.pos+1 < len(d.data) && !(d.data[d.pos] == 0xFF && d.data[d.pos+1] != 0x00) {
			d.pos++
		}
		if d.pos+1 >= len(d.data) {
			return corrupt("missing restart marker")
		}
		d.marker = d.data[d.pos+1]
	}
	if d.marker < markerRST0 || d.marker > markerRST7 {
		return corrupt("expected RST marker, got %02X", d.marker)
	}
	d.pos += 2
	d.marker = 0
	return nil
}

func predict(p, ra, rb, rc int) int {
	switch p {
	case 1: return ra
	case 2: return rb
	case 3: return rc
	case 4: return ra + rb - rc
	case 5: return ra + ((rb - rc) >> 1)
	case 6: return rb + ((ra - rc) >> 1)
	case 7: return (ra + rb) >> 1
	}
	return ra
}

func (d *ljDecoder)decodeScan(out []uint16) error {
	nc := len(d.comps)
	stride := d.width * nc
	initial := 1 << uint(d.bits - d.pointXform - 1)
	mcus := 0
	firstRow := 0 // the row at which the current restart interval began

	for y:=0; y<d.height; y++ {
		row := out[y*stride : (y+1)*stride]
		for x:=0; x<d.width; x++ {
			if d.restart > 0 && mcus > 0 && mcus%d.restart == 0 {
				if err := d.resync(); err != nil {
					return err
				}
				firstRow = y
				if x != 0 {
					firstRow = -1 // interval began mid-row: the rest of this row predicts from the left
				}
			}
			mcus++

			for c:=0; c<nc; c++ {
				diff, err := d.decodeDiff(d.tables[d.comps[c].table])
				if err != nil {
					return err
				}

				i := x*nc + c
				var pred int
				switch {
				case mcus == 1 || (d.restart > 0 && (mcus-1)%d.restart == 0):
					pred = initial
				case y == firstRow || firstRow == -1 && x > 0:
					pred = int(row[i-nc])
				case x == 0:
					pred = int(out[(y-1)*stride + i])
				default:
					ra := int(row[i-nc])
					rb := int(out[(y-1)*stride + i])
					rc := int(out[(y-1)*stride + i - nc])
					pred = predict(d.predictor, ra, rb, rc)
				}
				row[i] = uint16((pred + diff) & 0xFFFF)
			}
		}
		if firstRow == -1 {
			firstRow = -2
		}
	}
	return nil
}
