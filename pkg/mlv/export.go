package mlv

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/abworrall/mlvraw/pkg/rawcodec"
)

type ExportMode int

const(
	ExportFastPass ExportMode = iota // copy frames as they are
	ExportCompress                   // LJ92 compress an uncompressed recording
	ExportDecompress                 // undo LJ92 compression
	ExportAveragedFrame              // average the range into a single frame (e.g. a dark frame)
	ExportDarkFrameInternal          // write the recording's embedded DARK block as its own file
)

func (m ExportMode)String() string {
	switch m {
	case ExportFastPass:          return "MLV_FAST_PASS"
	case ExportCompress:          return "MLV_COMPRESS"
	case ExportDecompress:        return "MLV_DECOMPRESS"
	case ExportAveragedFrame:     return "MLV_AVERAGED_FRAME"
	case ExportDarkFrameInternal: return "MLV_DF_INT"
	}
	return fmt.Sprintf("MLV_MODE_%d", int(m))
}

func ParseExportMode(s string) (ExportMode, error) {
	switch s {
	case "fastpass", "MLV_FAST_PASS":        return ExportFastPass, nil
	case "compress", "MLV_COMPRESS":         return ExportCompress, nil
	case "decompress", "MLV_DECOMPRESS":     return ExportDecompress, nil
	case "average", "MLV_AVERAGED_FRAME":    return ExportAveragedFrame, nil
	case "darkframe", "MLV_DF_INT":          return ExportDarkFrameInternal, nil
	}
	return 0, fmt.Errorf("%w: no export mode named '%s'", ErrExport, s)
}

// DarkFrame is an averaged dark frame, as embedded into an export
type DarkFrame struct {
	Header  DarkFrameHeader
	Samples []uint16
}

type ExportOptions struct {
	Mode       ExportMode
	Start      int  // first frame, 1-based; 0 means the first frame
	End        int  // last frame, inclusive; 0 means the last frame
	Audio      bool

	AppName    string
	AppVersion string
	Now        time.Time // stamped into the provenance block; zero means time.Now()

	// If set, embedded as a DARK block (not used by the averaging modes)
	DarkFrame  *DarkFrame

	Progress   func(done, total int)
}

func (o ExportOptions)averaging() bool { return o.Mode >= ExportAveragedFrame }

// ExportFile writes a new single-chunk recording
func (c *Container)ExportFile(filename string, opt ExportOptions) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("%w: create '%s': %v", ErrExport, filename, err)
	}
	if err := c.Export(f, opt); err != nil {
		f.Close()
		os.Remove(filename)
		return err
	}
	return f.Close()
}

// Export writes frames [Start,End] of the recording into `w` as a new
// single-chunk recording. The file header is patched in place if a
// frame can't be (de)compressed, hence the Seeker.
func (c *Container)Export(w io.WriteSeeker, opt ExportOptions) error {
	switch {
	case opt.Mode == ExportDarkFrameInternal && c.DARK == nil:
		return fmt.Errorf("%w: there is no internal darkframe in '%s'", ErrExport, c.Path)
	case opt.Mode == ExportCompress && c.IsCompressed():
		return fmt.Errorf("%w: '%s' is already compressed, use fast pass instead", ErrExport, c.Path)
	case opt.Mode == ExportDecompress && !c.IsCompressed():
		return fmt.Errorf("%w: '%s' is already uncompressed, use fast pass instead", ErrExport, c.Path)
	case opt.Mode < ExportFastPass || opt.Mode > ExportDarkFrameInternal:
		return fmt.Errorf("%w: unknown mode %d", ErrExport, int(opt.Mode))
	}

	if opt.Start <= 0 {
		opt.Start = 1
	}
	if opt.End <= 0 || opt.End > c.FrameCount() {
		opt.End = c.FrameCount()
	}
	if opt.Start > opt.End {
		return fmt.Errorf("%w: empty frame range [%d,%d]", ErrExport, opt.Start, opt.End)
	}
	if opt.Now.IsZero() {
		opt.Now = time.Now()
	}
	if opt.AppName == "" {
		opt.AppName = "mlvraw"
	}

	if err := c.writeHeaders(w, opt); err != nil {
		return err
	}

	x := exporter{c: c, w: w, opt: opt}
	if opt.Mode == ExportDarkFrameInternal {
		return x.writeInternalDarkFrame()
	}

	total := opt.End - opt.Start + 1
	for i := opt.Start - 1; i <= opt.End - 1; i++ {
		if err := x.writeFrame(i); err != nil {
			return err
		}
		if opt.Progress != nil {
			opt.Progress(i - opt.Start + 2, total)
		}
	}
	return nil
}

func (c *Container)audioEnabled(opt ExportOptions) bool {
	return c.HasAudio() && opt.Audio && !opt.averaging()
}

// ProvenanceString is the text of the VERS block an export adds
func (c *Container)ProvenanceString(opt ExportOptions) string {
	audio := "OFF"
	if c.audioEnabled(opt) {
		audio = "ON"
	}
	return fmt.Sprintf("exported by %s version %s on %s; export mode: %s (audio: %s) ",
		opt.AppName, opt.AppVersion, opt.Now.Format("15:04:05 Jan _2 2006"), opt.Mode, audio)
}

// exportHeaders applies the mode-specific overrides to copies of the live headers
func (c *Container)exportHeaders(opt ExportOptions) Headers {
	h := *c.Headers
	audio := c.audioEnabled(opt)

	h.MLVI.FileNum = 0
	h.MLVI.FileCount = 1
	h.MLVI.BlockSize = uint32(sizeMLVI)
	if opt.averaging() {
		h.MLVI.VideoFrameCount = 1
	} else {
		h.MLVI.VideoFrameCount = uint32(opt.End - opt.Start + 1)
	}
	if audio {
		h.MLVI.AudioFrameCount, h.MLVI.AudioClass = 1, 1
	} else {
		h.MLVI.AudioFrameCount, h.MLVI.AudioClass = 0, 0
	}
	if opt.Mode == ExportCompress && !c.IsCompressed() {
		h.MLVI.VideoClass |= VideoClassFlagLJ92
	} else if opt.Mode >= ExportDecompress && c.IsCompressed() {
		h.MLVI.VideoClass = VideoClassRaw
	}

	// Optional blocks are copied so the overrides below don't touch shared state
	if h.RAWC != nil { v := *h.RAWC; h.RAWC = &v }
	// These are always written, empty if the recording has none
	idnt, expo, lens, wbal, rtci := Identity{}, Exposure{}, Lens{}, WhiteBalance{}, RealTimeClock{}
	if h.IDNT != nil { idnt = *h.IDNT }
	if h.EXPO != nil { expo = *h.EXPO }
	if h.LENS != nil { lens = *h.LENS }
	if h.WBAL != nil { wbal = *h.WBAL }
	if h.RTCI != nil { rtci = *h.RTCI }
	h.IDNT, h.EXPO, h.LENS, h.WBAL, h.RTCI = &idnt, &expo, &lens, &wbal, &rtci

	if d := c.DARK; opt.Mode == ExportDarkFrameInternal && d != nil {
		h.MLVI.SourceFpsNom = d.SourceFpsNom
		h.MLVI.SourceFpsDenom = d.SourceFpsDenom

		h.RAWI.XRes = d.XRes
		h.RAWI.YRes = d.YRes
		h.RAWI.RawInfo.Width = int32(d.RawWidth)
		h.RAWI.RawInfo.Height = int32(d.RawHeight)
		h.RAWI.RawInfo.BitsPerPixel = int32(d.BitsPerPixel)
		h.RAWI.RawInfo.BlackLevel = int32(d.BlackLevel)
		h.RAWI.RawInfo.WhiteLevel = int32(d.WhiteLevel)

		if h.RAWC != nil {
			h.RAWC.BinningX, h.RAWC.SkippingX = d.BinningX, d.SkippingX
			h.RAWC.BinningY, h.RAWC.SkippingY = d.BinningY, d.SkippingY
		}
		h.IDNT.CameraModel = d.CameraModel
		h.EXPO.IsoMode = d.IsoMode
		h.EXPO.IsoValue = d.IsoValue
		h.EXPO.IsoAnalog = d.IsoAnalog
		h.EXPO.DigitalGain = d.DigitalGain
		h.EXPO.ShutterValue = d.ShutterValue
	}

	return h
}

func (h *BlockHeader)setHeader(tag string) {
	copy(h.Type[:], tag)
}

// writeHeaders emits the file header and metadata in canonical order, then the version blocks
func (c *Container)writeHeaders(w io.Writer, opt ExportOptions) error {
	h := c.exportHeaders(opt)
	var b bytes.Buffer

	put := func(v interface{}, tag string) {
		size := binary.Size(v)
		// Normalize each header's size field to what we actually write
		switch hv := v.(type) {
		case *FileHeader:
			hv.BlockSize = uint32(size)
		case interface{ hdr() *BlockHeader }:
			bh := hv.hdr()
			bh.setHeader(tag)
			bh.BlockSize = uint32(size)
		}
		writeStruct(&b, v)
	}

	put(&h.MLVI, "MLVI")
	put(&h.RAWI, "RAWI")
	if h.RAWC != nil { put(h.RAWC, "RAWC") }
	put(h.IDNT, "IDNT")
	put(h.EXPO, "EXPO")
	put(h.LENS, "LENS")
	if h.ELNS != nil { v := *h.ELNS; put(&v, "ELNS") }
	put(h.WBAL, "WBAL")
	if h.STYL != nil { v := *h.STYL; put(&v, "STYL") }
	put(h.RTCI, "RTCI")

	if h.INFO != "" {
		info := append([]byte(h.INFO), 0)
		writeStruct(&b, newHeader("INFO", blockHeaderSize + len(info), 0))
		b.Write(info)
	}
	if h.DISO != nil { v := *h.DISO; put(&v, "DISO") }
	if c.audioEnabled(opt) { v := *h.WAVI; put(&v, "WAVI") }

	if df := opt.DarkFrame; df != nil && !opt.averaging() {
		dh := df.Header
		packed := rawcodec.Pack(df.Samples, int(dh.BitsPerPixel))
		dh.Type = [4]byte{'D', 'A', 'R', 'K'}
		dh.BlockSize = uint32(sizeDARK + len(packed))
		writeStruct(&b, dh)
		b.Write(packed)
	}

	// Our provenance, then the recording's own history
	vers := append([]byte(c.ProvenanceString(opt)), 0)
	writeStruct(&b, VersionHeader{
		BlockHeader: newHeader("VERS", sizeVERS + len(vers), 0xFFFFFFFFFFFFFFFF),
		Length:      uint32(len(vers)),
	})
	b.Write(vers)

	for i, e := range c.Idx.Vers {
		raw, err := c.readChunk(int(e.Chunk), e.BlockOffset, sizeVERS + int(e.FrameSize))
		if err != nil {
			return fmt.Errorf("%w: VERS block %d: %v", ErrExport, i, err)
		}
		b.Write(raw)
	}

	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("%w: writing headers: %v", ErrExport, err)
	}
	return nil
}

func (h *BlockHeader)hdr() *BlockHeader { return h }

type exporter struct {
	c        *Container
	w        io.WriteSeeker
	opt      ExportOptions
	avg      []uint64
	wroteAud bool
}

// patchVideoClass rewrites the file header's video class without losing our place
func (x *exporter)patchVideoClass(class uint16) {
	cur, err := x.w.Seek(0, io.SeekCurrent)
	if err == nil {
		if _, err = x.w.Seek(videoClassOffset, io.SeekStart); err == nil {
			err = binary.Write(x.w, binary.LittleEndian, class)
		}
		x.w.Seek(cur, io.SeekStart)
	}
	if err != nil {
		log.Printf("mlv: could not patch videoClass in export header: %v", err)
	}
}

func (x *exporter)writeAudio(vidf VideoFrameHeader) error {
	x.wroteAud = true
	c := x.c
	off, size := c.audioSlice(x.opt.Start, x.opt.End)
	audio, err := c.rawAudio()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if off + size > uint64(len(audio)) {
		size = 0
	}

	audf := AudioFrameHeader{BlockHeader: newHeader("AUDF", sizeAUDF + int(size), vidf.Timestamp)}
	if err := writeStruct(x.w, audf); err != nil {
		return fmt.Errorf("%w: AUDF header: %v", ErrExport, err)
	}
	if _, err := x.w.Write(audio[off:off+size]); err != nil {
		return fmt.Errorf("%w: AUDF data: %v", ErrExport, err)
	}
	return nil
}

func (x *exporter)writeBlock(vidf VideoFrameHeader, payload []byte) error {
	vidf.FrameSpace = 0
	vidf.BlockSize = uint32(sizeVIDF + len(payload))
	if err := writeStruct(x.w, vidf); err != nil {
		return fmt.Errorf("%w: VIDF header: %v", ErrExport, err)
	}
	if _, err := x.w.Write(payload); err != nil {
		return fmt.Errorf("%w: VIDF data: %v", ErrExport, err)
	}
	return nil
}

func (x *exporter)writeFrame(i int) error {
	c := x.c
	rf, err := c.FrameAt(i)
	if err != nil {
		return fmt.Errorf("%w: frame %d: %v", ErrExport, i, err)
	}
	vidf := rf.Header
	w, h, bpp := c.Width(), c.Height(), c.BitsPerPixel()

	if !x.wroteAud && c.audioEnabled(x.opt) {
		if err := x.writeAudio(vidf); err != nil {
			return err
		}
	}

	switch {
	case x.opt.Mode == ExportAveragedFrame:
		samples, err := c.DecodePayload(rf.Payload)
		if err != nil {
			return fmt.Errorf("%w: averaging frame %d: %v", ErrExport, i, err)
		}
		if x.avg == nil {
			x.avg = make([]uint64, len(samples))
		}
		for j, s := range samples {
			x.avg[j] += uint64(s)
		}
		if i != x.opt.End - 1 {
			return nil
		}
		n := uint64(x.opt.End - x.opt.Start + 1)
		for j := range samples {
			samples[j] = uint16((x.avg[j] + n/2) / n)
		}
		vidf.FrameNumber = uint32(n)
		return x.writeBlock(vidf, rawcodec.Pack(samples, bpp))

	case x.opt.Mode == ExportCompress && !c.IsCompressed():
		samples, err := rawcodec.Unpack(rf.Payload, bpp, w*h)
		var packed []byte
		if err == nil {
			packed, err = rawcodec.Compress(samples, w, h, bpp)
		}
		if err != nil {
			if c.Verbosity > 0 {
				log.Printf("mlv: frame %d could not be compressed, writing it uncompressed: %v", i, err)
			}
			x.patchVideoClass(VideoClassRaw)
			return x.writeBlock(vidf, rf.Payload)
		}
		return x.writeBlock(vidf, packed)

	case x.opt.Mode == ExportDecompress && c.IsCompressed():
		samples, err := rawcodec.Decompress(rf.Payload, w, h)
		if err != nil {
			if c.Verbosity > 0 {
				log.Printf("mlv: frame %d could not be decompressed, keeping it compressed: %v", i, err)
			}
			x.patchVideoClass(VideoClassRaw | VideoClassFlagLJ92)
			return x.writeBlock(vidf, rf.Payload)
		}
		return x.writeBlock(vidf, rawcodec.Pack(samples, bpp))
	}

	return x.writeBlock(vidf, rf.Payload)
}

// writeInternalDarkFrame writes the DARK block's image as the only video frame
func (x *exporter)writeInternalDarkFrame() error {
	c := x.c
	d := c.DARK
	n := int(d.BlockSize) - sizeDARK
	if n < 0 {
		return fmt.Errorf("%w: DARK block of %d bytes", ErrExport, d.BlockSize)
	}
	payload, err := c.readChunk(c.Idx.DarkChunk, c.Idx.DarkOffset, n)
	if err != nil {
		return fmt.Errorf("%w: could not read DARK block image data from '%s': %v", ErrExport, c.Path, err)
	}

	rf, err := c.FrameAt(x.opt.Start - 1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	vidf := rf.Header
	vidf.FrameNumber = d.SamplesAveraged
	return x.writeBlock(vidf, payload)
}
