package mlv

import(
	"fmt"
	"log"
	"math"
	"os"
)

// Headers holds the metadata blocks of a recording. Optional blocks
// are nil when the recording has none.
type Headers struct {
	MLVI FileHeader
	RAWI RawImageInfo
	RAWC *RawCapture
	IDNT *Identity
	EXPO *Exposure
	LENS *Lens
	ELNS *ExtendedLens
	RTCI *RealTimeClock
	WBAL *WhiteBalance
	STYL *PictureStyle
	WAVI *WaveInfo
	DISO *DualISO
	DARK *DarkFrameHeader
	INFO string
}

type Options struct {
	Verbosity    int
	UseFastIndex bool // load (and if missing, write) the .MAPP index next to the clip
}

// A Container is one recording, possibly spread over several chunk
// files. It is not safe for concurrent use: frame reads share a
// scratch buffer. Use Clone (or a Pool) to read from several
// goroutines.
type Container struct {
	Path        string
	ChunkPaths  []string
	Verbosity   int

	*Headers            // shared with clones, read-only after Open
	Idx         *Index  // shared with clones, read-only after Open

	// Derived at open time
	LosslessBPP int

	files       []*os.File
	scratch     []byte
}

func Open(path string) (*Container, error) {
	return OpenWithOptions(path, Options{})
}

func OpenWithOptions(path string, opt Options) (*Container, error) {
	c := &Container{
		Path:       path,
		ChunkPaths: ChunkPaths(path),
		Verbosity:  opt.Verbosity,
	}

	for _, p := range c.ChunkPaths {
		f, err := os.Open(p)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: '%s': %v", ErrOpen, p, err)
		}
		c.files = append(c.files, f)
	}

	loaded := false
	if opt.UseFastIndex {
		if err := c.loadFastIndex(FastIndexPath(path)); err != nil {
			if c.Verbosity > 0 {
				log.Printf("mlv: fast index not used for %s: %v", path, err)
			}
		} else {
			loaded = true
		}
	}

	if !loaded {
		if err := c.scan(); err != nil {
			c.Close()
			return nil, err
		}
		if opt.UseFastIndex {
			if err := c.WriteFastIndex(FastIndexPath(path)); err != nil && c.Verbosity > 0 {
				log.Printf("mlv: could not save fast index: %v", err)
			}
		}
	}

	c.finalize()

	if c.Verbosity > 0 {
		log.Printf("mlv: opened %s: %d chunks, %d frames, %d audio blocks, %dx%d@%dbpp, %.3f fps",
			path, len(c.files), c.FrameCount(), len(c.Idx.Audio), c.RAWI.XRes, c.RAWI.YRes,
			c.RAWI.RawInfo.BitsPerPixel, c.FrameRate())
	}
	return c, nil
}

func (c *Container)finalize() {
	c.LosslessBPP = 0
	if span := int(c.RAWI.RawInfo.WhiteLevel) - int(c.RAWI.RawInfo.BlackLevel); span > 1 {
		c.LosslessBPP = int(math.Ceil(math.Log2(float64(span))))
	}
}

// Clone opens fresh file handles on the same chunks, sharing the parsed index and headers.
func (c *Container)Clone() (*Container, error) {
	c2 := &Container{
		Path:        c.Path,
		ChunkPaths:  c.ChunkPaths,
		Verbosity:   c.Verbosity,
		Headers:     c.Headers,
		Idx:         c.Idx,
		LosslessBPP: c.LosslessBPP,
	}
	for _, p := range c.ChunkPaths {
		f, err := os.Open(p)
		if err != nil {
			c2.Close()
			return nil, fmt.Errorf("%w: '%s': %v", ErrOpen, p, err)
		}
		c2.files = append(c2.files, f)
	}
	return c2, nil
}

func (c *Container)Close() error {
	var first error
	for _, f := range c.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.files = nil
	c.scratch = nil
	return first
}

func (c *Container)FrameCount() int   { return len(c.Idx.Video) }
func (c *Container)Width() int        { return int(c.RAWI.XRes) }
func (c *Container)Height() int       { return int(c.RAWI.YRes) }
func (c *Container)Resolution() (int, int) { return c.Width(), c.Height() }
func (c *Container)BitsPerPixel() int { return int(c.RAWI.RawInfo.BitsPerPixel) }
func (c *Container)BlackLevel() int   { return int(c.RAWI.RawInfo.BlackLevel) }
func (c *Container)WhiteLevel() int   { return int(c.RAWI.RawInfo.WhiteLevel) }
func (c *Container)IsCompressed() bool { return c.MLVI.VideoClass & VideoClassFlagLJ92 != 0 }
func (c *Container)HasAudio() bool    { return c.WAVI != nil && len(c.Idx.Audio) > 0 }

func (c *Container)CameraModel() uint32 {
	if c.IDNT == nil {
		return 0
	}
	return c.IDNT.CameraModel
}

func (c *Container)FrameRate() float64 {
	if c.MLVI.SourceFpsDenom == 0 {
		return 0
	}
	return float64(c.MLVI.SourceFpsNom) / float64(c.MLVI.SourceFpsDenom)
}

// TimeDomain is the inclusive 1-based frame range; ok is false for an empty recording.
func (c *Container)TimeDomain() (lo, hi int, ok bool) {
	if c.FrameCount() == 0 {
		return 0, 0, false
	}
	return 1, c.FrameCount(), true
}

// ClampFrame maps any requested index onto a valid one
func (c *Container)ClampFrame(i int) int {
	if i >= c.FrameCount() {
		i = c.FrameCount() - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
