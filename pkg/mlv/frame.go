package mlv

import(
	"fmt"

	"github.com/abworrall/mlvraw/pkg/rawcodec"
)

// RawFrame is one video block as stored: its header, and the packed or LJ92 payload.
type RawFrame struct {
	Index   int
	Entry   IndexEntry
	Header  VideoFrameHeader
	Payload []byte
}

// FetchRawFrame reads frame `i`. Requests past either end of the
// recording are clamped onto the first or last frame.
func (c *Container)FetchRawFrame(i int) (RawFrame, error) {
	return c.FrameAt(c.ClampFrame(i))
}

// FrameAt reads frame `i`, failing for indices outside the recording.
func (c *Container)FrameAt(i int) (RawFrame, error) {
	if i < 0 || i >= c.FrameCount() {
		return RawFrame{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, c.FrameCount())
	}
	e := c.Idx.Video[i]
	if int(e.Chunk) >= len(c.files) {
		return RawFrame{}, fmt.Errorf("%w: frame %d is in chunk %d, which is not open", ErrIO, i, e.Chunk)
	}
	f := c.files[e.Chunk]

	rf := RawFrame{Index: i, Entry: e}
	if err := readAt(f, int64(e.BlockOffset), &rf.Header); err != nil {
		return RawFrame{}, fmt.Errorf("%w: frame %d header: %v", ErrIO, i, err)
	}

	payload, err := readBytes(f, int64(e.FrameOffset), int(e.FrameSize))
	if err != nil {
		return RawFrame{}, fmt.Errorf("%w: frame %d payload: %v", ErrIO, i, err)
	}
	rf.Payload = payload
	return rf, nil
}

// DecodePayload turns a frame payload into a width*height mosaic of samples
func (c *Container)DecodePayload(payload []byte) ([]uint16, error) {
	n := c.Width() * c.Height()
	if n <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", ErrFormat, c.Width(), c.Height())
	}
	if c.IsCompressed() {
		return rawcodec.Decompress(payload, c.Width(), c.Height())
	}
	return rawcodec.Unpack(payload, c.BitsPerPixel(), n)
}

// ReadFrameSamples fetches (with clamping) and decodes frame `i`.
func (c *Container)ReadFrameSamples(i int) ([]uint16, RawFrame, error) {
	rf, err := c.FetchRawFrame(i)
	if err != nil {
		return nil, rf, err
	}
	samples, err := c.DecodePayload(rf.Payload)
	if err != nil {
		return nil, rf, fmt.Errorf("frame %d: %w", rf.Index, err)
	}
	return samples, rf, nil
}

// readChunk reads `n` bytes at `off` of chunk `chunk`, reusing the scratch buffer.
func (c *Container)readChunk(chunk int, off uint64, n int) ([]byte, error) {
	if chunk >= len(c.files) {
		return nil, fmt.Errorf("%w: chunk %d is not open", ErrIO, chunk)
	}
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}
	buf := c.scratch[:n]
	got, err := c.files[chunk].ReadAt(buf, int64(off))
	if got != n {
		return nil, fmt.Errorf("%w: chunk %d at %d: %v", ErrIO, chunk, off, err)
	}
	return buf, nil
}
