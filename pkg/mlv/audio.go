package mlv

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// AudioSampleSize is the size of one sample frame (all channels), in bytes
func (c *Container)AudioSampleSize() int {
	if c.WAVI == nil {
		return 0
	}
	return int(c.WAVI.Channels) * int(c.WAVI.BitsPerSample) / 8
}

// AudioData concatenates the audio blocks in timestamp order. The
// result is cut to whole sample frames, and to no longer than the
// video.
func (c *Container)AudioData() ([]byte, error) {
	out, err := c.rawAudio()
	if err != nil {
		return nil, err
	}
	return out[:c.usableAudioSize(uint64(len(out)))], nil
}

func (c *Container)rawAudio() ([]byte, error) {
	if !c.HasAudio() {
		return nil, nil
	}

	out := make([]byte, 0, c.Idx.AudioSize)
	for i, e := range c.Idx.Audio {
		buf, err := c.readChunk(int(e.Chunk), e.FrameOffset, int(e.FrameSize))
		if err != nil {
			return nil, fmt.Errorf("audio block %d: %w", i, err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

func (c *Container)usableAudioSize(have uint64) uint64 {
	sample := uint64(c.AudioSampleSize())
	if sample == 0 {
		return 0
	}
	if fps := c.FrameRate(); fps > 0 {
		videoBytes := uint64(float64(c.WAVI.SamplingRate) * float64(sample) * float64(c.FrameCount()) / fps)
		if videoBytes < have {
			have = videoBytes
		}
	}
	return have - have % sample
}

// audioSlice is the sample-aligned part of the audio that covers video frames [start,end] (1-based).
func (c *Container)audioSlice(start, end int) (offset, size uint64) {
	sample := uint64(c.AudioSampleSize())
	fps := c.FrameRate()
	if sample == 0 || fps <= 0 {
		return 0, 0
	}
	rate := float64(c.WAVI.SamplingRate) * float64(sample)
	blockAlign := sample * 1024

	offset = uint64(rate * float64(start-1) / fps)
	offset -= offset % sample

	size = uint64(rate * float64(end-start+1) / fps)
	if r := size % blockAlign; r != 0 {
		size += blockAlign - r
	}
	if size > c.Idx.AudioSize {
		size = c.Idx.AudioSize
	}
	if maxSize := uint64(0xFFFFFFFF) - uint64(sizeAUDF); size > maxSize {
		size = maxSize - maxSize % blockAlign
	}
	if offset >= c.Idx.AudioSize {
		return 0, 0
	}
	if offset + size > c.Idx.AudioSize {
		size = c.Idx.AudioSize - offset
		size -= size % sample
	}
	return offset, size
}

// ExportAudio writes the recording's audio as a Broadcast WAVE file
func (c *Container)ExportAudio(filename string) error {
	if !c.HasAudio() {
		return fmt.Errorf("%w: '%s' has no audio", ErrExport, c.Path)
	}
	data, err := c.AudioData()
	if err != nil {
		return err
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("%w: create '%s': %v", ErrExport, filename, err)
	}
	if err := c.WriteWAV(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type wavFmt struct {
	Format         uint16
	Channels       uint16
	SamplingRate   uint32
	BytesPerSecond uint32
	BlockAlign     uint16
	BitsPerSample  uint16
}

// bext chunk, EBU Tech 3285 (fixed part only)
type wavBext struct {
	Description          [256]byte
	Originator           [32]byte
	OriginatorReference  [32]byte
	OriginationDate      [10]byte
	OriginationTime      [8]byte
	TimeReferenceLow     uint32
	TimeReferenceHigh    uint32
	Version              uint16
	UMID                 [64]byte
	Reserved             [190]byte
}

// WriteWAV writes `data` as a RIFF WAVE with a bext chunk carrying the recording date
func (c *Container)WriteWAV(w io.Writer, data []byte) error {
	if c.WAVI == nil {
		return fmt.Errorf("%w: no WAVI header", ErrExport)
	}

	var bext wavBext
	copy(bext.Description[:], "Magic Lantern Video audio")
	copy(bext.Originator[:], c.cameraName())
	if c.RTCI != nil {
		t := c.RTCI
		copy(bext.OriginationDate[:], fmt.Sprintf("%04d-%02d-%02d", 1900+int(t.TmYear), 1+int(t.TmMon), t.TmMday))
		copy(bext.OriginationTime[:], fmt.Sprintf("%02d:%02d:%02d", t.TmHour, t.TmMin, t.TmSec))
	}
	bext.Version = 1

	f := wavFmt{
		Format:         c.WAVI.Format,
		Channels:       c.WAVI.Channels,
		SamplingRate:   c.WAVI.SamplingRate,
		BytesPerSecond: c.WAVI.BytesPerSecond,
		BlockAlign:     c.WAVI.BlockAlign,
		BitsPerSample:  c.WAVI.BitsPerSample,
	}
	if f.Format == 0 {
		f.Format = 1 // PCM
	}

	bextSize := binary.Size(bext)
	fmtSize := binary.Size(f)
	riffSize := 4 + (8 + bextSize) + (8 + fmtSize) + (8 + len(data) + len(data)%2)

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(riffSize))
	b.WriteString("WAVE")
	b.WriteString("bext")
	binary.Write(&b, binary.LittleEndian, uint32(bextSize))
	binary.Write(&b, binary.LittleEndian, bext)
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(fmtSize))
	binary.Write(&b, binary.LittleEndian, f)
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(data)))

	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("%w: wav header: %v", ErrExport, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: wav data: %v", ErrExport, err)
	}
	if len(data)%2 == 1 {
		w.Write([]byte{0})
	}
	return nil
}

func (c *Container)cameraName() string {
	if c.IDNT == nil {
		return ""
	}
	return cString(c.IDNT.CameraName[:])
}
