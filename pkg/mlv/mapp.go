package mlv

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// The fast index (".MAPP") caches a scan: every metadata block, the
// three indexes and the audio, so a reopen doesn't have to walk the
// chunks again.

const fastIndexVersion = 3

type fastIndexHeader struct {
	Magic     [4]byte
	_         [4]byte
	MappSize  uint64 // whole file, audio included
	Version   uint8
	_         [3]byte
	BlockNum  uint32
	Video     uint32
	Audio     uint32
	Vers      uint32
	_         [4]byte
	AudioSize uint64
	DfOffset  uint64
}

// FastIndexPath swaps the clip's extension for ".MAPP"
func FastIndexPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".MAPP"
}

// fastIndexBlocks is the fixed sequence of metadata blocks in the file
type fastIndexBlocks struct {
	MLVI FileHeader
	RAWI RawImageInfo
	RAWC RawCapture
	IDNT Identity
	EXPO Exposure
	LENS Lens
	ELNS ExtendedLens
	RTCI RealTimeClock
	WBAL WhiteBalance
	STYL PictureStyle
	WAVI WaveInfo
	DISO DualISO
	DARK DarkFrameHeader
}

func (c *Container)WriteFastIndex(filename string) error {
	var blocks fastIndexBlocks
	h := c.Headers
	blocks.MLVI = h.MLVI
	blocks.RAWI = h.RAWI
	if h.RAWC != nil { blocks.RAWC = *h.RAWC }
	if h.IDNT != nil { blocks.IDNT = *h.IDNT }
	if h.EXPO != nil { blocks.EXPO = *h.EXPO }
	if h.LENS != nil { blocks.LENS = *h.LENS }
	if h.ELNS != nil { blocks.ELNS = *h.ELNS }
	if h.RTCI != nil { blocks.RTCI = *h.RTCI }
	if h.WBAL != nil { blocks.WBAL = *h.WBAL }
	if h.STYL != nil { blocks.STYL = *h.STYL }
	if h.WAVI != nil { blocks.WAVI = *h.WAVI }
	if h.DISO != nil { blocks.DISO = *h.DISO }

	// Only a dark frame in the first chunk can be described
	dfOffset := c.Idx.DarkOffset
	if h.DARK != nil && c.Idx.DarkChunk == 0 {
		blocks.DARK = *h.DARK
	} else {
		dfOffset = 0
	}

	audio, err := c.rawAudio()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	for _, v := range []interface{}{blocks, c.Idx.Video, c.Idx.Audio, c.Idx.Vers} {
		if err := writeStruct(&body, v); err != nil {
			return fmt.Errorf("fast index: %v", err)
		}
	}

	hdr := fastIndexHeader{
		Magic:     [4]byte{'M', 'A', 'P', 'P'},
		Version:   fastIndexVersion,
		BlockNum:  uint32(c.Idx.BlockCount),
		Video:     uint32(len(c.Idx.Video)),
		Audio:     uint32(len(c.Idx.Audio)),
		Vers:      uint32(len(c.Idx.Vers)),
		AudioSize: uint64(len(audio)),
		DfOffset:  dfOffset,
	}
	hdr.MappSize = uint64(binary.Size(hdr) + body.Len() + len(audio))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create fast index '%s': %v", filename, err)
	}
	err = writeFastIndex(f, hdr, body.Bytes(), audio)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// A partial index would only be rejected later
		os.Remove(filename)
		return fmt.Errorf("write fast index '%s': %v", filename, err)
	}
	return nil
}

func writeFastIndex(w io.Writer, hdr fastIndexHeader, body, audio []byte) error {
	if err := writeStruct(w, hdr); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err := w.Write(audio)
	return err
}

// loadFastIndex fills in headers and index from a fast index file, if
// it matches the open chunks.
func (c *Container)loadFastIndex(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	var hdr fastIndexHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("fast index header: %v", err)
	}
	if string(hdr.Magic[:]) != "MAPP" || hdr.Version != fastIndexVersion {
		return fmt.Errorf("fast index '%s' has magic %q version %d", filename, hdr.Magic[:], hdr.Version)
	}
	if hdr.MappSize != uint64(fi.Size()) {
		return fmt.Errorf("fast index '%s' is %d bytes, header says %d", filename, fi.Size(), hdr.MappSize)
	}

	var blocks fastIndexBlocks
	if err := binary.Read(f, binary.LittleEndian, &blocks); err != nil {
		return fmt.Errorf("fast index blocks: %v", err)
	}

	// It must describe these chunks, not some earlier recording with the same name
	var mlvi FileHeader
	if err := readAt(c.files[0], 0, &mlvi); err != nil {
		return err
	}
	if mlvi.FileGuid != blocks.MLVI.FileGuid {
		return fmt.Errorf("fast index '%s' belongs to a different recording", filename)
	}

	idx := &Index{
		Video:      make([]IndexEntry, hdr.Video),
		Audio:      make([]IndexEntry, hdr.Audio),
		Vers:       make([]IndexEntry, hdr.Vers),
		BlockCount: int(hdr.BlockNum),
		AudioSize:  hdr.AudioSize,
		DarkOffset: hdr.DfOffset,
	}
	for _, e := range []interface{}{idx.Video, idx.Audio, idx.Vers} {
		if err := binary.Read(f, binary.LittleEndian, e); err != nil {
			return fmt.Errorf("fast index entries: %v", err)
		}
	}
	for _, e := range idx.Video {
		if int(e.Chunk) >= len(c.files) {
			return fmt.Errorf("fast index refers to chunk %d, only %d open", e.Chunk, len(c.files))
		}
	}
	if len(idx.Video) == 0 {
		return fmt.Errorf("%w: fast index has no frames", ErrEmpty)
	}
	if _, err := f.Seek(int64(hdr.AudioSize), io.SeekCurrent); err != nil {
		return err
	}

	h := &Headers{MLVI: blocks.MLVI, RAWI: blocks.RAWI}
	present := func(b BlockHeader) bool { return b.Type != [4]byte{} }
	if present(blocks.RAWC.BlockHeader) { v := blocks.RAWC; h.RAWC = &v }
	if present(blocks.IDNT.BlockHeader) { v := blocks.IDNT; h.IDNT = &v }
	if present(blocks.EXPO.BlockHeader) { v := blocks.EXPO; h.EXPO = &v }
	if present(blocks.LENS.BlockHeader) { v := blocks.LENS; h.LENS = &v }
	if present(blocks.ELNS.BlockHeader) { v := blocks.ELNS; h.ELNS = &v }
	if present(blocks.RTCI.BlockHeader) { v := blocks.RTCI; h.RTCI = &v }
	if present(blocks.WBAL.BlockHeader) { v := blocks.WBAL; h.WBAL = &v }
	if present(blocks.STYL.BlockHeader) { v := blocks.STYL; h.STYL = &v }
	if present(blocks.WAVI.BlockHeader) { v := blocks.WAVI; h.WAVI = &v }
	if present(blocks.DISO.BlockHeader) { v := blocks.DISO; h.DISO = &v }
	if present(blocks.DARK.BlockHeader) { v := blocks.DARK; h.DARK = &v }

	c.Headers = h
	c.Idx = idx
	return nil
}
