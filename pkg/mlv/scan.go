package mlv

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
)

const(
	// How far past an unknown block the recovery scan looks for a known one
	recoveryWindow = 128 * 1024 * 1024
	recoveryStep   = 1024 * 1024

	// Metadata blocks bigger than this are not loaded
	maxMetaBlock   = 1024 * 1024
)

var knownTags = map[string]bool{
	"MLVI": true, "VIDF": true, "AUDF": true, "RAWI": true, "RAWC": true, "IDNT": true, "EXPO": true,
	"LENS": true, "ELNS": true, "RTCI": true, "WBAL": true, "STYL": true, "WAVI": true, "DISO": true,
	"DARK": true, "INFO": true, "VERS": true, "NULL": true, "BKUP": true, "MARK": true, "ELVL": true,
	"DEBG": true,
}

var recoveryMarkers = [][]byte{[]byte("VIDF"), []byte("AUDF"), []byte("NULL"), []byte("RTCI")}

// scan walks every chunk block by block, and builds the index and headers.
func (c *Container)scan() error {
	c.Headers = &Headers{}
	c.Idx = &Index{}
	seenFirst := map[string]bool{}
	haveRAWI := false

	for ci, f := range c.files {
		fi, err := f.Stat()
		if err != nil {
			return fmt.Errorf("%w: stat '%s': %v", ErrIO, c.ChunkPaths[ci], err)
		}
		size := fi.Size()
		if size < blockHeaderSize {
			return fmt.Errorf("%w: '%s' is too small to be a recording", ErrFormat, c.ChunkPaths[ci])
		}

		var hdr BlockHeader
		if err := readAt(f, 0, &hdr); err != nil {
			return fmt.Errorf("%w: '%s': %v", ErrIO, c.ChunkPaths[ci], err)
		}
		if hdr.Tag() != "MLVI" {
			return fmt.Errorf("%w: file header is missing in '%s'", ErrFormat, c.ChunkPaths[ci])
		}
		if hdr.BlockSize < blockHeaderSize {
			return fmt.Errorf("%w: file header of %d bytes in '%s'", ErrFormat, hdr.BlockSize, c.ChunkPaths[ci])
		}
		// Only the first chunk's file header counts
		if ci == 0 {
			raw, err := readBytes(f, 0, minInt(int(hdr.BlockSize), maxMetaBlock))
			if err != nil {
				return fmt.Errorf("%w: '%s': %v", ErrIO, c.ChunkPaths[ci], err)
			}
			if err := readStruct(raw, &c.MLVI); err != nil {
				return fmt.Errorf("%w: %v", ErrFormat, err)
			}
		}
		pos := int64(hdr.BlockSize)

		for pos + blockHeaderSize <= size {
			if err := readAt(f, pos, &hdr); err != nil {
				return fmt.Errorf("%w: '%s' at %d: %v", ErrIO, c.ChunkPaths[ci], pos, err)
			}
			if hdr.BlockSize < blockHeaderSize {
				return fmt.Errorf("%w: block '%s' at %d in '%s' claims %d bytes",
					ErrCorrupted, printableTag(hdr.Type), pos, c.ChunkPaths[ci], hdr.BlockSize)
			}
			tag := hdr.Tag()
			if !knownTags[tag] {
				next, err := c.recover(f, pos, size)
				if err != nil {
					return err
				}
				if c.Verbosity > 0 {
					log.Printf("mlv: unknown block %q at %d in '%s', resynced at %d",
						printableTag(hdr.Type), pos, c.ChunkPaths[ci], next)
				}
				pos = next
				continue
			}
			if pos + int64(hdr.BlockSize) > size {
				if c.Verbosity > 0 {
					log.Printf("mlv: '%s' ends inside a %s block at %d, ignoring it", c.ChunkPaths[ci], tag, pos)
				}
				break
			}

			switch tag {
			case "NULL", "BKUP", "MARK", "ELVL", "DEBG", "MLVI":
				// nothing to index

			case "VIDF", "AUDF":
				hsize := sizeVIDF
				kind := KindVideo
				if tag == "AUDF" {
					hsize, kind = sizeAUDF, KindAudio
				}
				if int64(hdr.BlockSize) < int64(hsize) {
					return fmt.Errorf("%w: %s at %d is %d bytes, shorter than its header",
						ErrCorrupted, tag, pos, hdr.BlockSize)
				}
				raw, err := readBytes(f, pos, hsize)
				if err != nil {
					return fmt.Errorf("%w: %s header at %d: %v", ErrIO, tag, pos, err)
				}
				var frameNumber, frameSpace uint32
				if kind == KindVideo {
					var v VideoFrameHeader
					err = readStruct(raw, &v)
					frameNumber, frameSpace = v.FrameNumber, v.FrameSpace
				} else {
					var a AudioFrameHeader
					err = readStruct(raw, &a)
					frameNumber, frameSpace = a.FrameNumber, a.FrameSpace
				}
				if err != nil {
					return fmt.Errorf("%s header at %d: %w", tag, pos, err)
				}
				if int64(hsize) + int64(frameSpace) > int64(hdr.BlockSize) {
					return fmt.Errorf("%w: %s at %d has frameSpace %d beyond its size %d",
						ErrCorrupted, tag, pos, frameSpace, hdr.BlockSize)
				}
				e := IndexEntry{
					Kind:        kind,
					Chunk:       uint16(ci),
					FrameNumber: frameNumber,
					FrameSize:   hdr.BlockSize - uint32(hsize) - frameSpace,
					FrameOffset: uint64(pos) + uint64(hsize) + uint64(frameSpace),
					Timestamp:   hdr.Timestamp,
					BlockOffset: uint64(pos),
				}
				if kind == KindVideo {
					c.Idx.Video = append(c.Idx.Video, e)
				} else {
					c.Idx.Audio = append(c.Idx.Audio, e)
					c.Idx.AudioSize += uint64(e.FrameSize)
				}

			case "VERS":
				c.Idx.Vers = append(c.Idx.Vers, IndexEntry{
					Kind:        KindVersion,
					Chunk:       uint16(ci),
					FrameNumber: uint32(len(c.Idx.Vers)),
					FrameSize:   hdr.BlockSize - uint32(sizeVERS),
					FrameOffset: uint64(pos) + uint64(sizeVERS),
					Timestamp:   hdr.Timestamp,
					BlockOffset: uint64(pos),
				})

			case "RAWI", "RAWC", "IDNT", "EXPO", "LENS", "ELNS", "RTCI", "WBAL", "STYL", "WAVI", "DISO", "DARK", "INFO":
				// Single valued headers: the first one wins for these, the last one for the others
				if seenFirst[tag] && (tag == "LENS" || tag == "ELNS" || tag == "WBAL" || tag == "STYL" || tag == "RTCI") {
					break
				}
				seenFirst[tag] = true

				n := int(hdr.BlockSize)
				if tag == "DARK" {
					n = sizeDARK
				}
				raw, err := readBytes(f, pos, minInt(n, maxMetaBlock))
				if err != nil {
					return fmt.Errorf("%w: %s at %d: %v", ErrIO, tag, pos, err)
				}
				b, err := DecodeBlock(raw)
				if err != nil {
					return err
				}
				c.Headers.set(b)
				if tag == "RAWI" {
					haveRAWI = true
				}
				if tag == "DARK" {
					c.Idx.DarkChunk = ci
					c.Idx.DarkOffset = uint64(pos) + uint64(sizeDARK)
				}

			}

			c.Idx.BlockCount++
			pos += int64(hdr.BlockSize)
		}
	}

	if len(c.Idx.Video) == 0 {
		return fmt.Errorf("%w: '%s'", ErrEmpty, c.Path)
	}
	if !haveRAWI {
		return fmt.Errorf("%w: '%s' has video frames but no RAWI block", ErrFormat, c.Path)
	}

	sortByTimestamp(c.Idx.Video)
	sortByTimestamp(c.Idx.Audio)

	return nil
}

// recover looks for the next known block after a garbage one at `pos`
func (c *Container)recover(f io.ReaderAt, pos, size int64) (int64, error) {
	end := pos + recoveryWindow
	if end > size {
		end = size
	}
	buf := make([]byte, recoveryStep + 3)

	for start := pos + 1; start < end; start += recoveryStep {
		n := int64(len(buf))
		if start + n > end {
			n = end - start
		}
		if n < 4 {
			break
		}
		got, err := f.ReadAt(buf[:n], start)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("%w: recovery read at %d: %v", ErrIO, start, err)
		}

		best := -1
		for _, m := range recoveryMarkers {
			if i := bytes.Index(buf[:got], m); i >= 0 && (best < 0 || i < best) {
				best = i
			}
		}
		if best >= 0 {
			return start + int64(best), nil
		}
	}

	return 0, fmt.Errorf("%w: no known block within %d bytes of %d", ErrCorrupted, recoveryWindow, pos)
}

func (h *Headers)set(b Block) {
	switch v := b.(type) {
	case *RawImageInfo:    h.RAWI = *v
	case *RawCapture:      h.RAWC = v
	case *Identity:        h.IDNT = v
	case *Exposure:        h.EXPO = v
	case *Lens:            h.LENS = v
	case *ExtendedLens:    h.ELNS = v
	case *RealTimeClock:   h.RTCI = v
	case *WhiteBalance:    h.WBAL = v
	case *PictureStyle:    h.STYL = v
	case *WaveInfo:        h.WAVI = v
	case *DualISO:         h.DISO = v
	case *DarkFrameHeader: h.DARK = v
	case *InfoBlock:       h.INFO = v.Text
	}
}

func readAt(r io.ReaderAt, pos int64, v interface{}) error {
	buf, err := readBytes(r, pos, binary.Size(v))
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func readBytes(r io.ReaderAt, pos int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := r.ReadAt(buf, pos)
	if got == n {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

func printableTag(t [4]byte) string {
	out := []byte{}
	for _, b := range t {
		if b < 0x20 || b > 0x7e {
			out = append(out, '.')
		} else {
			out = append(out, b)
		}
	}
	return string(out)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
