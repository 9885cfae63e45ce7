// Package mlv reads and writes Magic Lantern Video containers: a
// recording split over one or more chunk files, each a sequence of
// self-describing little-endian blocks.
package mlv

import(
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Every block starts with this header. (The file header MLVI has a
// version string where the timestamp would be.)
type BlockHeader struct {
	Type      [4]byte
	BlockSize uint32
	Timestamp uint64
}

const blockHeaderSize = 16

func (h BlockHeader)Tag() string { return string(h.Type[:]) }

func newHeader(tag string, size int, ts uint64) BlockHeader {
	h := BlockHeader{BlockSize: uint32(size), Timestamp: ts}
	copy(h.Type[:], tag)
	return h
}

// Video class bits in the file header
const(
	VideoClassRaw      = 0x01
	VideoClassFlagLJ92 = 0x20

	// byte offset of FileHeader.VideoClass
	videoClassOffset   = 32
)

// FileHeader is the MLVI block
type FileHeader struct {
	FileMagic       [4]byte
	BlockSize       uint32
	VersionString   [8]byte
	FileGuid        uint64
	FileNum         uint16
	FileCount       uint16
	FileFlags       uint32
	VideoClass      uint16
	AudioClass      uint16
	VideoFrameCount uint32
	AudioFrameCount uint32
	SourceFpsNom    uint32
	SourceFpsDenom  uint32
}

// VideoFrameHeader is the VIDF block; the packed or LJ92 frame follows FrameSpace bytes of padding
type VideoFrameHeader struct {
	BlockHeader
	FrameNumber uint32
	CropPosX    uint16
	CropPosY    uint16
	PanPosX     uint16
	PanPosY     uint16
	FrameSpace  uint32
}

type AudioFrameHeader struct {
	BlockHeader
	FrameNumber uint32
	FrameSpace  uint32
}

// RawInfoBody mirrors the camera's raw_info structure
type RawInfoBody struct {
	APIVersion             int32
	Buffer                 uint32
	Height                 int32
	Width                  int32
	Pitch                  int32
	FrameSize              int32
	BitsPerPixel           int32
	BlackLevel             int32
	WhiteLevel             int32
	CropOrigin             [2]int32
	CropSize               [2]int32
	ActiveArea             [4]int32 // y1, x1, y2, x2
	ExposureBias           [2]int32
	CfaPattern             int32
	CalibrationIlluminant1 int32
	ColorMatrix1           [18]int32 // 9 rationals, num/den pairs
	DynamicRange           int32
}

type RawImageInfo struct {
	BlockHeader
	XRes    uint16
	YRes    uint16
	RawInfo RawInfoBody
}

type RawCapture struct {
	BlockHeader
	SensorResX  uint16
	SensorResY  uint16
	SensorCrop  uint16
	Reserved    uint16
	BinningX    uint8
	SkippingX   uint8
	BinningY    uint8
	SkippingY   uint8
	OffsetX     int16
	OffsetY     int16
}

type Identity struct {
	BlockHeader
	CameraName   [32]byte
	CameraModel  uint32
	CameraSerial [32]byte
}

type Exposure struct {
	BlockHeader
	IsoMode      uint32
	IsoValue     uint32
	IsoAnalog    uint32
	DigitalGain  uint32
	ShutterValue uint64 // microseconds
}

type Lens struct {
	BlockHeader
	FocalLength uint16
	FocalDist   uint16
	Aperture    uint16
	Stabilizer  uint8
	Autofocus   uint8
	Flags       uint32
	LensID      uint32
	LensName    [32]byte
	LensSerial  [32]byte
}

type ExtendedLens struct {
	BlockHeader
	FocalLengthMin uint16
	FocalLengthMax uint16
	ApertureMin    uint16
	ApertureMax    uint16
	Version        uint32
	ExtenderInfo   uint8
	Capabilities   uint8
	Chipped        uint8
	LensName       [64]byte
}

type RealTimeClock struct {
	BlockHeader
	TmSec    uint16
	TmMin    uint16
	TmHour   uint16
	TmMday   uint16
	TmMon    uint16
	TmYear   uint16
	TmWday   uint16
	TmYday   uint16
	TmIsdst  uint16
	TmGmtoff uint16
	TmZone   [8]byte
}

type WhiteBalance struct {
	BlockHeader
	WbMode  uint32
	Kelvin  uint32
	WbgainR uint32
	WbgainG uint32
	WbgainB uint32
	WbsGm   uint32
	WbsBa   uint32
}

type PictureStyle struct {
	BlockHeader
	PicStyleID   uint32
	Contrast     int32
	Sharpness    int32
	Saturation   int32
	Colortone    int32
	PicStyleName [16]byte
}

type WaveInfo struct {
	BlockHeader
	Format         uint16
	Channels       uint16
	SamplingRate   uint32
	BytesPerSecond uint32
	BlockAlign     uint16
	BitsPerSample  uint16
}

type DualISO struct {
	BlockHeader
	DualMode uint32
	IsoValue uint32
}

// DarkFrameHeader is the DARK block, an averaged dark frame embedded in the recording
type DarkFrameHeader struct {
	BlockHeader
	SamplesAveraged uint32
	CameraModel     uint32
	XRes            uint16
	YRes            uint16
	RawWidth        uint32
	RawHeight       uint32
	BitsPerPixel    uint32
	BlackLevel      uint32
	WhiteLevel      uint32
	SourceFpsNom    uint32
	SourceFpsDenom  uint32
	IsoMode         uint32
	IsoValue        uint32
	IsoAnalog       uint32
	DigitalGain     uint32
	ShutterValue    uint64
	BinningX        uint8
	SkippingX       uint8
	BinningY        uint8
	SkippingY       uint8
}

type VersionHeader struct {
	BlockHeader
	Length uint32
}

// Fixed sizes, as they appear on disk
var(
	sizeMLVI = binary.Size(FileHeader{})
	sizeVIDF = binary.Size(VideoFrameHeader{})
	sizeAUDF = binary.Size(AudioFrameHeader{})
	sizeRAWI = binary.Size(RawImageInfo{})
	sizeRAWC = binary.Size(RawCapture{})
	sizeIDNT = binary.Size(Identity{})
	sizeEXPO = binary.Size(Exposure{})
	sizeLENS = binary.Size(Lens{})
	sizeELNS = binary.Size(ExtendedLens{})
	sizeRTCI = binary.Size(RealTimeClock{})
	sizeWBAL = binary.Size(WhiteBalance{})
	sizeSTYL = binary.Size(PictureStyle{})
	sizeWAVI = binary.Size(WaveInfo{})
	sizeDISO = binary.Size(DualISO{})
	sizeDARK = binary.Size(DarkFrameHeader{})
	sizeVERS = binary.Size(VersionHeader{})
)

// Block is any decoded block. The concrete type is picked by DecodeBlock from the type tag.
type Block interface {
	Tag() string
}

// InfoBlock is the free-text INFO block
type InfoBlock struct {
	BlockHeader
	Text string
}

// VersionBlock is a VERS annotation
type VersionBlock struct {
	VersionHeader
	Text string
}

func (f FileHeader)Tag() string { return string(f.FileMagic[:]) }

// DecodeBlock reads the fixed part of a block whose full bytes (header included) are in `raw`.
func DecodeBlock(raw []byte) (Block, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: block of %d bytes", ErrCorrupted, len(raw))
	}

	var b Block
	switch tag := string(raw[:4]); tag {
	case "MLVI": b = &FileHeader{}
	case "VIDF": b = &VideoFrameHeader{}
	case "AUDF": b = &AudioFrameHeader{}
	case "RAWI": b = &RawImageInfo{}
	case "RAWC": b = &RawCapture{}
	case "IDNT": b = &Identity{}
	case "EXPO": b = &Exposure{}
	case "LENS": b = &Lens{}
	case "ELNS": b = &ExtendedLens{}
	case "RTCI": b = &RealTimeClock{}
	case "WBAL": b = &WhiteBalance{}
	case "STYL": b = &PictureStyle{}
	case "WAVI": b = &WaveInfo{}
	case "DISO": b = &DualISO{}
	case "DARK": b = &DarkFrameHeader{}

	case "INFO":
		ib := &InfoBlock{}
		if err := readStruct(raw, &ib.BlockHeader); err != nil {
			return nil, err
		}
		ib.Text = cString(raw[blockHeaderSize:])
		return ib, nil

	case "VERS":
		vb := &VersionBlock{}
		if err := readStruct(raw, &vb.VersionHeader); err != nil {
			return nil, err
		}
		vb.Text = cString(raw[sizeVERS:])
		return vb, nil

	default:
		return nil, fmt.Errorf("%w: unknown block type %q", ErrCorrupted, tag)
	}

	if err := readStruct(raw, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readStruct(raw []byte, v interface{}) error {
	n := binary.Size(v)
	if len(raw) < n {
		// Older firmware wrote some blocks shorter; zero-fill the tail
		padded := make([]byte, n)
		copy(padded, raw)
		raw = padded
	}
	if err := binary.Read(bytes.NewReader(raw[:n]), binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return nil
}

func writeStruct(w io.Writer, v interface{}) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// cString trims at the first NUL
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
