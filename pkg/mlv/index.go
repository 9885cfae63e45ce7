package mlv

import "sort"

// Kinds of indexed block
const(
	KindVideo   uint16 = 1
	KindAudio   uint16 = 2
	KindVersion uint16 = 3
)

// IndexEntry locates one block. The layout matches the on-disk fast
// index, so it has explicit padding.
type IndexEntry struct {
	Kind        uint16
	Chunk       uint16
	FrameNumber uint32
	FrameSize   uint32
	_           uint32
	FrameOffset uint64 // payload
	Timestamp   uint64 // microseconds since recording start
	BlockOffset uint64 // block header
}

// Index is everything the scan learns about where blocks live. It is
// read-only once built, and shared between clones of a Container.
type Index struct {
	Video      []IndexEntry
	Audio      []IndexEntry
	Vers       []IndexEntry
	BlockCount int
	AudioSize  uint64

	DarkChunk  int
	DarkOffset uint64 // payload of the DARK block, 0 if none
}

func sortByTimestamp(e []IndexEntry) {
	sort.SliceStable(e, func(i, j int) bool { return e[i].Timestamp < e[j].Timestamp })
}

// IsSorted reports whether the video and audio entries are in timestamp order
func (idx *Index)IsSorted() bool {
	for _, e := range [][]IndexEntry{idx.Video, idx.Audio} {
		for i:=1; i<len(e); i++ {
			if e[i-1].Timestamp > e[i].Timestamp {
				return false
			}
		}
	}
	return true
}
