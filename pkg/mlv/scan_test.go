package mlv

import(
	"errors"
	"path/filepath"
	"testing"
)

func TestTwoChunkRecording(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "M12-1234.MLV")

	chunk0 := [][]byte{mlviBlock(80, VideoClassRaw), rawiBlock(testW, testH, testBPP)}
	for i:=0; i<50; i++ {
		chunk0 = append(chunk0, testFrame(i, uint64(i*1000)))
	}
	chunk1 := [][]byte{mlviBlock(80, VideoClassRaw)}
	for i:=50; i<80; i++ {
		chunk1 = append(chunk1, testFrame(i, uint64(i*1000)))
	}
	writeBlocks(t, base, chunk0...)
	writeBlocks(t, filepath.Join(dir, "M12-1234.M00"), chunk1...)

	c := mustOpen(t, base)
	if got := c.FrameCount(); got != 80 {
		t.Fatalf("FrameCount = %d, want 80", got)
	}
	if len(c.ChunkPaths) != 2 {
		t.Errorf("found %d chunks, want 2", len(c.ChunkPaths))
	}

	samples, rf, err := c.ReadFrameSamples(79)
	if err != nil {
		t.Fatalf("ReadFrameSamples(79): %v", err)
	}
	if rf.Entry.Chunk != 1 {
		t.Errorf("frame 79 came from chunk %d, want 1", rf.Entry.Chunk)
	}
	if !samplesEqual(samples, testSamples(79)) {
		t.Errorf("frame 79 samples do not match what was written")
	}
	if lo, hi, ok := c.TimeDomain(); !ok || lo != 1 || hi != 80 {
		t.Errorf("TimeDomain = %d,%d,%v, want 1,80,true", lo, hi, ok)
	}
}

func TestOnlyMLVExtensionHasChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.raw")
	writeBlocks(t, path, []byte("x"))
	writeBlocks(t, filepath.Join(dir, "clip.r00"), []byte("x"))

	if got := ChunkPaths(path); len(got) != 1 {
		t.Errorf("ChunkPaths(%s) = %v, want just the file", path, got)
	}
}

func TestScanSortsByTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mlv")
	timestamps := []uint64{5000, 1000, 3000, 2000, 4000, 4000, 0}
	blocks := [][]byte{mlviBlock(7, VideoClassRaw), rawiBlock(testW, testH, testBPP)}
	for i, ts := range timestamps {
		blocks = append(blocks, testFrame(i, ts))
		blocks = append(blocks, blockBytes(AudioFrameHeader{BlockHeader: newHeader("AUDF", sizeAUDF, ts+7)}))
	}
	writeBlocks(t, path, blocks...)

	c := mustOpen(t, path)
	if !c.Idx.IsSorted() {
		t.Fatalf("index not sorted")
	}
	for i:=1; i<len(c.Idx.Video); i++ {
		if c.Idx.Video[i-1].Timestamp > c.Idx.Video[i].Timestamp {
			t.Errorf("video[%d].ts %d > video[%d].ts %d", i-1, c.Idx.Video[i-1].Timestamp, i, c.Idx.Video[i].Timestamp)
		}
	}
	// equal timestamps keep their disk order
	if c.Idx.Video[4].FrameNumber != 4 || c.Idx.Video[5].FrameNumber != 5 {
		t.Errorf("stable sort broken: frames %d,%d", c.Idx.Video[4].FrameNumber, c.Idx.Video[5].FrameNumber)
	}
	if c.Idx.Video[0].FrameNumber != 6 {
		t.Errorf("first frame is %d, want 6", c.Idx.Video[0].FrameNumber)
	}
}

func TestFrameSpaceIsSkipped(t *testing.T) {
	path := writeTestClip(t, 3)
	c := mustOpen(t, path)

	e := c.Idx.Video[1]
	if e.FrameOffset != e.BlockOffset + uint64(sizeVIDF) + 8 {
		t.Errorf("payload at %d, block at %d: frameSpace not skipped", e.FrameOffset, e.BlockOffset)
	}
	samples, _, err := c.ReadFrameSamples(1)
	if err != nil || !samplesEqual(samples, testSamples(1)) {
		t.Errorf("frame 1 did not decode: %v", err)
	}
}

func TestRecoveryAfterCorruptBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mlv")
	junk := blockBytes(newHeader("JUNK", 4096, 0))
	junk = append(junk, make([]byte, 100)...) // real data much shorter than claimed

	blocks := [][]byte{mlviBlock(6, VideoClassRaw), rawiBlock(testW, testH, testBPP)}
	for i:=0; i<3; i++ {
		blocks = append(blocks, testFrame(i, uint64(i*1000)))
	}
	blocks = append(blocks, junk)
	for i:=3; i<6; i++ {
		blocks = append(blocks, testFrame(i, uint64(i*1000)))
	}
	writeBlocks(t, path, blocks...)

	c := mustOpen(t, path)
	if got := c.FrameCount(); got != 6 {
		t.Fatalf("FrameCount after recovery = %d, want 6", got)
	}
	for i:=0; i<6; i++ {
		samples, _, err := c.ReadFrameSamples(i)
		if err != nil || !samplesEqual(samples, testSamples(i)) {
			t.Errorf("frame %d wrong after recovery (err %v)", i, err)
		}
	}
	// junk doesn't count as a block: RAWI + 6 VIDF
	if c.Idx.BlockCount != 7 {
		t.Errorf("BlockCount = %d, want 7", c.Idx.BlockCount)
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.mlv")
	writeBlocks(t, empty)

	noHeader := filepath.Join(dir, "nohdr.mlv")
	writeBlocks(t, noHeader, rawiBlock(testW, testH, testBPP), testFrame(0, 0))

	tiny := filepath.Join(dir, "tiny.mlv")
	writeBlocks(t, tiny, mlviBlock(1, VideoClassRaw), rawiBlock(testW, testH, testBPP), blockBytes(newHeader("VIDF", 8, 0)))

	noFrames := filepath.Join(dir, "noframes.mlv")
	writeBlocks(t, noFrames, mlviBlock(0, VideoClassRaw), rawiBlock(testW, testH, testBPP))

	shortVIDF := filepath.Join(dir, "shortvidf.mlv")
	writeBlocks(t, shortVIDF, mlviBlock(2, VideoClassRaw), rawiBlock(testW, testH, testBPP),
		blockBytes(newHeader("VIDF", blockHeaderSize, 0)), testFrame(0, 40000))

	truncated := filepath.Join(dir, "truncated.mlv")
	writeBlocks(t, truncated, mlviBlock(1, VideoClassRaw), rawiBlock(testW, testH, testBPP),
		testFrame(0, 0)[:sizeVIDF - 4])

	lost := filepath.Join(dir, "lost.mlv")
	writeBlocks(t, lost, mlviBlock(1, VideoClassRaw), rawiBlock(testW, testH, testBPP), blockBytes(newHeader("ZZZZ", 64, 0)),
		make([]byte, 64))

	tests := []struct{
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "nope.mlv"), ErrOpen},
		{"zero size", empty, ErrFormat},
		{"no file header", noHeader, ErrFormat},
		{"undersized block", tiny, ErrCorrupted},
		{"frame block shorter than its header", shortVIDF, ErrCorrupted},
		{"frame header cut off", truncated, ErrEmpty},
		{"no frames", noFrames, ErrEmpty},
		{"unrecoverable", lost, ErrCorrupted},
	}

	for _, tc := range tests {
		_, err := Open(tc.path)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: Open err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestSecondChunkNeedsFileHeader(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "clip.mlv")
	writeBlocks(t, base, mlviBlock(1, VideoClassRaw), rawiBlock(testW, testH, testBPP), testFrame(0, 0))
	writeBlocks(t, filepath.Join(dir, "clip.m00"), testFrame(1, 1000))

	if _, err := Open(base); !errors.Is(err, ErrFormat) {
		t.Errorf("Open err = %v, want ErrFormat", err)
	}
}

func TestFrameIndexClamping(t *testing.T) {
	c := mustOpen(t, writeTestClip(t, 80))

	last, _, err := c.ReadFrameSamples(79)
	if err != nil {
		t.Fatal(err)
	}
	far, rf, err := c.ReadFrameSamples(1000)
	if err != nil {
		t.Fatalf("frame 1000 should clamp, got %v", err)
	}
	if rf.Index != 79 || !samplesEqual(last, far) {
		t.Errorf("frame 1000 gave index %d, want the same as frame 79", rf.Index)
	}
	if _, err := c.FrameAt(1000); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("FrameAt(1000) err = %v, want ErrIndexOutOfRange", err)
	}
}

func TestHeadersFirstAndLastWins(t *testing.T) {
	lens1 := Lens{BlockHeader: newHeader("LENS", sizeLENS, 0), Aperture: 280}
	lens2 := Lens{BlockHeader: newHeader("LENS", sizeLENS, 0), Aperture: 560}
	expo1 := Exposure{BlockHeader: newHeader("EXPO", sizeEXPO, 0), IsoValue: 100}
	expo2 := Exposure{BlockHeader: newHeader("EXPO", sizeEXPO, 0), IsoValue: 800}
	info := append(blockBytes(newHeader("INFO", blockHeaderSize+6, 0)), []byte("hello\x00")...)

	path := writeTestClip(t, 2, blockBytes(lens1), blockBytes(lens2), blockBytes(expo1), blockBytes(expo2), info)
	c := mustOpen(t, path)

	if c.Aperture() != 2.8 {
		t.Errorf("aperture %v, want the first LENS (2.8)", c.Aperture())
	}
	if c.ISO() != 800 {
		t.Errorf("ISO %d, want the last EXPO (800)", c.ISO())
	}
	if c.INFO != "hello" {
		t.Errorf("INFO = %q", c.INFO)
	}
}

func TestCloneSharesIndex(t *testing.T) {
	c := mustOpen(t, writeTestClip(t, 4))
	c2, err := c.Clone()
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	if c2.Idx != c.Idx || c2.Headers != c.Headers {
		t.Errorf("clone should share index and headers")
	}
	a, _, _ := c.ReadFrameSamples(2)
	b, _, err := c2.ReadFrameSamples(2)
	if err != nil || !samplesEqual(a, b) {
		t.Errorf("clone read differs (err %v)", err)
	}
	c2.Close()
	if _, _, err := c.ReadFrameSamples(3); err != nil {
		t.Errorf("closing a clone broke the original: %v", err)
	}
}
