package mlv

import(
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFastIndexRoundTrip(t *testing.T) {
	path := writeTestClip(t, 6)

	c1, err := OpenWithOptions(path, Options{UseFastIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	if _, err := os.Stat(FastIndexPath(path)); err != nil {
		t.Fatalf("fast index not written: %v", err)
	}

	c2, err := OpenWithOptions(path, Options{UseFastIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	if len(c2.Idx.Video) != len(c1.Idx.Video) || c2.Idx.BlockCount != c1.Idx.BlockCount {
		t.Fatalf("fast index has %d frames / %d blocks, scan had %d / %d",
			len(c2.Idx.Video), c2.Idx.BlockCount, len(c1.Idx.Video), c1.Idx.BlockCount)
	}
	for i := range c1.Idx.Video {
		if c1.Idx.Video[i] != c2.Idx.Video[i] {
			t.Errorf("entry %d: %+v != %+v", i, c2.Idx.Video[i], c1.Idx.Video[i])
		}
	}
	if c2.RAWI != c1.RAWI || c2.MLVI != c1.MLVI {
		t.Errorf("headers differ after fast index load")
	}
	samples, _, err := c2.ReadFrameSamples(5)
	if err != nil || !samplesEqual(samples, testSamples(5)) {
		t.Errorf("frame 5 via fast index: %v", err)
	}
}

func TestFastIndexIgnoredWhenStale(t *testing.T) {
	path := writeTestClip(t, 3)
	if err := os.WriteFile(FastIndexPath(path), []byte("MAPP garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := OpenWithOptions(path, Options{UseFastIndex: true})
	if err != nil {
		t.Fatalf("a bad fast index should fall back to scanning: %v", err)
	}
	defer c.Close()
	if c.FrameCount() != 3 {
		t.Errorf("FrameCount = %d", c.FrameCount())
	}
}

func TestFastIndexPath(t *testing.T) {
	if got := FastIndexPath("/a/b/M01-0001.MLV"); got != "/a/b/M01-0001.MAPP" {
		t.Errorf("FastIndexPath = %s", got)
	}
}

// shortWriter fails once n bytes have been written
type shortWriter struct{ n int }

func (w *shortWriter)Write(p []byte) (int, error) {
	if len(p) > w.n {
		k := w.n
		w.n = 0
		return k, errors.New("disk full")
	}
	w.n -= len(p)
	return len(p), nil
}

func TestFastIndexWriteErrors(t *testing.T) {
	hdr := fastIndexHeader{Magic: [4]byte{'M', 'A', 'P', 'P'}, Version: fastIndexVersion}
	body, audio := make([]byte, 100), make([]byte, 50)
	total := binary.Size(hdr) + len(body) + len(audio)

	if err := writeFastIndex(&shortWriter{n: total}, hdr, body, audio); err != nil {
		t.Fatalf("room for everything: %v", err)
	}
	for _, n := range []int{0, 10, 60, total - 1} {
		if err := writeFastIndex(&shortWriter{n: n}, hdr, body, audio); err == nil {
			t.Errorf("no error when the writer fails after %d bytes", n)
		}
	}

	c, err := Open(writeTestClip(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	bad := filepath.Join(t.TempDir(), "missing", "x.MAPP")
	if err := c.WriteFastIndex(bad); err == nil {
		t.Error("no error writing into a missing dir")
	}
}
