package mlv

import(
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxChunks = 100

// ChunkPaths lists the files of a recording. Only ".mlv" files have
// companions: "clip.mlv" continues in "clip.m00", "clip.m01", ...
// Probing stops at the first missing suffix.
func ChunkPaths(path string) []string {
	paths := []string{path}
	if !strings.EqualFold(filepath.Ext(path), ".mlv") || len(path) < 2 {
		return paths
	}

	base := path[:len(path)-2]
	for i:=0; i<maxChunks-1; i++ {
		p := fmt.Sprintf("%s%02d", base, i)
		if _, err := os.Stat(p); err != nil {
			break
		}
		paths = append(paths, p)
	}
	return paths
}
