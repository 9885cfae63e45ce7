package pipeline

import(
	"fmt"

	"github.com/skypies/util/histogram"

	"github.com/abworrall/mlvraw/pkg/debayer"
	"github.com/abworrall/mlvraw/pkg/mlv"
)

// Names of the four photosites of the 2x2 CFA cell, in LevelHistograms order
var CFASiteNames = [4]string{"top-left", "top-right", "bottom-left", "bottom-right"}

// LevelHistograms builds a histogram of raw sample levels per CFA
// site, for frame `i` (clamped). Buckets span the full 16-bit range.
func LevelHistograms(c *mlv.Container, i int) ([]histogram.Histogram, error) {
	samples, _, err := c.ReadFrameSamples(i)
	if err != nil {
		return nil, err
	}

	hists := []histogram.Histogram{
		histogram.Histogram{NumBuckets:256, ValMin:0, ValMax:65536},
		histogram.Histogram{NumBuckets:256, ValMin:0, ValMax:65536},
		histogram.Histogram{NumBuckets:256, ValMin:0, ValMax:65536},
		histogram.Histogram{NumBuckets:256, ValMin:0, ValMax:65536},
	}

	w, h := c.Width(), c.Height()
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			hists[(y&1)*2 + (x&1)].Add(histogram.ScalarVal(int(samples[y*w + x])))
		}
	}
	return hists, nil
}

// HistogramReport is LevelHistograms, printed
func HistogramReport(c *mlv.Container, i int) (string, error) {
	hists, err := LevelHistograms(c, i)
	if err != nil {
		return "", err
	}
	cfa, _ := debayer.CFAFromPattern(uint32(c.RAWI.RawInfo.CfaPattern))
	str := fmt.Sprintf("raw levels of frame %d (CFA %s, black %d, white %d)\n", c.ClampFrame(i), cfa, c.BlackLevel(), c.WhiteLevel())
	for site, h := range hists {
		str += fmt.Sprintf("-- %s --\n%v\n", CFASiteNames[site], h)
	}
	return str, nil
}
