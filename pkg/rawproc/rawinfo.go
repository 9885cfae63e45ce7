// Package rawproc cleans up a raw mosaic before it is demosaiced:
// levels, dark frame subtraction, pixel repair, dual ISO merging and
// chroma smoothing.
package rawproc

import "fmt"

type DualISOMode int

const(
	DualISOOff DualISOMode = iota
	DualISOHighQuality
	DualISOPreview
)

// DualISOInterpolation is how the missing rows of each exposure are filled in
type DualISOInterpolation int

const(
	InterpolateEdgeDirected DualISOInterpolation = iota
	InterpolateMean
)

// ChromaSmooth picks the window of the chroma smoother
type ChromaSmooth int

const(
	ChromaSmoothOff ChromaSmooth = iota
	ChromaSmooth2x2
	ChromaSmooth3x3
	ChromaSmooth5x5
)

// RawInfo holds the per-frame processing choices, and, once a frame
// has been processed, what actually happened. Warnings collects
// anything that was skipped or went wrong without stopping the frame.
type RawInfo struct {
	DualISO                DualISOMode
	DualISOAliasMap        bool
	DualISOFullResBlending bool
	DualISOInterpolation   DualISOInterpolation

	ChromaSmooth           ChromaSmooth
	FixFocusPixels         bool
	FixBadPixels           bool

	// Kelvin; 0 means use the camera's white balance
	ColorTemperature       int

	DarkFrameEnable        bool
	DarkFramePath          string

	// Results
	DarkFrameOK            bool
	DarkFrameError         string
	DualISOGain            float64 // 0 when no merge happened
	PixelsRepaired         int
	Warnings               []string
}

func (ri *RawInfo)UseCameraWB() bool { return ri.ColorTemperature <= 0 }

func (ri *RawInfo)warnf(format string, args ...interface{}) {
	ri.Warnings = append(ri.Warnings, fmt.Sprintf(format, args...))
}

// resetResults clears the outcome of any previous frame
func (ri *RawInfo)resetResults() {
	ri.DarkFrameOK = false
	ri.DarkFrameError = ""
	ri.DualISOGain = 0
	ri.PixelsRepaired = 0
	ri.Warnings = nil
}
