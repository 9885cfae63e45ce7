package rawproc

import(
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/abworrall/mlvraw/pkg/mlv"
)

// FrameInfo is what the reconstructor needs to know about the recording
type FrameInfo struct {
	CameraModel  uint32
	BitsPerPixel int
	// The recording's DISO block says dual ISO was on
	DualISO      bool
}

func FrameInfoFor(c *mlv.Container) FrameInfo {
	return FrameInfo{
		CameraModel:  c.CameraModel(),
		BitsPerPixel: c.BitsPerPixel(),
		DualISO:      c.DISO != nil && c.DISO.DualMode != 0,
	}
}

// A Reconstructor runs the cleanup steps. It caches dark frames and
// pixel maps, and is safe for concurrent use.
type Reconstructor struct {
	PixelMaps         PixelMapSource
	Verbosity         int

	// If set, the dual ISO alias map is written here as a PNG
	AliasMapDebugFile string

	mu                sync.Mutex
	darkFrames        map[string]*mlv.DarkFrame
	pixelMaps         map[string]pixelMapEntry
}

type pixelMapEntry struct {
	pts []image.Point
	err error
}

func (r *Reconstructor)darkFrame(path string) (*mlv.DarkFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.darkFrames == nil {
		r.darkFrames = map[string]*mlv.DarkFrame{}
	}
	if df, exists := r.darkFrames[path]; exists {
		return df, nil
	}

	// Failures aren't kept; the file may be written later
	df, err := LoadDarkFrame(path)
	if err != nil {
		return nil, err
	}
	if r.Verbosity > 0 {
		log.Printf("rawproc: loaded %s (%d frames averaged); %s", path, df.Header.SamplesAveraged, GetDarkFrameStats(df))
	}
	r.darkFrames[path] = df
	return df, nil
}

// ForgetDarkFrame drops the cached copy of `path`, so the next frame
// reloads it. Call it when the file has been rewritten.
func (r *Reconstructor)ForgetDarkFrame(path string) {
	r.mu.Lock()
	delete(r.darkFrames, path)
	r.mu.Unlock()
}

// ResetCaches drops every cached dark frame and pixel map
func (r *Reconstructor)ResetCaches() {
	r.mu.Lock()
	r.darkFrames = nil
	r.pixelMaps = nil
	r.mu.Unlock()
}

func (r *Reconstructor)pixelMap(model uint32, w, h int) ([]image.Point, error) {
	key := PixelMapName(model, w, h)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pixelMaps == nil {
		r.pixelMaps = map[string]pixelMapEntry{}
	}
	if e, exists := r.pixelMaps[key]; exists {
		return e.pts, e.err
	}
	pts, err := r.PixelMaps.PixelMap(model, w, h)
	r.pixelMaps[key] = pixelMapEntry{pts, err}
	return pts, err
}

// Reconstruct cleans up `m` in place, following the choices in `ri`
// and recording there what was done. Steps that can't run are skipped
// with a warning; only a bad mosaic or a cancelled context is an error.
func (r *Reconstructor)Reconstruct(ctx context.Context, m *Mosaic, fi FrameInfo, ri *RawInfo) error {
	if m == nil || m.Width < 4 || m.Height < 4 || len(m.Pix) < m.Width*m.Height {
		return fmt.Errorf("rawproc: invalid mosaic")
	}
	ri.resetResults()

	// Levels start from the recording's own
	m.Black, m.White = m.OrigBlack, m.OrigWhite

	if ri.DarkFrameEnable {
		r.applyDarkFrame(m, fi, ri)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if ri.FixFocusPixels {
		r.fixFocusPixels(m, fi, ri)
	}
	if ri.FixBadPixels {
		ri.PixelsRepaired += RepairPixels(m, DetectBadPixels(m))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if ri.DualISO != DualISOOff {
		if !fi.DualISO && r.Verbosity > 1 {
			log.Printf("rawproc: dual ISO requested, recording has no DISO block; looking for it anyway")
		}
		gain, err := r.mergeDualISO(ctx, m, ri)
		if err != nil {
			return err
		}
		ri.DualISOGain = gain
	}

	if ri.ChromaSmooth != ChromaSmoothOff {
		if err := SmoothChroma(ctx, m, ri.ChromaSmooth); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			ri.warnf("chroma smoothing skipped: %v", err)
		}
	}

	return ctx.Err()
}

func (r *Reconstructor)applyDarkFrame(m *Mosaic, fi FrameInfo, ri *RawInfo) {
	fail := func(err error) {
		ri.DarkFrameOK = false
		ri.DarkFrameError = err.Error()
		ri.warnf("darkframe not subtracted: %v", err)
	}

	if ri.DarkFramePath == "" {
		fail(fmt.Errorf("no darkframe file given"))
		return
	}
	df, err := r.darkFrame(ri.DarkFramePath)
	if err != nil {
		fail(err)
		return
	}
	if err := ValidateDarkFrame(df, m, fi.CameraModel, fi.BitsPerPixel); err != nil {
		fail(err)
		return
	}
	SubtractDarkFrame(m, df)
	ri.DarkFrameOK = true
}

func (r *Reconstructor)fixFocusPixels(m *Mosaic, fi FrameInfo, ri *RawInfo) {
	if r.PixelMaps == nil {
		return
	}
	pts, err := r.pixelMap(fi.CameraModel, m.Width, m.Height)
	if err != nil {
		ri.warnf("focus pixels not fixed: %v", err)
		return
	}
	if len(pts) == 0 {
		return
	}
	ri.PixelsRepaired += RepairPixels(m, pts)
}
