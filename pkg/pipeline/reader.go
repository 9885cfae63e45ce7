package pipeline

import(
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/abworrall/mlvraw/pkg/debayer"
	"github.com/abworrall/mlvraw/pkg/ecolor"
	"github.com/abworrall/mlvraw/pkg/emath"
	"github.com/abworrall/mlvraw/pkg/mlv"
	"github.com/abworrall/mlvraw/pkg/rawproc"
)

const(
	AppName = "mlvraw"
	Version = "0.3.0"
)

// A Reader develops frames of one recording. DecodeFrame may be called
// from several goroutines at once, up to the size of the reader pool;
// beyond that it fails fast with mlv.ErrResourceBusy.
type Reader struct {
	Config

	// Runs the delegated demosaic algorithms; nil if none is available
	Delegate debayer.Delegate
	// If set, PPG runs here
	Backend  debayer.ComputeBackend

	pool     *mlv.Pool
	rec      *rawproc.Reconstructor
	sources  ecolor.CalibrationSource

	mu       sync.Mutex
	cals     map[uint32]calibrationEntry
	devs     map[developerKey]developerEntry
}

type calibrationEntry struct {
	cal ecolor.CalibrationData
	err error
}

// A developer depends on the camera, the white balance choice and the output
type developerKey struct {
	model  uint32
	cs     ecolor.Colorspace
	cat    ecolor.CATransform
	kelvin int
	camWB  bool
}

type developerEntry struct {
	gains emath.Vec3
	dev   ecolor.Developer
	err   error
}

func Open(path string, cfg Config) (*Reader, error) {
	if err := cfg.FinalizeConfig(); err != nil {
		return nil, err
	}

	pool, err := mlv.NewPool(path, cfg.NumWorkers(), mlv.Options{Verbosity: cfg.Verbosity, UseFastIndex: cfg.UseFastIndex})
	if err != nil {
		return nil, err
	}

	r := &Reader{
		Config: cfg,
		pool:   pool,
		rec:    &rawproc.Reconstructor{Verbosity: cfg.Verbosity, AliasMapDebugFile: cfg.AliasMapDebugFile},
	}
	if cfg.PixelMapDir != "" {
		r.rec.PixelMaps = rawproc.FPMDir(cfg.PixelMapDir)
	}

	sources := ecolor.Sources{}
	if cfg.CalibrationDir != "" {
		sources = append(sources, ecolor.DNGDir(cfg.CalibrationDir))
	}
	r.sources = append(sources, ecolor.BuiltinCameras)

	if cfg.EmulateGPU {
		r.Backend = debayer.NewCPUBackend(debayer.DeviceLimits{
			MaxWorkGroupSize:    256,
			MaxWorkItemSizes:    [2]int{256, 256},
			LocalMemSize:        32 << 10,
			KernelWorkGroupSize: 256,
		})
	}

	r.resetCaches()
	if cfg.Verbosity > 0 {
		log.Printf("pipeline: opened %s with %d readers\n%s", path, pool.Size(), pool.Primary().Summary())
	}
	return r, nil
}

func (r *Reader)resetCaches() {
	r.mu.Lock()
	r.cals = map[uint32]calibrationEntry{}
	r.devs = map[developerKey]developerEntry{}
	r.mu.Unlock()
}

// Container is the primary pool member. Use it for metadata only;
// frame reads belong to DecodeFrame and friends.
func (r *Reader)Container() *mlv.Container   { return r.pool.Primary() }

func (r *Reader)FrameCount() int             { return r.Container().FrameCount() }
func (r *Reader)FrameRate() float64          { return r.Container().FrameRate() }
func (r *Reader)Resolution() (int, int)      { return r.Container().Resolution() }
func (r *Reader)TimeDomain() (int, int, bool) { return r.Container().TimeDomain() }

// DecodeFrame develops frame `i` (clamped to the recording) into the
// output colorspace `cs`. `ri` carries the processing choices in, and
// what actually happened (warnings included) out. If the frame can't
// be developed the result is a black frame, along with the error.
func (r *Reader)DecodeFrame(ctx context.Context, i int, ri *rawproc.RawInfo, cs ecolor.Colorspace) (*Frame, error) {
	w, h := r.Resolution()

	lease, err := r.pool.Acquire()
	if err != nil {
		return NewBlackFrame(i, w, h, cs), err
	}
	defer lease.Release()
	c := lease.Container()

	f, err := r.decode(ctx, c, i, ri, cs)
	if err != nil {
		return NewBlackFrame(c.ClampFrame(i), w, h, cs), fmt.Errorf("frame %d: %w", i, err)
	}
	return f, nil
}

func (r *Reader)decode(ctx context.Context, c *mlv.Container, i int, ri *rawproc.RawInfo, cs ecolor.Colorspace) (*Frame, error) {
	samples, rf, err := c.ReadFrameSamples(i)
	if err != nil {
		return nil, err
	}

	cfa, ok := debayer.CFAFromPattern(uint32(c.RAWI.RawInfo.CfaPattern))
	if !ok {
		cfa = debayer.RGGB
	}
	m, err := rawproc.NewMosaic(samples, c.Width(), c.Height(), cfa, c.BlackLevel(), c.WhiteLevel())
	if err != nil {
		return nil, err
	}

	if err := r.rec.Reconstruct(ctx, m, rawproc.FrameInfoFor(c), ri); err != nil {
		return nil, err
	}
	if !ok {
		ri.Warnings = append(ri.Warnings, fmt.Sprintf("unknown CFA pattern %#x, assuming %s", c.RAWI.RawInfo.CfaPattern, cfa))
	}

	gains, dev, err := r.developer(c, ri, cs)
	if err != nil {
		ri.Warnings = append(ri.Warnings, fmt.Sprintf("colour left in camera RGB: %v", err))
	}

	opt := debayer.Options{Delegate: r.Delegate, Backend: r.Backend, Workers: r.NumWorkers()}
	res, err := debayer.Interpolate(ctx, m.Input(gains), r.DebayerAlgorithm, opt)
	var de debayer.DemosaicError
	if errors.As(err, &de) && de.Status == debayer.StatusNoDelegate {
		ri.Warnings = append(ri.Warnings, fmt.Sprintf("%v; using %s", err, debayer.PPG))
		res, err = debayer.Interpolate(ctx, m.Input(gains), debayer.PPG, opt)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	developParallel(dev, res.Pix, r.NumWorkers())

	if r.Verbosity > 1 {
		log.Printf("pipeline: frame %d developed, %d warnings", rf.Index, len(ri.Warnings))
	}

	return &Frame{
		Index:       rf.Index,
		Timestamp:   rf.Header.Timestamp,
		Width:       res.Width,
		Height:      res.Height,
		Pix:         res.Pix,
		Colorspace:  cs,
		AspectRatio: c.AspectRatio(),
	}, nil
}

func developParallel(dev ecolor.Developer, pix []float32, n int) {
	if n < 1 {
		n = 1
	}
	per := 3 * ((len(pix)/3 + n - 1) / n)

	var wg sync.WaitGroup
	for lo := 0; lo < len(pix); lo += per {
		hi := lo + per
		if hi > len(pix) { hi = len(pix) }
		wg.Add(1)
		go func(p []float32) {
			defer wg.Done()
			dev.DevelopPix(p)
		}(pix[lo:hi])
	}
	wg.Wait()
}

// developer returns the white balance gains (applied by the demosaicer)
// and the colour matrix (applied after). Without a calibration the
// frame stays in camera RGB, and the error says why.
func (r *Reader)developer(c *mlv.Container, ri *rawproc.RawInfo, cs ecolor.Colorspace) (emath.Vec3, ecolor.Developer, error) {
	key := developerKey{model: c.CameraModel(), cs: cs, cat: r.CATransform, camWB: ri.UseCameraWB()}
	if !key.camWB {
		key.kelvin = ri.ColorTemperature
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.devs[key]
	if !exists {
		e = r.newDeveloper(c, key)
		r.devs[key] = e
		if r.Verbosity > 0 {
			log.Printf("pipeline: camera %#x (%s), wb kelvin=%d, %s via %s: %s, err=%v",
				key.model, c.CameraName(), key.kelvin, cs, key.cat, e.dev, e.err)
		}
	}
	return e.gains, e.dev, e.err
}

func (r *Reader)newDeveloper(c *mlv.Container, key developerKey) developerEntry {
	none := developerEntry{gains: emath.Vec3{1, 1, 1}, dev: ecolor.Developer{Gains: emath.Vec3{1, 1, 1}, Matrix: emath.IdentityMat3()}}

	cal, err := r.calibration(c)
	if err != nil {
		none.err = err
		return none
	}
	if key.camWB {
		cal.NeutralRGB = ecolor.CameraNeutral(cal, c.WBAL)
	} else {
		cal = cal.WithTemperature(float64(key.kelvin))
	}

	idt, err := ecolor.NewDNGIdt(cal, key.cat)
	if err != nil {
		none.err = err
		return none
	}
	m, err := idt.CameraToOutputMatrix(key.cs)
	if err != nil {
		none.err = fmt.Errorf("%w: %v", ecolor.ErrCalibration, err)
		return none
	}

	// The matrix wants camera RGB over the neutral; the gains give that
	// times neutral green, so no compensation factor is needed
	gains, _ := ecolor.WhiteBalanceGains(cal, 0, true)
	return developerEntry{
		gains: gains,
		dev:   ecolor.Developer{Gains: emath.Vec3{1, 1, 1}, Matrix: m.Scale(1 / cal.NeutralRGB[1])},
	}
}

// calibration is called with r.mu held
func (r *Reader)calibration(c *mlv.Container) (ecolor.CalibrationData, error) {
	model := c.CameraModel()
	if e, exists := r.cals[model]; exists {
		return e.cal, e.err
	}

	cal, err := r.sources.Calibration(model)
	if err != nil {
		// The recording's own matrix, if it has one
		if cal2, err2 := ecolor.FromRawInfo(c.RAWI.RawInfo); err2 == nil {
			cal, err = cal2, nil
		} else {
			err = fmt.Errorf("%v; %v", err, err2)
		}
	}
	r.cals[model] = calibrationEntry{cal, err}
	return cal, err
}

// GenerateDarkFrame averages frames [start,end] (numbered from 1; 0
// means the clip's first or last frame) into a single frame MLV.
func (r *Reader)GenerateDarkFrame(start, end int, outPath string) error {
	return r.Export(outPath, mlv.ExportOptions{Mode: mlv.ExportAveragedFrame, Start: start, End: end})
}

func (r *Reader)ExportAudio(outPath string) error {
	return r.pool.With(func(c *mlv.Container) error { return c.ExportAudio(outPath) })
}

// Export writes a new MLV. When a dark frame is configured, the
// frame-copying modes embed it as a DARK block.
func (r *Reader)Export(outPath string, opt mlv.ExportOptions) error {
	if opt.AppName == "" {
		opt.AppName, opt.AppVersion = AppName, Version
	}
	if opt.DarkFrame == nil && r.Raw.DarkFrame != "" && opt.Mode <= mlv.ExportDecompress {
		df, err := rawproc.LoadDarkFrame(r.Raw.DarkFrame)
		if err != nil {
			return err
		}
		opt.DarkFrame = df
	}
	err := r.pool.With(func(c *mlv.Container) error { return c.ExportFile(outPath, opt) })

	// outPath may be a dark frame in use; it is reloaded on next use
	r.rec.ForgetDarkFrame(outPath)
	return err
}

// WriteFastIndex saves the .MAPP index next to the clip
func (r *Reader)WriteFastIndex() error {
	return r.pool.With(func(c *mlv.Container) error { return c.WriteFastIndex(mlv.FastIndexPath(c.Path)) })
}

// Reopen switches to another recording, once in-flight frames are done
func (r *Reader)Reopen(path string) error {
	if err := r.pool.Reopen(path); err != nil {
		return err
	}
	r.resetCaches()
	r.rec.ResetCaches()
	return nil
}

func (r *Reader)Close() error {
	return r.pool.Close()
}
