package main

import(
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/abworrall/mlvraw/pkg/debayer"
	"github.com/abworrall/mlvraw/pkg/ecolor"
	"github.com/abworrall/mlvraw/pkg/pipeline"
)

var(
	// Set by the libraw build
	delegate debayer.Delegate

	fVerbosity int
	fConfigFile string
	fWorkers int
	fDebayer string
	fColorspace string
	fCAT string
	fTonemapper string
	fTemperature int
	fDualISO string
	fChromaSmooth int
	fFixFocusPixels bool
	fFixBadPixels bool
	fDarkFrame string
	fCalibrationDir string
	fPixelMapDir string
	fEmulateGPU bool
	fFastIndex bool
	fFormats string
	fOutDir string
	fStart int
	fEnd int
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fConfigFile, "config", "", "yaml config file; flags override it")
	flag.IntVar(&fWorkers, "workers", 0, "readers and worker goroutines (0 means one per CPU)")

	flag.StringVar(&fDebayer, "debayer", "", "demosaic algorithm: bilinear, ppg, vng, ahd, dcb, dht, aahd")
	flag.StringVar(&fColorspace, "colorspace", "", "output colorspace: "+strings.Join(ecolor.ListColorspaces(), ", "))
	flag.StringVar(&fCAT, "cat", "", "chromatic adaptation: bradford, cat02, cmccat2000")
	flag.StringVar(&fTonemapper, "tonemapper", "", "how to tonemap the png previews: "+pipeline.ListTonemappers())
	flag.IntVar(&fTemperature, "temp", -1, "white balance in Kelvin; 0 for the camera's")

	flag.StringVar(&fDualISO, "dualiso", "", "dual ISO processing: off, hq, preview")
	flag.IntVar(&fChromaSmooth, "chroma", -1, "chroma smoothing: 0 off, 1 2x2, 2 3x3, 3 5x5")
	flag.BoolVar(&fFixFocusPixels, "fpm", false, "repair focus pixels (needs -fpmdir)")
	flag.BoolVar(&fFixBadPixels, "badpixels", false, "find and repair hot and dead pixels")
	flag.StringVar(&fDarkFrame, "darkframe", "", "averaged dark frame MLV to subtract")
	flag.StringVar(&fCalibrationDir, "dngdir", "", "dir of reference DNGs (<model id>.dng) for colour calibration")
	flag.StringVar(&fPixelMapDir, "fpmdir", "", "dir of focus pixel maps")
	flag.BoolVar(&fEmulateGPU, "gpu", false, "run ppg as device kernels (emulated)")
	flag.BoolVar(&fFastIndex, "mapp", false, "use (and create) the .MAPP index file")

	flag.StringVar(&fFormats, "formats", "hdr,png", "comma separated outputs: hdr, tiff, ppm, png")
	flag.StringVar(&fOutDir, "outdir", ".", "where to write frames")
	flag.IntVar(&fStart, "start", 0, "first frame (0-based)")
	flag.IntVar(&fEnd, "end", -1, "last frame, inclusive (-1 for the last)")
	flag.Parse()

	log.Printf("mlvdev starting\n")
}

func loadConfig() pipeline.Config {
	cfg := pipeline.NewConfig()
	if fConfigFile != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(fConfigFile); err != nil {
			log.Fatal(err)
		}
	}

	// Override the config file with command line args, if relevant
	if fVerbosity > 0 { cfg.Verbosity = fVerbosity }
	if fWorkers > 0 { cfg.Workers = fWorkers }
	if fDebayer != "" { cfg.Debayer = fDebayer }
	if fColorspace != "" { cfg.Colorspace = fColorspace }
	if fCAT != "" { cfg.CAT = fCAT }
	if fTonemapper != "" { cfg.Tonemapper = fTonemapper }
	if fTemperature >= 0 { cfg.Raw.ColorTemperature = fTemperature }
	if fDualISO != "" { cfg.Raw.DualISO = fDualISO }
	if fChromaSmooth >= 0 { cfg.Raw.ChromaSmooth = fChromaSmooth }
	if fDarkFrame != "" { cfg.Raw.DarkFrame = fDarkFrame }
	if fCalibrationDir != "" { cfg.CalibrationDir = fCalibrationDir }
	if fPixelMapDir != "" { cfg.PixelMapDir = fPixelMapDir }

	// Just set the bool vars
	cfg.Raw.FixFocusPixels = cfg.Raw.FixFocusPixels || fFixFocusPixels
	cfg.Raw.FixBadPixels = cfg.Raw.FixBadPixels || fFixBadPixels
	cfg.EmulateGPU = cfg.EmulateGPU || fEmulateGPU
	cfg.UseFastIndex = cfg.UseFastIndex || fFastIndex

	if err := cfg.FinalizeConfig(); err != nil {
		log.Fatal(err)
	}
	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}
	return cfg
}

func writeFrame(f *pipeline.Frame, cfg pipeline.Config, base string) error {
	stem := filepath.Join(fOutDir, fmt.Sprintf("%s_%06d", base, f.Index))
	for _, format := range strings.Split(fFormats, ",") {
		var err error
		switch strings.TrimSpace(format) {
		case "hdr":  err = f.WriteHDR(stem + ".hdr")
		case "tiff": err = f.WriteTIFF(stem + ".tiff")
		case "ppm":  err = f.WritePPM(stem + ".ppm")
		case "png":  err = f.WritePreviewPNG(stem + ".png", cfg.Tonemapper, fmt.Sprintf("%s #%d", base, f.Index))
		case "":
		default:     err = fmt.Errorf("no output format '%s'", format)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if flag.NArg() != 1 {
		log.Fatalf("usage: mlvdev [flags] clip.mlv")
	}
	cfg := loadConfig()

	r, err := pipeline.Open(flag.Arg(0), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()
	r.Delegate = delegate

	if err := os.MkdirAll(fOutDir, 0755); err != nil {
		log.Fatal(err)
	}

	base := strings.TrimSuffix(filepath.Base(flag.Arg(0)), filepath.Ext(flag.Arg(0)))
	end := fEnd
	if end < 0 || end >= r.FrameCount() {
		end = r.FrameCount() - 1
	}

	failed := 0
	for i := fStart; i <= end; i++ {
		ri := cfg.RawInfo()
		f, err := r.DecodeFrame(context.Background(), i, ri, cfg.OutputColorspace)
		if err != nil {
			log.Printf("frame %d: %v", i, err)
			failed++
		}
		for _, w := range ri.Warnings {
			log.Printf("frame %d: warning: %s", i, w)
		}
		if err := writeFrame(f, cfg, base); err != nil {
			log.Fatal(err)
		}
		if cfg.Verbosity > 0 && ri.DualISOGain > 0 {
			log.Printf("frame %d: dual ISO gain %.2f", i, ri.DualISOGain)
		}
	}

	log.Printf("%d frames written to %s (%d failed)\n", end - fStart + 1, fOutDir, failed)
}
