package main

import(
	"flag"
	"fmt"
	"log"

	"github.com/abworrall/mlvraw/pkg/mlv"
	"github.com/abworrall/mlvraw/pkg/pipeline"
)

var(
	fVerbosity int
	fMode string
	fOutput string
	fStart int
	fEnd int
	fAudio bool
	fDarkFrame string
	fWAV string
	fMAPP bool
	fInfo bool
	fHist bool
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fMode, "mode", "", "export mode: fastpass, compress, decompress, average, darkframe")
	flag.StringVar(&fOutput, "o", "out.mlv", "name of the exported MLV")
	flag.IntVar(&fStart, "start", 0, "first frame to export, from 1 (0 for the first)")
	flag.IntVar(&fEnd, "end", 0, "last frame to export, inclusive (0 for the last)")
	flag.BoolVar(&fAudio, "audio", true, "include audio in the export")
	flag.StringVar(&fDarkFrame, "darkframe", "", "averaged dark frame to embed as a DARK block")
	flag.StringVar(&fWAV, "wav", "", "write the audio to this .wav file")
	flag.BoolVar(&fMAPP, "mapp", false, "write a .MAPP index next to the clip")
	flag.BoolVar(&fInfo, "info", false, "print the clip's metadata")
	flag.BoolVar(&fHist, "hist", false, "print raw level histograms of the first exported frame")
	flag.Parse()

	log.Printf("mlvexport starting\n")
}

func progress(done, total int) {
	if done == total || done % 100 == 0 {
		log.Printf("  %d/%d frames", done, total)
	}
}

func main() {
	if flag.NArg() != 1 {
		log.Fatalf("usage: mlvexport [flags] clip.mlv")
	}

	cfg := pipeline.NewConfig()
	cfg.Verbosity = fVerbosity
	cfg.Raw.DarkFrame = fDarkFrame
	if err := cfg.FinalizeConfig(); err != nil {
		log.Fatal(err)
	}

	r, err := pipeline.Open(flag.Arg(0), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()
	c := r.Container()

	if fInfo {
		fmt.Print(c.Summary())
		if vers, err := c.Versions(); err == nil {
			for _, v := range vers {
				fmt.Printf("Version:      %s\n", v)
			}
		}
		if c.INFO != "" {
			fmt.Printf("Info:         %s\n", c.INFO)
		}
	}

	if fHist {
		first := fStart - 1
		if first < 0 { first = 0 }
		report, err := pipeline.HistogramReport(c, first)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Print(report)
	}

	if fMAPP {
		if err := r.WriteFastIndex(); err != nil {
			log.Fatal(err)
		}
		log.Printf("index written to '%s'\n", mlv.FastIndexPath(c.Path))
	}

	if fWAV != "" {
		if err := r.ExportAudio(fWAV); err != nil {
			log.Fatal(err)
		}
		log.Printf("audio written to '%s'\n", fWAV)
	}

	if fMode == "" {
		return
	}
	mode, err := mlv.ParseExportMode(fMode)
	if err != nil {
		log.Fatal(err)
	}

	if mode == mlv.ExportAveragedFrame {
		err = r.GenerateDarkFrame(fStart, fEnd, fOutput)
	} else {
		opt := mlv.ExportOptions{Mode: mode, Start: fStart, End: fEnd, Audio: fAudio}
		if fVerbosity > 0 {
			opt.Progress = progress
		}
		err = r.Export(fOutput, opt)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%s export written to '%s'\n", mode, fOutput)
}
