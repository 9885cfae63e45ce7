// Package pipeline develops frames of a raw video recording into
// linear, colour managed RGB: container, reconstruction, demosaic and
// colour science, behind a small frame-pull API.
package pipeline

import(
	"fmt"
	"io/ioutil"
	"log"
	"runtime"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/mlvraw/pkg/debayer"
	"github.com/abworrall/mlvraw/pkg/ecolor"
	"github.com/abworrall/mlvraw/pkg/rawproc"
)

/* Example config file ...

verbosity: 1
debayer: ppg
colorspace: aces-ap0
cat: bradford
tonemapper: reinhard05
calibrationdir: /opt/mlv/dng
pixelmapdir: /opt/mlv/fpm
raw:
  dualiso: hq
  chromasmooth: 2
  fixfocuspixels: true
  colortemperature: 0
  darkframe: dark.mlv

*/

// RawDefaults are the per-frame processing choices, in config form
type RawDefaults struct {
	DualISO              string // off, hq, preview
	DualISOAliasMap      bool
	DualISOFullRes       bool
	DualISOInterpolation string // edge, mean
	ChromaSmooth         int    // 0 off, 1 2x2, 2 3x3, 3 5x5
	FixFocusPixels       bool
	FixBadPixels         bool
	ColorTemperature     int    // Kelvin; 0 for the camera's white balance
	DarkFrame            string // path of an averaged dark frame MLV; empty for none
}

type Config struct {
	Verbosity         int
	Workers           int  // size of the reader pool, and of the per-frame worker fan out; 0 means NumCPU
	UseFastIndex      bool // read/write the .MAPP index next to the clip

	Debayer           string
	Colorspace        string
	CAT               string
	Tonemapper        string

	CalibrationDir    string // DNG files named by camera model id, tried before the builtin table
	PixelMapDir       string // focus pixel maps
	AliasMapDebugFile string

	// Run PPG on an emulated compute device
	EmulateGPU        bool

	Raw               RawDefaults

	// Values we resolve in FinalizeConfig, for access by the rest of the pipeline
	DebayerAlgorithm  debayer.Algorithm  `yaml:"-"`
	OutputColorspace  ecolor.Colorspace  `yaml:"-"`
	CATransform       ecolor.CATransform `yaml:"-"`
}

func NewConfig() Config {
	return Config{
		Debayer:    "ppg",
		Colorspace: "aces-ap0",
		CAT:        "bradford",
		Tonemapper: "reinhard05",
		Raw: RawDefaults{
			DualISO:              "off",
			DualISOInterpolation: "edge",
		},
	}
}

func NewConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("config: %v", err)
	}
	return c, c.FinalizeConfig()
}

func LoadConfig(filename string) (Config, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return NewConfig(), fmt.Errorf("config: read '%s': %v", filename, err)
	}
	return NewConfigFromYaml(b)
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// FinalizeConfig checks the strategy names, and resolves them
func (c *Config)FinalizeConfig() error {
	var err error
	if c.DebayerAlgorithm, err = debayer.ParseAlgorithm(c.Debayer); err != nil {
		return err
	}
	if c.OutputColorspace, err = ecolor.ParseColorspace(c.Colorspace); err != nil {
		return err
	}
	if c.CATransform, err = ecolor.ParseCATransform(c.CAT); err != nil {
		return err
	}
	if c.Tonemapper != "" && !isTonemapper(c.Tonemapper) {
		return fmt.Errorf("config: no tonemapper named '%s', wanted %s", c.Tonemapper, ListTonemappers())
	}
	if c.Raw.ChromaSmooth < 0 || c.Raw.ChromaSmooth > int(rawproc.ChromaSmooth5x5) {
		return fmt.Errorf("config: chromasmooth %d not in [0,3]", c.Raw.ChromaSmooth)
	}
	if _, err := c.GetDualISOMode(); err != nil {
		return err
	}
	if _, err := c.GetDualISOInterpolation(); err != nil {
		return err
	}
	return nil
}

func (c Config)NumWorkers() int {
	if c.Workers < 1 {
		return runtime.NumCPU()
	}
	return c.Workers
}

func (c Config)GetDualISOMode() (rawproc.DualISOMode, error) {
	switch c.Raw.DualISO {
	case "off", "":    return rawproc.DualISOOff, nil
	case "hq":         return rawproc.DualISOHighQuality, nil
	case "preview":    return rawproc.DualISOPreview, nil
	}
	return rawproc.DualISOOff, fmt.Errorf("config: no dual ISO mode named '%s'", c.Raw.DualISO)
}

func (c Config)GetDualISOInterpolation() (rawproc.DualISOInterpolation, error) {
	switch c.Raw.DualISOInterpolation {
	case "edge", "": return rawproc.InterpolateEdgeDirected, nil
	case "mean":     return rawproc.InterpolateMean, nil
	}
	return rawproc.InterpolateEdgeDirected, fmt.Errorf("config: no dual ISO interpolation named '%s'", c.Raw.DualISOInterpolation)
}

// RawInfo builds the per-frame choices from the config. Callers own
// the result; DecodeFrame records what happened in it.
func (c Config)RawInfo() *rawproc.RawInfo {
	mode, _ := c.GetDualISOMode()
	interp, _ := c.GetDualISOInterpolation()
	return &rawproc.RawInfo{
		DualISO:                mode,
		DualISOAliasMap:        c.Raw.DualISOAliasMap,
		DualISOFullResBlending: c.Raw.DualISOFullRes,
		DualISOInterpolation:   interp,
		ChromaSmooth:           rawproc.ChromaSmooth(c.Raw.ChromaSmooth),
		FixFocusPixels:         c.Raw.FixFocusPixels,
		FixBadPixels:           c.Raw.FixBadPixels,
		ColorTemperature:       c.Raw.ColorTemperature,
		DarkFrameEnable:        c.Raw.DarkFrame != "",
		DarkFramePath:          c.Raw.DarkFrame,
	}
}
