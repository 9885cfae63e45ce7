package mlv

import(
	"fmt"
	"strings"
)

// SamplingFactors are binning+skipping per axis; 0 without a RAWC block
func (c *Container)SamplingFactors() (int, int) {
	if c.RAWC == nil {
		return 0, 0
	}
	return int(c.RAWC.BinningX) + int(c.RAWC.SkippingX), int(c.RAWC.BinningY) + int(c.RAWC.SkippingY)
}

// AspectRatio is the pixel aspect ratio implied by line skipping, or 0 if unknown
func (c *Container)AspectRatio() float64 {
	sx, sy := c.SamplingFactors()
	if sx == 0 {
		return 0
	}
	return float64(sy) / float64(sx)
}

func (c *Container)CropFactor() float64 {
	if c.RAWC == nil {
		return 0
	}
	return float64(c.RAWC.SensorCrop) / 100.0
}

// FinalCropFactor accounts for recording only part of the sensor width
func (c *Container)FinalCropFactor() float64 {
	crop := c.CropFactor()
	sx, _ := c.SamplingFactors()
	if sx == 0 || c.Width() == 0 {
		return crop
	}
	ratio := float64(c.RAWC.SensorResX) / (float64(sx) * float64(c.Width())) * crop
	if ratio < crop {
		ratio = crop
	}
	return ratio
}

func (c *Container)CameraName() string { return c.cameraName() }

func (c *Container)LensName() string {
	if c.LENS == nil {
		return ""
	}
	return cString(c.LENS.LensName[:])
}

func (c *Container)ISO() int {
	if c.EXPO == nil {
		return 0
	}
	return int(c.EXPO.IsoValue)
}

// ShutterMillis is the exposure time in milliseconds
func (c *Container)ShutterMillis() int {
	if c.EXPO == nil {
		return 0
	}
	return int(c.EXPO.ShutterValue / 1000)
}

func (c *Container)Aperture() float64 {
	if c.LENS == nil {
		return 0
	}
	return float64(c.LENS.Aperture) / 100.0
}

func (c *Container)FocalDistance() float64 {
	if c.LENS == nil {
		return 0
	}
	return float64(c.LENS.FocalDist) / 100.0
}

// FocusPixelMapName is the conventional name of the focus pixel map for this camera and resolution
func (c *Container)FocusPixelMapName() string {
	return fmt.Sprintf("%x_%dx%d.fpm", c.CameraModel(), c.RAWI.RawInfo.Width, c.RAWI.RawInfo.Height)
}

// Versions returns the text of the recording's VERS blocks
func (c *Container)Versions() ([]string, error) {
	out := []string{}
	for _, e := range c.Idx.Vers {
		raw, err := c.readChunk(int(e.Chunk), e.FrameOffset, int(e.FrameSize))
		if err != nil {
			return nil, err
		}
		out = append(out, cString(raw))
	}
	return out, nil
}

func (c *Container)String() string {
	return fmt.Sprintf("mlv[%s, %dx%d, %d frames]", c.Path, c.Width(), c.Height(), c.FrameCount())
}

// Summary is a human readable dump of the recording's metadata
func (c *Container)Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File:         %s (%d chunks)\n", c.Path, len(c.ChunkPaths))
	fmt.Fprintf(&b, "Camera:       %s (model 0x%x)\n", c.CameraName(), c.CameraModel())
	fmt.Fprintf(&b, "Lens:         %s, f/%.1f\n", c.LensName(), c.Aperture())
	fmt.Fprintf(&b, "Resolution:   %dx%d, %d bpp, black %d, white %d (lossless bpp %d)\n",
		c.Width(), c.Height(), c.BitsPerPixel(), c.BlackLevel(), c.WhiteLevel(), c.LosslessBPP)
	fmt.Fprintf(&b, "Compressed:   %v\n", c.IsCompressed())
	fmt.Fprintf(&b, "Frames:       %d @ %.3f fps (%d blocks scanned)\n", c.FrameCount(), c.FrameRate(), c.Idx.BlockCount)
	fmt.Fprintf(&b, "Exposure:     ISO %d, %d ms\n", c.ISO(), c.ShutterMillis())
	if c.RAWC != nil {
		sx, sy := c.SamplingFactors()
		fmt.Fprintf(&b, "Sampling:     %dx%d, aspect %.3f, crop %.2f (final %.2f)\n",
			sx, sy, c.AspectRatio(), c.CropFactor(), c.FinalCropFactor())
	}
	if c.WBAL != nil {
		fmt.Fprintf(&b, "WhiteBalance: mode %d, %dK\n", c.WBAL.WbMode, c.WBAL.Kelvin)
	}
	if c.DISO != nil {
		fmt.Fprintf(&b, "DualISO:      mode %d, ISO %d\n", c.DISO.DualMode, c.DISO.IsoValue)
	}
	if c.HasAudio() {
		fmt.Fprintf(&b, "Audio:        %d ch, %d Hz, %d bit, %d bytes\n",
			c.WAVI.Channels, c.WAVI.SamplingRate, c.WAVI.BitsPerSample, c.Idx.AudioSize)
	}
	if c.DARK != nil {
		fmt.Fprintf(&b, "DarkFrame:    %d samples averaged\n", c.DARK.SamplesAveraged)
	}
	if c.INFO != "" {
		fmt.Fprintf(&b, "Info:         %s\n", c.INFO)
	}
	return b.String()
}
