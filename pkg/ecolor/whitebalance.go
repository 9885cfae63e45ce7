package ecolor

import(
	"github.com/abworrall/mlvraw/pkg/emath"
	"github.com/abworrall/mlvraw/pkg/mlv"
)

// CameraNeutral is the neutral the camera recorded: from the WBAL
// gains if it has them, else from its Kelvin setting, else the
// calibration's own.
func CameraNeutral(cal CalibrationData, wb *mlv.WhiteBalance) emath.Vec3 {
	switch {
	case wb == nil:
		return cal.NeutralRGB
	case wb.WbgainR > 0 && wb.WbgainG > 0 && wb.WbgainB > 0:
		g := float64(wb.WbgainG)
		return emath.Vec3{g / float64(wb.WbgainR), 1, g / float64(wb.WbgainB)}
	case wb.Kelvin > 0:
		return cal.NeutralFor(float64(wb.Kelvin))
	}
	return cal.NeutralRGB
}

// WhiteBalanceGains returns per-channel multipliers, with green = 1,
// that turn the neutral (the camera's, or that of a Planckian white at
// `kelvin`) into grey. The compensation factor lifts the smallest gain
// to 1, for callers that must not darken any channel.
func WhiteBalanceGains(cal CalibrationData, kelvin float64, useCamera bool) (emath.Vec3, float64) {
	neutral := cal.NeutralRGB
	if !useCamera && kelvin > 0 {
		neutral = cal.NeutralFor(kelvin)
	}
	neutral = neutral.NormalizeY()

	gains := emath.Vec3{1, 1, 1}
	for i, n := range neutral {
		if n > 0 {
			gains[i] = 1 / n
		}
	}

	compensation := 1.0
	if m := gains.Min(); m > 0 && m < 1 {
		compensation = 1 / m
	}
	return gains, compensation
}
