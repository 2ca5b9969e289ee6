package zwave

import "math"

// Colour conversion constants.
const (
	// rgbMax is the maximum value of a physical colour channel.
	rgbMax = 255

	// percentMax is the maximum of the 0-100 saturation/level scale.
	percentMax = 100

	// hueSectorWidth is the width of one colour-name sector in degrees.
	hueSectorWidth = 30

	// whiteSaturationThreshold is the saturation (0-100) at or below which
	// any hue is perceived as white.
	whiteSaturationThreshold = 10

	// degreesPerCircle is a full hue circle.
	degreesPerCircle = 360
)

// HSV is a colour in hue/saturation/value space.
//
// Hue is in degrees (0-360). Saturation and Value are percentages (0-100).
// Degrees are the canonical hue unit throughout the bridge; anything
// arriving on another scale is converted at the boundary.
type HSV struct {
	Hue        float64
	Saturation float64
	Value      float64
}

// RGBToHSV converts an RGB triple (each 0-255) to HSV.
//
// Out-of-range inputs are clamped silently; callers are expected to pass
// values already constrained to the channel range.
//
// Parameters:
//   - r, g, b: Colour channel values (0-255)
//
// Returns:
//   - HSV: Hue in degrees, saturation and value as percentages
func RGBToHSV(r, g, b int) HSV {
	rf := float64(clampInt(r, 0, rgbMax)) / rgbMax
	gf := float64(clampInt(g, 0, rgbMax)) / rgbMax
	bf := float64(clampInt(b, 0, rgbMax)) / rgbMax

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case maxC == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case maxC == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += degreesPerCircle
	}

	var sat float64
	if maxC > 0 {
		sat = delta / maxC * percentMax
	}

	return HSV{
		Hue:        hue,
		Saturation: sat,
		Value:      maxC * percentMax,
	}
}

// HSVToRGB converts an HSV colour to an RGB triple (each 0-255).
//
// This is the inverse of RGBToHSV up to integer rounding: round-tripping
// an RGB triple through both functions changes each channel by at most 1.
//
// Parameters:
//   - c: Colour with hue in degrees, saturation/value as percentages
//
// Returns:
//   - r, g, b: Colour channel values (0-255)
func HSVToRGB(c HSV) (r, g, b int) {
	hue := math.Mod(c.Hue, degreesPerCircle)
	if hue < 0 {
		hue += degreesPerCircle
	}
	sat := clampFloat(c.Saturation, 0, percentMax) / percentMax
	val := clampFloat(c.Value, 0, percentMax) / percentMax

	chroma := val * sat
	x := chroma * (1 - math.Abs(math.Mod(hue/60, 2)-1))
	m := val - chroma

	var rf, gf, bf float64
	switch {
	case hue < 60:
		rf, gf, bf = chroma, x, 0
	case hue < 120:
		rf, gf, bf = x, chroma, 0
	case hue < 180:
		rf, gf, bf = 0, chroma, x
	case hue < 240:
		rf, gf, bf = 0, x, chroma
	case hue < 300:
		rf, gf, bf = x, 0, chroma
	default:
		rf, gf, bf = chroma, 0, x
	}

	r = int(math.Round((rf + m) * rgbMax))
	g = int(math.Round((gf + m) * rgbMax))
	b = int(math.Round((bf + m) * rgbMax))
	return r, g, b
}

// hueSectorNames maps each 30° hue sector to a colour name. Sector 0 is
// centred on 0° (i.e. 345°-15° reads as Red).
var hueSectorNames = [...]string{
	"Red",
	"Orange",
	"Yellow",
	"Chartreuse",
	"Green",
	"Spring",
	"Cyan",
	"Azure",
	"Blue",
	"Violet",
	"Magenta",
	"Rose",
}

// ColorName classifies a hue into one of twelve coarse colour names.
//
// Saturation at or below 10% reads as "White" regardless of hue, since
// desaturated colours are perceptually white.
//
// Parameters:
//   - hue: Hue in degrees (0-360; out-of-range values wrap)
//   - saturation: Saturation percentage (0-100)
//
// Returns:
//   - string: Colour name (e.g. "Red", "Azure", "White")
func ColorName(hue, saturation float64) string {
	if saturation <= whiteSaturationThreshold {
		return "White"
	}

	h := math.Mod(hue, degreesPerCircle)
	if h < 0 {
		h += degreesPerCircle
	}

	// Shift by half a sector so each name is centred on its canonical hue.
	sector := int((h+hueSectorWidth/2)/hueSectorWidth) % len(hueSectorNames)
	return hueSectorNames[sector]
}

// clampInt constrains v to the range [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampFloat constrains v to the range [lo, hi].
func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
