package zwave

import (
	"math"
	"testing"
)

// ─── RGB → HSV ─────────────────────────────────────────────────────

func TestRGBToHSV(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b int
		wantH   float64
		wantS   float64
		wantV   float64
	}{
		{"black", 0, 0, 0, 0, 0, 0},
		{"white", 255, 255, 255, 0, 0, 100},
		{"pure red", 255, 0, 0, 0, 100, 100},
		{"pure green", 0, 255, 0, 120, 100, 100},
		{"pure blue", 0, 0, 255, 240, 100, 100},
		{"yellow", 255, 255, 0, 60, 100, 100},
		{"cyan", 0, 255, 255, 180, 100, 100},
		{"magenta", 255, 0, 255, 300, 100, 100},
		{"half grey", 128, 128, 128, 0, 0, 128.0 / 255 * 100},
		{"clamps negative input", -10, 0, 0, 0, 0, 0},
		{"clamps oversized input", 300, 0, 0, 0, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RGBToHSV(tt.r, tt.g, tt.b)
			if math.Abs(got.Hue-tt.wantH) > 0.01 {
				t.Errorf("RGBToHSV(%d,%d,%d).Hue = %v, want %v", tt.r, tt.g, tt.b, got.Hue, tt.wantH)
			}
			if math.Abs(got.Saturation-tt.wantS) > 0.01 {
				t.Errorf("RGBToHSV(%d,%d,%d).Saturation = %v, want %v", tt.r, tt.g, tt.b, got.Saturation, tt.wantS)
			}
			if math.Abs(got.Value-tt.wantV) > 0.01 {
				t.Errorf("RGBToHSV(%d,%d,%d).Value = %v, want %v", tt.r, tt.g, tt.b, got.Value, tt.wantV)
			}
		})
	}
}

// ─── HSV → RGB ─────────────────────────────────────────────────────

func TestHSVToRGB(t *testing.T) {
	tests := []struct {
		name                string
		hsv                 HSV
		wantR, wantG, wantB int
	}{
		{"black", HSV{0, 0, 0}, 0, 0, 0},
		{"white", HSV{0, 0, 100}, 255, 255, 255},
		{"pure red", HSV{0, 100, 100}, 255, 0, 0},
		{"pure green", HSV{120, 100, 100}, 0, 255, 0},
		{"pure blue", HSV{240, 100, 100}, 0, 0, 255},
		{"hue wraps at 360", HSV{360, 100, 100}, 255, 0, 0},
		{"negative hue wraps", HSV{-120, 100, 100}, 0, 0, 255},
		{"half value red", HSV{0, 100, 50}, 128, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := HSVToRGB(tt.hsv)
			if r != tt.wantR || g != tt.wantG || b != tt.wantB {
				t.Errorf("HSVToRGB(%+v) = (%d,%d,%d), want (%d,%d,%d)",
					tt.hsv, r, g, b, tt.wantR, tt.wantG, tt.wantB)
			}
		})
	}
}

// TestRGBHSVRoundTrip verifies the conversion pair is stable: converting
// RGB→HSV→RGB changes each channel by at most 1.
func TestRGBHSVRoundTrip(t *testing.T) {
	for r := 0; r <= 255; r += 17 {
		for g := 0; g <= 255; g += 17 {
			for b := 0; b <= 255; b += 17 {
				hsv := RGBToHSV(r, g, b)
				r2, g2, b2 := HSVToRGB(hsv)
				if abs(r-r2) > 1 || abs(g-g2) > 1 || abs(b-b2) > 1 {
					t.Fatalf("round trip (%d,%d,%d) → %+v → (%d,%d,%d) drifted more than 1",
						r, g, b, hsv, r2, g2, b2)
				}
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ─── Colour names ──────────────────────────────────────────────────

func TestColorName(t *testing.T) {
	tests := []struct {
		name       string
		hue        float64
		saturation float64
		want       string
	}{
		{"red at 0", 0, 100, "Red"},
		{"red just below wrap", 350, 100, "Red"},
		{"red at sector edge", 14.9, 100, "Red"},
		{"orange at 30", 30, 100, "Orange"},
		{"yellow at 60", 60, 100, "Yellow"},
		{"chartreuse at 90", 90, 100, "Chartreuse"},
		{"green at 120", 120, 100, "Green"},
		{"spring at 150", 150, 100, "Spring"},
		{"cyan at 180", 180, 100, "Cyan"},
		{"azure at 210", 210, 100, "Azure"},
		{"blue at 240", 240, 100, "Blue"},
		{"violet at 270", 270, 100, "Violet"},
		{"magenta at 300", 300, 100, "Magenta"},
		{"rose at 330", 330, 100, "Rose"},
		{"low saturation is white", 240, 10, "White"},
		{"zero saturation is white", 0, 0, "White"},
		{"just above threshold keeps hue", 240, 10.1, "Blue"},
		{"hue wraps past 360", 390, 100, "Orange"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ColorName(tt.hue, tt.saturation)
			if got != tt.want {
				t.Errorf("ColorName(%v, %v) = %q, want %q", tt.hue, tt.saturation, got, tt.want)
			}
		})
	}
}
