package zwave

import (
	"errors"
	"testing"
)

// ─── Preset table lookups ──────────────────────────────────────────

func TestEffectName(t *testing.T) {
	tests := []struct {
		name   string
		number byte
		want   string
	}{
		{"disabled", 0, "Disabled"},
		{"fireplace", 6, "Fireplace"},
		{"storm", 7, "Storm"},
		{"rainbow", 8, "Rainbow"},
		{"polar lights", 9, "Polar Lights"},
		{"police", 10, "Police"},
		{"reserved gap", 3, ""},
		{"out of table", 99, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectName(tt.number); got != tt.want {
				t.Errorf("EffectName(%d) = %q, want %q", tt.number, got, tt.want)
			}
		})
	}
}

func TestEffectNumber(t *testing.T) {
	tests := []struct {
		name    string
		effect  string
		want    byte
		wantErr bool
	}{
		{"exact match", "Fireplace", 6, false},
		{"case insensitive", "fireplace", 6, false},
		{"mixed case", "pOLICE", 10, false},
		{"two words", "polar lights", 9, false},
		{"disabled", "Disabled", 0, false},
		{"unknown name", "Disco", 0, true},
		{"empty name", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EffectNumber(tt.effect)
			if (err != nil) != tt.wantErr {
				t.Errorf("EffectNumber(%q) error = %v, wantErr %v", tt.effect, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownEffect) {
					t.Errorf("EffectNumber(%q) error = %v, want ErrUnknownEffect", tt.effect, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("EffectNumber(%q) = %d, want %d", tt.effect, got, tt.want)
			}
		})
	}
}

func TestValidEffect(t *testing.T) {
	if !ValidEffect(0) || !ValidEffect(6) || !ValidEffect(10) {
		t.Error("table entries should be valid")
	}
	if ValidEffect(1) || ValidEffect(5) || ValidEffect(11) {
		t.Error("gaps and out-of-range numbers should be invalid")
	}
}

// ─── Cycling ───────────────────────────────────────────────────────

func TestNextEffect(t *testing.T) {
	tests := []struct {
		name    string
		current byte
		want    byte
	}{
		{"from disabled", 0, 6},
		{"from fireplace", 6, 7},
		{"from polar lights", 9, 10},
		{"wraps past last skipping disabled", 10, 6},
		{"from reserved gap", 4, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextEffect(tt.current); got != tt.want {
				t.Errorf("NextEffect(%d) = %d, want %d", tt.current, got, tt.want)
			}
		})
	}
}

func TestPreviousEffect(t *testing.T) {
	tests := []struct {
		name    string
		current byte
		want    byte
	}{
		{"from police", 10, 9},
		{"from storm", 7, 6},
		{"first preset wraps to last", 6, 10},
		{"from disabled wraps to last", 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreviousEffect(tt.current); got != tt.want {
				t.Errorf("PreviousEffect(%d) = %d, want %d", tt.current, got, tt.want)
			}
		})
	}
}
