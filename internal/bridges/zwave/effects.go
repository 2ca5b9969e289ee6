package zwave

import (
	"fmt"
	"sort"
	"strings"
)

// EffectDisabled is the effect number meaning "no preset active".
const EffectDisabled byte = 0

// effectParameter is the configuration parameter selecting the built-in
// preset programme.
const effectParameter byte = 157

// effectNames is the fixed preset table. Key 0 disables effects; the gaps
// in the numbering are reserved by the firmware.
var effectNames = map[byte]string{
	EffectDisabled: "Disabled",
	6:              "Fireplace",
	7:              "Storm",
	8:              "Rainbow",
	9:              "Polar Lights",
	10:             "Police",
}

// EffectName returns the name for an effect number, or "" if the number is
// not in the preset table.
func EffectName(number byte) string {
	return effectNames[number]
}

// EffectNumber resolves an effect name to its number, case-insensitively.
//
// Returns:
//   - byte: Effect number
//   - error: ErrUnknownEffect if the name is not in the preset table
func EffectNumber(name string) (byte, error) {
	for number, n := range effectNames {
		if strings.EqualFold(n, name) {
			return number, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
}

// ValidEffect reports whether the number is in the preset table.
func ValidEffect(number byte) bool {
	_, ok := effectNames[number]
	return ok
}

// sortedEffectNumbers returns the preset numbers in ascending order.
func sortedEffectNumbers() []byte {
	numbers := make([]byte, 0, len(effectNames))
	for n := range effectNames {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

// NextEffect returns the preset following current in the sorted table,
// wrapping past the end. The wrap target skips the "disabled" key so that
// cycling forward never silently turns effects off.
func NextEffect(current byte) byte {
	numbers := sortedEffectNumbers()
	for _, n := range numbers {
		if n > current {
			return n
		}
	}
	// Wrapped: first non-disabled preset.
	for _, n := range numbers {
		if n != EffectDisabled {
			return n
		}
	}
	return EffectDisabled
}

// PreviousEffect returns the preset preceding current in the sorted table.
// Cycling backward from the first preset wraps to the last one.
func PreviousEffect(current byte) byte {
	numbers := sortedEffectNumbers()
	prev := EffectDisabled
	found := false
	for _, n := range numbers {
		if n >= current {
			break
		}
		prev = n
		found = true
	}
	if !found || prev == EffectDisabled {
		return numbers[len(numbers)-1]
	}
	return prev
}
