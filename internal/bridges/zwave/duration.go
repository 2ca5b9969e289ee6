package zwave

// Duration encoding constants (shared by level and colour ramp commands).
const (
	// DurationDefault is the encoded value for "factory default duration".
	DurationDefault byte = 0xFF

	// durationMaxSeconds is the largest duration encodable in seconds.
	durationMaxSeconds = 120

	// durationMinuteOffset is added to whole minutes for durations over
	// two minutes.
	durationMinuteOffset = 127

	// durationMaxEncoded is the largest valid non-default encoding.
	durationMaxEncoded = 254

	// secondsPerMinute converts minutes to seconds.
	secondsPerMinute = 60
)

// EncodeDuration encodes a transition duration in seconds to the wire scale.
//
// The scale is non-linear:
//   - 1-120 seconds map 1:1 to 0x01-0x78
//   - longer durations are rounded to whole minutes and offset by 127,
//     capped at 254 (i.e. 127 minutes)
//   - zero, negative, or otherwise invalid input encodes as 0xFF, which the
//     device interprets as its factory default ramp
//
// Parameters:
//   - seconds: Desired transition time in seconds
//
// Returns:
//   - byte: Encoded duration ready for a Set command
func EncodeDuration(seconds int) byte {
	switch {
	case seconds <= 0:
		return DurationDefault
	case seconds <= durationMaxSeconds:
		return byte(seconds)
	default:
		minutes := (seconds + secondsPerMinute/2) / secondsPerMinute
		encoded := minutes + durationMinuteOffset
		if encoded > durationMaxEncoded {
			encoded = durationMaxEncoded
		}
		return byte(encoded)
	}
}

// DecodeDuration decodes a wire-scale duration to seconds.
//
// The value 0xFF ("factory default") decodes to 0 since the actual ramp
// time is device-internal and unknown to us.
//
// Parameters:
//   - encoded: Duration byte from a report
//
// Returns:
//   - int: Duration in seconds (0 for factory default)
func DecodeDuration(encoded byte) int {
	switch {
	case encoded == DurationDefault:
		return 0
	case int(encoded) <= durationMaxSeconds:
		return int(encoded)
	default:
		return (int(encoded) - durationMinuteOffset) * secondsPerMinute
	}
}
