package zwave

// Device-native level range for the multilevel switch.
const (
	levelMin byte = 1
	levelMax byte = 99
)

// RGBWState holds the last reported or commanded value of each physical
// colour channel. All four channels are always defined.
type RGBWState struct {
	Red   uint8 `json:"red"`
	Green uint8 `json:"green"`
	Blue  uint8 `json:"blue"`
	White uint8 `json:"white"`
}

// Component returns the value of the named colour component.
func (s RGBWState) Component(c ColorComponent) uint8 {
	switch c {
	case ComponentRed:
		return s.Red
	case ComponentGreen:
		return s.Green
	case ComponentBlue:
		return s.Blue
	case ComponentWarmWhite:
		return s.White
	default:
		return 0
	}
}

// SetComponent sets the value of the named colour component.
func (s *RGBWState) SetComponent(c ColorComponent, value uint8) {
	switch c {
	case ComponentRed:
		s.Red = value
	case ComponentGreen:
		s.Green = value
	case ComponentBlue:
		s.Blue = value
	case ComponentWarmWhite:
		s.White = value
	}
}

// HSV returns the colour-aggregate (RGB only, white excluded) in HSV space.
func (s RGBWState) HSV() HSV {
	return RGBToHSV(int(s.Red), int(s.Green), int(s.Blue))
}

// ColorOn reports whether the colour aggregate is lit (derived level > 0).
func (s RGBWState) ColorOn() bool {
	return s.HSV().Value > 0
}

// WhiteOn reports whether the white channel is lit.
func (s RGBWState) WhiteOn() bool {
	return s.White > 0
}

// AnyOn reports whether any channel is lit.
func (s RGBWState) AnyOn() bool {
	return s.ColorOn() || s.WhiteOn()
}

// RestoreState is the "on" memory: the channel values and switch level to
// resume when the device is turned back on after an off. It is created at
// initialisation and lives for the lifetime of the device record; each
// channel keeps its last nonzero value.
type RestoreState struct {
	RGBW RGBWState `json:"rgbw"`
	// Level is the last nonzero switch level (1-99).
	Level uint8 `json:"level"`
}

// rememberNonzero folds current channel values into the restore memory,
// keeping the previous memory for channels that are currently zero.
func (r *RestoreState) rememberNonzero(current RGBWState) {
	for _, c := range allComponents {
		if v := current.Component(c); v > 0 {
			r.RGBW.SetComponent(c, v)
		}
	}
}

// allComponents lists every colour component in wire order.
var allComponents = []ColorComponent{
	ComponentRed, ComponentGreen, ComponentBlue, ComponentWarmWhite,
}

// PendingColorUpdate tracks an in-flight multi-component colour command.
//
// Each touched component maps to its expected new value, or nil when the
// outcome is unknown and must be confirmed by the device. The update is
// settled component-by-component as colour reports arrive; derived events
// are withheld until settlement.
type PendingColorUpdate struct {
	expected map[ColorComponent]*uint8
}

// NewPendingColorUpdate creates an empty pending update tracker.
func NewPendingColorUpdate() *PendingColorUpdate {
	return &PendingColorUpdate{expected: make(map[ColorComponent]*uint8)}
}

// Track records a component touched by an outbound colour command.
// Pass nil for value when the resulting value is unpredictable.
func (p *PendingColorUpdate) Track(c ColorComponent, value *uint8) {
	if p.expected == nil {
		p.expected = make(map[ColorComponent]*uint8)
	}
	p.expected[c] = value
}

// Tracked reports whether the component is part of the pending update.
func (p *PendingColorUpdate) Tracked(c ColorComponent) bool {
	_, ok := p.expected[c]
	return ok
}

// Empty reports whether no update is pending.
func (p *PendingColorUpdate) Empty() bool {
	return len(p.expected) == 0
}

// Resolve removes a component whose report has arrived and decides whether
// the batch has settled.
//
// Settlement rules:
//   - the resolved component was the only one tracked → settled
//   - other components remain and at least one has an unknown (nil)
//     expectation → not settled, wait for further reports
//   - all remaining expectations are known → settled now; the remaining
//     predictions are trusted without waiting for their reports
//
// Returns:
//   - settled: Whether the whole batch is confirmed complete
//   - remaining: On settlement, the still-tracked components and their
//     predicted values to merge into device state (nil otherwise)
func (p *PendingColorUpdate) Resolve(c ColorComponent) (settled bool, remaining map[ColorComponent]uint8) {
	delete(p.expected, c)

	if len(p.expected) == 0 {
		return true, nil
	}
	for _, v := range p.expected {
		if v == nil {
			return false, nil
		}
	}

	remaining = make(map[ColorComponent]uint8, len(p.expected))
	for comp, v := range p.expected {
		remaining[comp] = *v
	}
	p.expected = make(map[ColorComponent]*uint8)
	return true, remaining
}

// Clear abandons any pending update.
func (p *PendingColorUpdate) Clear() {
	p.expected = make(map[ColorComponent]*uint8)
}

// snapshot returns the tracked expectations for persistence.
func (p *PendingColorUpdate) snapshot() map[string]*uint8 {
	out := make(map[string]*uint8, len(p.expected))
	for c, v := range p.expected {
		if v != nil {
			value := *v
			out[c.String()] = &value
		} else {
			out[c.String()] = nil
		}
	}
	return out
}

// restore reloads tracked expectations from a persisted snapshot.
func (p *PendingColorUpdate) restore(snap map[string]*uint8) {
	p.expected = make(map[ColorComponent]*uint8, len(snap))
	for name, v := range snap {
		for _, c := range allComponents {
			if c.String() == name {
				p.Track(c, v)
			}
		}
	}
}

// DeviceIdentity describes the hardware, set once at version-report time.
type DeviceIdentity struct {
	ManufacturerID uint16  `json:"manufacturer_id"`
	ProductType    uint16  `json:"product_type"`
	ProductID      uint16  `json:"product_id"`
	Model          string  `json:"model"`
	Firmware       float64 `json:"firmware"`
}

// DeviceState is the canonical in-memory model for one RGBW controller.
//
// Ownership: the planner writes speculative fields when issuing commands,
// the reconciler writes confirmed fields when reports arrive. Both run on
// the bridge's single dispatch goroutine; no other mutation is permitted.
type DeviceState struct {
	// RGBW holds the last reported or commanded channel values.
	RGBW RGBWState

	// Restore is the "on" memory used to resume prior appearance.
	Restore RestoreState

	// Pending tracks an in-flight multi-component colour command.
	Pending *PendingColorUpdate

	// Level is the last confirmed switch level (0-99).
	Level uint8

	// SwitchOn is the last derived aggregate on/off state.
	SwitchOn bool

	// TransitionTarget is the level an explicit on/off command is moving
	// toward, recorded speculatively until a report confirms it. Nil when
	// no switch transition is in flight.
	TransitionTarget *uint8

	// Effect is the active preset number (0 = disabled).
	Effect byte

	// Identity is set once from the version report.
	Identity DeviceIdentity
}

// NewDeviceState creates a device state with full-white restore defaults,
// so a factory-fresh device turns on to a sensible appearance.
func NewDeviceState() *DeviceState {
	return &DeviceState{
		Restore: RestoreState{
			RGBW:  RGBWState{Red: rgbMax, Green: rgbMax, Blue: rgbMax, White: rgbMax},
			Level: uint8(levelMax),
		},
		Pending: NewPendingColorUpdate(),
	}
}

// EffectActive reports whether a preset programme is running. While active,
// colour and level reports are excluded from colour-mode derivation.
func (d *DeviceState) EffectActive() bool {
	return d.Effect != EffectDisabled
}

// ColorMode is the derived colour mode of the device.
type ColorMode string

// Colour modes, derived from which channel groups are lit.
const (
	ModeRGBW    ColorMode = "RGBW"
	ModeRGB     ColorMode = "RGB"
	ModeWhite   ColorMode = "WHITE"
	ModeEffects ColorMode = "EFFECTS"
)

// Mode derives the colour mode from the current channel state, short-
// circuited to EFFECTS whenever a preset is active.
func (d *DeviceState) Mode() ColorMode {
	if d.EffectActive() {
		return ModeEffects
	}
	switch {
	case d.RGBW.ColorOn() && d.RGBW.WhiteOn():
		return ModeRGBW
	case d.RGBW.ColorOn():
		return ModeRGB
	default:
		return ModeWhite
	}
}
