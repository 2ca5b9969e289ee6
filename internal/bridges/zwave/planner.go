package zwave

import (
	"fmt"
	"math"
)

// Flash oscillator limits (milliseconds per full cycle).
const (
	flashRateMinMs     = 1000
	flashRateMaxMs     = 30000
	flashRateDefaultMs = 1500
)

// Sensor type requested from analog input endpoints (general purpose).
const sensorTypeGeneral byte = 0x01

// maxAssociationNodes is the per-group membership capacity.
const maxAssociationNodes = 5

// Calibration holds the min/max brightness remap policy from an external
// calibration setting. Zero values mean "unset" (identity mapping).
type Calibration struct {
	MinLevel byte
	MaxLevel byte
}

// ColorCommand is a partial HSV update. Nil fields keep their current
// value; hue is in degrees.
type ColorCommand struct {
	Hue             *float64
	Saturation      *float64
	Level           *float64
	DurationSeconds *int
}

// Planner translates high-level intents into ordered frame lists.
//
// Every Set frame is immediately followed by a Get of the same attribute:
// the transport gives no deterministic acknowledgment of physical
// completion, so commands are verified through the reports the Gets
// provoke. The planner also writes the speculative device-state fields
// (restore memory, pending colour update, transition target) that the
// reconciler later confirms or corrects.
type Planner struct {
	state *DeviceState
	cal   Calibration
	log   Logger
}

// NewPlanner creates a planner bound to a device state.
func NewPlanner(state *DeviceState, cal Calibration, log Logger) *Planner {
	return &Planner{state: state, cal: cal, log: log}
}

// On plans resuming the device to its remembered appearance.
//
// If the restore memory differs from the last commanded channel values, a
// combined colour set (plus verification gets) precedes the switch-level
// set, so the device lights up in its pre-off colour rather than flashing
// through a stale one.
func (p *Planner) On() []Frame {
	var frames []Frame

	if p.state.Restore.RGBW != p.state.RGBW {
		frames = append(frames, p.colorSetFrames(p.restoreComponents(), DurationDefault)...)
	}

	level := p.state.Restore.Level
	if level == 0 {
		level = levelMax
	}
	target := p.scaleLevel(level)
	p.state.TransitionTarget = &target

	return append(frames,
		EncodeFrame(SwitchMultilevelSet{Level: target, Duration: DurationDefault}, 0),
		EncodeFrame(SwitchMultilevelGet{}, 0),
	)
}

// Off plans turning the device fully off, snapshotting the current
// appearance first so a later bare On restores it exactly.
func (p *Planner) Off() []Frame {
	p.state.Restore.rememberNonzero(p.state.RGBW)
	if p.state.Level > 0 {
		p.state.Restore.Level = p.state.Level
	}

	var target uint8
	p.state.TransitionTarget = &target

	return []Frame{
		EncodeFrame(SwitchMultilevelSet{Level: 0, Duration: DurationDefault}, 0),
		EncodeFrame(SwitchMultilevelGet{}, 0),
	}
}

// SetLevel plans a dimmer level change.
//
// The level is clamped into the device-native 1-99 range and passed
// through the min/max brightness remap; the duration uses the shared
// non-linear encoding.
//
// Parameters:
//   - level: Requested level (1-99 scale; out-of-range values clamp)
//   - durationSeconds: Ramp time (0 = factory default)
func (p *Planner) SetLevel(level, durationSeconds int) []Frame {
	clamped := uint8(clampInt(level, int(levelMin), int(levelMax)))
	target := p.scaleLevel(clamped)
	p.state.TransitionTarget = &target
	p.state.Restore.Level = target

	return []Frame{
		EncodeFrame(SwitchMultilevelSet{Level: target, Duration: EncodeDuration(durationSeconds)}, 0),
		EncodeFrame(SwitchMultilevelGet{}, 0),
	}
}

// SetColor plans a colour change from a partial HSV update.
//
// Provided fields are merged over the currently-known HSV; the merged
// colour is converted to RGB and only components that actually differ from
// the current state are included in the set frame — unless nothing
// differs, in which case all components are sent rather than emitting a
// degenerate empty command. Each included component is tracked in the
// pending update and verified with a quick-refresh get.
func (p *Planner) SetColor(cmd ColorCommand) []Frame {
	merged := p.state.RGBW.HSV()
	if cmd.Hue != nil {
		merged.Hue = *cmd.Hue
	}
	if cmd.Saturation != nil {
		merged.Saturation = *cmd.Saturation
	}
	if cmd.Level != nil {
		merged.Value = clampFloat(*cmd.Level, 0, percentMax)
	}

	r, g, b := HSVToRGB(merged)
	touched := []ColorComponentValue{
		{ComponentRed, byte(r)},
		{ComponentGreen, byte(g)},
		{ComponentBlue, byte(b)},
	}

	changed := touched[:0:0]
	for _, cv := range touched {
		if p.state.RGBW.Component(cv.Component) != cv.Value {
			changed = append(changed, cv)
		}
	}
	if len(changed) == 0 {
		changed = touched
	}

	duration := DurationDefault
	if cmd.DurationSeconds != nil {
		duration = EncodeDuration(*cmd.DurationSeconds)
	}

	return p.colorSetFrames(changed, duration)
}

// SetWhite plans a white-channel level change.
//
// Parameters:
//   - level: White intensity on the 0-100 scale (clamped), scaled to the
//     0-255 channel range on the wire
func (p *Planner) SetWhite(level int) []Frame {
	value := byte(math.Round(float64(clampInt(level, 0, percentMax)) * rgbMax / percentMax))
	return p.colorSetFrames([]ColorComponentValue{{ComponentWarmWhite, value}}, DurationDefault)
}

// SetEffect plans activating (or disabling, number 0) a preset programme.
//
// Returns:
//   - []Frame: Configuration set+get pair
//   - error: ErrUnknownEffect if the number is not in the preset table;
//     no frames are emitted in that case
func (p *Planner) SetEffect(number byte) ([]Frame, error) {
	if !ValidEffect(number) {
		p.logWarn("rejecting unknown effect", "number", number)
		return nil, fmt.Errorf("%w: number %d", ErrUnknownEffect, number)
	}

	return []Frame{
		EncodeFrame(ConfigurationSet{Parameter: effectParameter, Size: 1, Value: int64(number)}, 0),
		EncodeFrame(ConfigurationGet{Parameter: effectParameter}, 0),
	}, nil
}

// ChannelOn plans lighting a single logical channel.
//
// When the whole device is off, only the requested channel's components
// are included in the colour payload — siblings' restore targets are
// overridden to zero for this request only, so turning on "blue" from
// dark lights only blue. The sibling restore memory itself is untouched.
func (p *Planner) ChannelOn(kind ChannelKind) []Frame {
	components := ComponentsForChannel(kind)
	if components == nil {
		p.logWarn("channel cannot be switched", "channel", kind.String())
		return nil
	}

	values := make([]ColorComponentValue, 0, len(components))
	for _, c := range components {
		v := p.state.Restore.RGBW.Component(c)
		if v == 0 {
			v = rgbMax
		}
		values = append(values, ColorComponentValue{c, v})
	}

	frames := p.colorSetFrames(values, DurationDefault)

	if !p.state.RGBW.AnyOn() {
		level := p.state.Restore.Level
		if level == 0 {
			level = levelMax
		}
		target := p.scaleLevel(level)
		p.state.TransitionTarget = &target
		frames = append(frames,
			EncodeFrame(SwitchMultilevelSet{Level: target, Duration: DurationDefault}, 0),
			EncodeFrame(SwitchMultilevelGet{}, 0),
		)
	}

	return frames
}

// ChannelOff plans darkening a single logical channel.
//
// While siblings remain lit only this channel's components are zeroed and
// the switch stays on; zeroing the last lit channel routes through the
// full Off path instead, so the restore bookkeeping stays consistent.
func (p *Planner) ChannelOff(kind ChannelKind) []Frame {
	components := ComponentsForChannel(kind)
	if components == nil {
		p.logWarn("channel cannot be switched", "channel", kind.String())
		return nil
	}

	remainder := p.state.RGBW
	for _, c := range components {
		remainder.SetComponent(c, 0)
	}
	if !remainder.AnyOn() {
		return p.Off()
	}

	p.state.Restore.rememberNonzero(p.state.RGBW)

	values := make([]ColorComponentValue, 0, len(components))
	for _, c := range components {
		values = append(values, ColorComponentValue{c, 0})
	}
	return p.colorSetFrames(values, DurationDefault)
}

// ChannelSetLevel plans a per-channel intensity change on the 0-100 scale.
// Level zero routes through ChannelOff so last-channel bookkeeping holds.
func (p *Planner) ChannelSetLevel(kind ChannelKind, level, durationSeconds int) []Frame {
	if level <= 0 {
		return p.ChannelOff(kind)
	}

	switch kind {
	case ChannelColor:
		lvl := float64(level)
		dur := durationSeconds
		return p.SetColor(ColorCommand{Level: &lvl, DurationSeconds: &dur})
	case ChannelWhite:
		return p.SetWhite(level)
	case ChannelRed, ChannelGreen, ChannelBlue:
		value := byte(math.Round(float64(clampInt(level, 0, percentMax)) * rgbMax / percentMax))
		values := []ColorComponentValue{{ComponentsForChannel(kind)[0], value}}
		return p.colorSetFrames(values, EncodeDuration(durationSeconds))
	default:
		p.logWarn("channel cannot be dimmed", "channel", kind.String())
		return nil
	}
}

// FlashPhase plans one half-period of the flash oscillator: full
// brightness on the on-phase, zero on the off-phase. Restore memory and
// transition bookkeeping are deliberately untouched so stopping the
// oscillator can reassert the pre-flash state exactly.
func (p *Planner) FlashPhase(on bool) []Frame {
	level := byte(0)
	if on {
		level = p.scaleLevel(levelMax)
	}
	return []Frame{EncodeFrame(SwitchMultilevelSet{Level: level, Duration: 0x00}, 0)}
}

// RestoreFrames plans reasserting the current commanded appearance with no
// ramp: the full colour state followed by the switch level. Used when an
// effect deactivates or a flash oscillator stops.
func (p *Planner) RestoreFrames() []Frame {
	values := make([]ColorComponentValue, 0, len(allComponents))
	for _, c := range allComponents {
		values = append(values, ColorComponentValue{c, p.state.RGBW.Component(c)})
	}

	frames := []Frame{EncodeFrame(SwitchColorSet{Components: values, Duration: 0x00}, 0)}

	level := p.state.Level
	if level == 0 {
		level = p.state.Restore.Level
	}
	return append(frames,
		EncodeFrame(SwitchMultilevelSet{Level: level, Duration: 0x00}, 0),
		EncodeFrame(SwitchMultilevelGet{}, 0),
	)
}

// Refresh plans a full state read cycle: identity, switch level, every
// colour component, meter scales, analog sensor endpoints, and the effect
// parameter. Re-issuing all gets is also the recovery path for a stale
// device state.
func (p *Planner) Refresh(analogEndpoints []byte) []Frame {
	frames := []Frame{
		EncodeFrame(VersionGet{}, 0),
		EncodeFrame(SwitchMultilevelGet{}, 0),
	}
	for _, c := range allComponents {
		frames = append(frames, EncodeFrame(SwitchColorGet{Component: c}, 0))
	}
	frames = append(frames,
		EncodeFrame(MeterGet{Scale: MeterScaleKWH}, 0),
		EncodeFrame(MeterGet{Scale: MeterScaleWatts}, 0),
	)
	for _, ep := range analogEndpoints {
		frames = append(frames, EncodeFrame(SensorGet{SensorType: sensorTypeGeneral}, ep))
	}
	return append(frames, EncodeFrame(ConfigurationGet{Parameter: effectParameter}, 0))
}

// SetAssociation plans replacing an association group's membership.
//
// Returns:
//   - []Frame: Remove-all, set, and verification get
//   - error: ErrAssociationTooLarge if nodes exceed the group capacity;
//     no frames are emitted in that case
func (p *Planner) SetAssociation(group byte, nodes []byte) ([]Frame, error) {
	if len(nodes) > maxAssociationNodes {
		p.logWarn("association list too large", "group", group, "nodes", len(nodes))
		return nil, fmt.Errorf("%w: %d nodes, capacity %d", ErrAssociationTooLarge, len(nodes), maxAssociationNodes)
	}

	return []Frame{
		EncodeFrame(AssociationRemove{Group: group}, 0),
		EncodeFrame(AssociationSet{Group: group, Nodes: nodes}, 0),
		EncodeFrame(AssociationGet{Group: group}, 0),
	}, nil
}

// SyncConfiguration plans set+get pairs for every parameter whose desired
// value differs from its current one.
func (p *Planner) SyncConfiguration(pending []ParameterValue) []Frame {
	var frames []Frame
	for _, pv := range pending {
		frames = append(frames,
			EncodeFrame(ConfigurationSet{Parameter: pv.Number, Size: pv.Size, Value: pv.Value}, 0),
			EncodeFrame(ConfigurationGet{Parameter: pv.Number}, 0),
		)
	}
	return frames
}

// ParameterValue is one configuration parameter write queued for sync.
type ParameterValue struct {
	Number byte
	Size   byte
	Value  int64
}

// colorSetFrames builds the combined colour set, tracks each component in
// the pending update, and appends a quick-refresh get per component still
// awaiting confirmation.
func (p *Planner) colorSetFrames(values []ColorComponentValue, duration byte) []Frame {
	if len(values) == 0 {
		return nil
	}

	for _, cv := range values {
		expected := cv.Value
		p.state.Pending.Track(cv.Component, &expected)
	}

	frames := []Frame{EncodeFrame(SwitchColorSet{Components: values, Duration: duration}, 0)}
	for _, cv := range values {
		frames = append(frames, EncodeFrame(SwitchColorGet{Component: cv.Component}, 0))
	}
	return frames
}

// restoreComponents returns set values for every component whose restore
// target differs from the current state.
func (p *Planner) restoreComponents() []ColorComponentValue {
	var values []ColorComponentValue
	for _, c := range allComponents {
		want := p.state.Restore.RGBW.Component(c)
		if want != p.state.RGBW.Component(c) {
			values = append(values, ColorComponentValue{c, want})
		}
	}
	return values
}

// scaleLevel applies the min/max brightness remap to a 1-99 level.
// An unset calibration is the identity mapping.
func (p *Planner) scaleLevel(level uint8) uint8 {
	minL, maxL := p.cal.MinLevel, p.cal.MaxLevel
	if minL == 0 && maxL == 0 {
		return level
	}
	if minL == 0 {
		minL = levelMin
	}
	if maxL == 0 || maxL > levelMax {
		maxL = levelMax
	}
	if maxL < minL {
		minL, maxL = maxL, minL
	}

	span := float64(maxL - minL)
	scaled := float64(minL) + float64(level-levelMin)/float64(levelMax-levelMin)*span
	return uint8(math.Round(scaled))
}

func (p *Planner) logWarn(msg string, keysAndValues ...any) {
	if p.log != nil {
		p.log.Warn(msg, keysAndValues...)
	}
}
