package zwave

import (
	"math"
)

// Central scene key attributes, mapped to the action names child consumers
// receive.
var sceneActions = map[byte]string{
	0x00: "pushed",
	0x01: "released",
	0x02: "held",
	0x03: "doubleTapped",
}

// Event is one derived state change emitted toward the message bus.
//
// Channel is the routing key of the logical channel the event belongs to,
// or "" for device-wide events (switch, level, colour aggregates, effects).
type Event struct {
	Channel string
	Name    string
	Value   any
}

// EventSink receives derived events. Implementations must not block; the
// reconciler calls Emit from the bridge's dispatch goroutine.
type EventSink interface {
	Emit(ev Event)
}

// FrameSender sends frames to the device. The reconciler uses it for the
// corrective writes some reports trigger (reasserting state after a preset
// programme deactivates).
type FrameSender interface {
	SendFrames(frames []Frame)
}

// FlashController exposes the owning bridge's flash oscillator to the
// reconciler so preset programmes can take over the visual and hand it
// back afterwards.
type FlashController interface {
	// SuspendFlash cancels the oscillator without reasserting state and
	// reports whether it was running.
	SuspendFlash() bool

	// ResumeFlash restarts a previously suspended oscillator.
	ResumeFlash()
}

// Reconciler folds decoded reports into device state and emits derived
// events.
//
// It is the confirmation half of the command pipeline: the planner records
// speculative expectations (pending colour updates, transition targets) and
// the reconciler settles them as the device reports back. Events for a
// multi-component colour command are withheld until the whole batch settles
// so consumers never observe a half-applied colour.
//
// All methods run on the bridge's single dispatch goroutine.
type Reconciler struct {
	state   *DeviceState
	planner *Planner
	router  *ChannelRouter
	sink    EventSink
	sender  FrameSender
	flash   FlashController
	log     Logger

	lastSceneSequence *byte

	// flashSuspended remembers that an effect interrupted a running flash
	// oscillator, so deactivation can hand the visual back to it.
	flashSuspended bool
}

// NewReconciler creates a reconciler bound to the device's state, planner,
// and channel router.
func NewReconciler(state *DeviceState, planner *Planner, router *ChannelRouter,
	sink EventSink, sender FrameSender, flash FlashController, log Logger) *Reconciler {
	return &Reconciler{
		state:   state,
		planner: planner,
		router:  router,
		sink:    sink,
		sender:  sender,
		flash:   flash,
		log:     log,
	}
}

// Handle dispatches one decoded report. Reports from endpoints arrive
// wrapped in MultiChannelEncap and are unwrapped here, so the per-type
// handlers see the endpoint they came from.
func (r *Reconciler) Handle(report Report) {
	r.handle(report, 0)
}

func (r *Reconciler) handle(report Report, endpoint byte) {
	switch rep := report.(type) {
	case MultiChannelEncap:
		r.handle(rep.Inner, rep.SourceEndpoint)
	case SwitchLevelReport:
		r.handleSwitchLevel(rep, endpoint)
	case SwitchColorReport:
		r.handleSwitchColor(rep)
	case MeterReport:
		r.handleMeter(rep)
	case SensorReport:
		r.handleSensor(rep, endpoint)
	case NotificationReport:
		r.handleNotification(rep, endpoint)
	case CentralSceneNotification:
		r.handleCentralScene(rep)
	case ConfigurationReport:
		r.handleConfiguration(rep)
	case VersionReport:
		r.handleVersion(rep)
	case AssociationReport:
		r.logInfo("association report",
			"group", rep.Group, "max_nodes", rep.MaxNodes, "nodes", rep.Nodes)
		r.emit(Event{Name: "association", Value: map[string]any{
			"group": int(rep.Group),
			"nodes": rep.Nodes,
		}})
	case UnrecognizedReport:
		r.logDebug("ignoring unrecognized report",
			"class", rep.Class, "command", rep.Command, "payload_len", len(rep.Payload))
	default:
		r.logDebug("ignoring unhandled report", "kind", report.reportKind())
	}
}

// handleSwitchLevel processes a dimmer level report.
//
// A report whose value has not yet reached its ramp target describes an
// in-flight transition: a levelUpdate progress event is emitted and the
// confirmed state is derived from the target, not the transient value. The
// verify get often lands mid-ramp, so this report may be the only one
// received for the whole transition.
func (r *Reconciler) handleSwitchLevel(rep SwitchLevelReport, endpoint byte) {
	if endpoint != 0 {
		r.logDebug("ignoring endpoint level report", "endpoint", endpoint)
		return
	}
	if r.state.EffectActive() {
		r.logDebug("suppressing level report during effect", "value", rep.Value)
		return
	}

	level := rep.Value
	if rep.Target != nil && rep.Value != *rep.Target {
		r.emit(Event{Name: "levelUpdate", Value: levelPercent(*rep.Target)})
		level = *rep.Target
	}
	on := level > 0

	switchChanged := on != r.state.SwitchOn
	levelChanged := level != r.state.Level

	r.state.Level = level
	r.state.SwitchOn = on
	r.state.TransitionTarget = nil
	if level > 0 {
		r.state.Restore.Level = level
	}

	if switchChanged {
		r.emit(Event{Name: "switch", Value: on})
	}
	if levelChanged {
		r.emit(Event{Name: "level", Value: levelPercent(level)})
	}
}

// handleSwitchColor processes a colour component report.
//
// Components tracked by a pending update settle the batch per the
// settlement rules; events are withheld until settlement and the surviving
// predictions are merged so the emitted colour reflects the whole command.
// Spontaneous reports (physical interaction, association peers) emit
// immediately on change.
func (r *Reconciler) handleSwitchColor(rep SwitchColorReport) {
	value := rep.ReportedValue()
	component := rep.Component

	if r.state.EffectActive() {
		r.state.RGBW.SetComponent(component, value)
		r.logDebug("suppressing colour report during effect",
			"component", component.String(), "value", value)
		return
	}

	if r.state.Pending.Tracked(component) {
		r.state.RGBW.SetComponent(component, value)
		if value > 0 {
			r.state.Restore.RGBW.SetComponent(component, value)
		}

		settled, remaining := r.state.Pending.Resolve(component)
		if !settled {
			return
		}
		for comp, v := range remaining {
			r.state.RGBW.SetComponent(comp, v)
			if v > 0 {
				r.state.Restore.RGBW.SetComponent(comp, v)
			}
		}
		r.emitColorEvents()
		return
	}

	if r.state.RGBW.Component(component) == value {
		return
	}
	r.state.RGBW.SetComponent(component, value)
	if value > 0 {
		r.state.Restore.RGBW.SetComponent(component, value)
	}
	r.emitColorEvents()
}

// handleMeter processes an electrical meter reading, branching on scale.
func (r *Reconciler) handleMeter(rep MeterReport) {
	if rep.MeterType != meterTypeElectric {
		r.logDebug("ignoring non-electrical meter report", "meter_type", rep.MeterType)
		return
	}

	switch rep.Scale {
	case MeterScaleKWH:
		r.emit(Event{Name: "energy", Value: rep.Value})
	case MeterScaleKVAH:
		r.emit(Event{Name: "apparentEnergy", Value: rep.Value})
	case MeterScaleWatts:
		r.emit(Event{Name: "power", Value: rep.Value})
	case MeterScaleVolts:
		r.emit(Event{Name: "voltage", Value: rep.Value})
	default:
		r.logDebug("ignoring meter report with unknown scale", "scale", rep.Scale)
	}
}

// handleSensor routes an analog input reading to its logical channel.
func (r *Reconciler) handleSensor(rep SensorReport, endpoint byte) {
	ch, ok := r.router.ChannelForEndpoint(endpoint)
	if !ok || ch.Kind != ChannelAnalog {
		r.logDebug("ignoring sensor report from unmapped endpoint",
			"endpoint", endpoint, "sensor_type", rep.SensorType)
		return
	}
	r.emit(Event{Channel: ch.Key, Name: "value", Value: rep.Value})
}

// handleNotification processes device alerts. Only the input endpoint's
// over-current and hardware-failure alerts are acted on (logged as errors);
// everything else is dropped.
func (r *Reconciler) handleNotification(rep NotificationReport, endpoint byte) {
	if endpoint != 1 {
		r.logDebug("ignoring notification from endpoint",
			"endpoint", endpoint, "type", rep.Type, "event", rep.Event)
		return
	}

	switch {
	case rep.IsOverCurrent():
		r.logError("device reported over-current", nil)
		r.emit(Event{Name: "alert", Value: "overCurrent"})
	case rep.IsHardwareFailure():
		r.logError("device reported hardware failure", nil)
		r.emit(Event{Name: "alert", Value: "hardwareFailure"})
	default:
		r.logDebug("ignoring notification",
			"type", rep.Type, "event", rep.Event)
	}
}

// handleCentralScene processes a scene-controller key press. The device
// retransmits notifications until acknowledged, so consecutive duplicates
// of the same sequence number are dropped.
func (r *Reconciler) handleCentralScene(rep CentralSceneNotification) {
	if r.lastSceneSequence != nil && *r.lastSceneSequence == rep.Sequence {
		r.logDebug("dropping duplicate scene notification", "sequence", rep.Sequence)
		return
	}
	seq := rep.Sequence
	r.lastSceneSequence = &seq

	action, ok := sceneActions[rep.KeyAttribute]
	if !ok {
		r.logDebug("ignoring scene notification with unknown key attribute",
			"attribute", rep.KeyAttribute)
		return
	}

	r.emit(Event{Name: "scene", Value: map[string]any{
		"scene":  int(rep.Scene),
		"action": action,
	}})
}

// handleConfiguration processes a parameter report.
//
// The effect parameter drives the preset state machine: activation
// switches the device into EFFECTS mode, suppresses colour/level
// derivation, and cancels a running flash oscillator without restoring
// (the effect takes over the visual). Deactivation reasserts the last
// commanded appearance and hands the visual back to the oscillator if one
// was interrupted.
func (r *Reconciler) handleConfiguration(rep ConfigurationReport) {
	if rep.Parameter != effectParameter {
		r.emit(Event{Name: "parameter", Value: map[string]any{
			"number": int(rep.Parameter),
			"size":   int(rep.Size),
			"value":  rep.Value,
		}})
		return
	}

	number := byte(rep.Value)
	wasActive := r.state.EffectActive()
	if number == r.state.Effect {
		return
	}
	r.state.Effect = number

	if number != EffectDisabled {
		if r.flash != nil && r.flash.SuspendFlash() {
			r.flashSuspended = true
			r.logDebug("flash oscillator suspended for effect")
		}
		r.logInfo("effect activated", "effect", EffectName(number))
		r.emit(Event{Name: "effect", Value: EffectName(number)})
		r.emit(Event{Name: "colorMode", Value: string(ModeEffects)})
		return
	}

	r.logInfo("effect deactivated")
	r.emit(Event{Name: "effect", Value: EffectName(EffectDisabled)})
	r.emit(Event{Name: "colorMode", Value: string(r.state.Mode())})

	if !wasActive {
		return
	}

	resume := r.flashSuspended
	r.flashSuspended = false

	switch {
	case resume:
		r.sendFrames(r.planner.RestoreFrames())
		if r.flash != nil {
			r.flash.ResumeFlash()
		}
	case r.state.SwitchOn:
		r.sendFrames(r.planner.RestoreFrames())
	default:
		// The device was off before the effect started; snap it back off
		// without touching the restore memory.
		r.sendFrames(r.planner.FlashPhase(false))
	}
}

// handleVersion records the firmware identity from a version report.
func (r *Reconciler) handleVersion(rep VersionReport) {
	r.state.Identity.Firmware = rep.Firmware
	r.logInfo("device version",
		"firmware", rep.Firmware, "protocol", rep.ProtocolVersion)
	r.emit(Event{Name: "firmware", Value: rep.Firmware})
}

// emitColorEvents publishes the full derived colour picture: the aggregate
// switch state, the HSV aggregates, the colour name, the mode, and
// per-channel switch/level events for every colour channel the router maps.
func (r *Reconciler) emitColorEvents() {
	hsv := r.state.RGBW.HSV()

	// A settled colour change can light a dark device or darken the last
	// lit channel; the aggregate is on iff any channel is.
	if on := r.state.RGBW.AnyOn(); on != r.state.SwitchOn {
		r.state.SwitchOn = on
		r.emit(Event{Name: "switch", Value: on})
	}

	r.emit(Event{Name: "hue", Value: round1(hsv.Hue)})
	r.emit(Event{Name: "saturation", Value: round1(hsv.Saturation)})
	r.emit(Event{Name: "color", Value: map[string]int{
		"red":   int(r.state.RGBW.Red),
		"green": int(r.state.RGBW.Green),
		"blue":  int(r.state.RGBW.Blue),
	}})
	r.emit(Event{Name: "colorName", Value: ColorName(hsv.Hue, hsv.Saturation)})
	r.emit(Event{Name: "colorMode", Value: string(r.state.Mode())})
	r.emit(Event{Name: "white", Value: channelPercent(r.state.RGBW.White)})

	for _, ch := range r.router.Channels() {
		switch ch.Kind {
		case ChannelAnalog:
			continue
		case ChannelColor:
			on := r.state.RGBW.ColorOn()
			r.emit(Event{Channel: ch.Key, Name: "switch", Value: on})
			r.emit(Event{Channel: ch.Key, Name: "level", Value: int(math.Round(hsv.Value))})
		default:
			value := r.state.RGBW.Component(ComponentsForChannel(ch.Kind)[0])
			r.emit(Event{Channel: ch.Key, Name: "switch", Value: value > 0})
			r.emit(Event{Channel: ch.Key, Name: "level", Value: channelPercent(value)})
		}
	}
}

func (r *Reconciler) emit(ev Event) {
	if r.sink != nil {
		r.sink.Emit(ev)
	}
}

func (r *Reconciler) sendFrames(frames []Frame) {
	if r.sender != nil {
		r.sender.SendFrames(frames)
	}
}

// levelPercent converts a device-native 0-99 level to the 0-100 scale.
func levelPercent(level byte) int {
	if level >= levelMax {
		return percentMax
	}
	return int(math.Round(float64(level) / float64(levelMax) * percentMax))
}

// channelPercent converts a 0-255 channel value to the 0-100 scale.
func channelPercent(value uint8) int {
	return int(math.Round(float64(value) / rgbMax * percentMax))
}

// round1 rounds to one decimal place for event payloads.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func (r *Reconciler) logInfo(msg string, keysAndValues ...any) {
	if r.log != nil {
		r.log.Info(msg, keysAndValues...)
	}
}

func (r *Reconciler) logDebug(msg string, keysAndValues ...any) {
	if r.log != nil {
		r.log.Debug(msg, keysAndValues...)
	}
}

func (r *Reconciler) logError(msg string, err error) {
	if r.log != nil {
		if err != nil {
			r.log.Error(msg, "error", err)
		} else {
			r.log.Error(msg)
		}
	}
}
