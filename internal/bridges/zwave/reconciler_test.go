package zwave

import (
	"testing"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(ev Event) {
	s.events = append(s.events, ev)
}

func (s *recordingSink) named(name string) []Event {
	var out []Event
	for _, ev := range s.events {
		if ev.Name == name && ev.Channel == "" {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) channelNamed(channel, name string) []Event {
	var out []Event
	for _, ev := range s.events {
		if ev.Name == name && ev.Channel == channel {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.events = nil
}

// recordingSender captures corrective frame sends.
type recordingSender struct {
	batches [][]Frame
}

func (s *recordingSender) SendFrames(frames []Frame) {
	s.batches = append(s.batches, frames)
}

// fakeFlash stands in for the bridge's flash oscillator.
type fakeFlash struct {
	active   bool
	suspends int
	resumes  int
}

func (f *fakeFlash) SuspendFlash() bool {
	f.suspends++
	was := f.active
	f.active = false
	return was
}

func (f *fakeFlash) ResumeFlash() {
	f.resumes++
	f.active = true
}

func newTestReconciler(t *testing.T) (*Reconciler, *DeviceState, *recordingSink, *recordingSender, *fakeFlash) {
	t.Helper()
	state := NewDeviceState()
	planner := NewPlanner(state, Calibration{}, nil)
	router := NewChannelRouter([]byte{6})
	sink := &recordingSink{}
	sender := &recordingSender{}
	flash := &fakeFlash{}
	recon := NewReconciler(state, planner, router, sink, sender, flash, nil)
	return recon, state, sink, sender, flash
}

// ─── Switch level reports ──────────────────────────────────────────

func TestReconcilerSwitchLevelFinal(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	target := uint8(50)
	state.TransitionTarget = &target

	recon.Handle(SwitchLevelReport{Value: 50})

	if state.Level != 50 || !state.SwitchOn {
		t.Errorf("state = level %d on %v, want 50 on", state.Level, state.SwitchOn)
	}
	if state.TransitionTarget != nil {
		t.Error("final report should clear the transition target")
	}
	if state.Restore.Level != 50 {
		t.Errorf("restore level = %d, want 50", state.Restore.Level)
	}
	if evs := sink.named("switch"); len(evs) != 1 || evs[0].Value != true {
		t.Errorf("switch events = %v, want single true", evs)
	}
	if evs := sink.named("level"); len(evs) != 1 || evs[0].Value != 51 {
		t.Errorf("level events = %v, want single 51 percent", evs)
	}
}

func TestReconcilerSwitchLevelInFlight(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Level = 10
	state.SwitchOn = true

	fifty, ninetyNine := byte(50), byte(99)
	recon.Handle(SwitchLevelReport{Value: fifty, Target: &ninetyNine})

	// Mid-ramp: the forecast is emitted and the target, not the transient
	// value, is taken as the confirmed level.
	if evs := sink.named("levelUpdate"); len(evs) != 1 || evs[0].Value != 100 {
		t.Errorf("levelUpdate events = %v, want single 100", evs)
	}
	if state.Level != 99 {
		t.Errorf("level = %d, want target 99", state.Level)
	}
	if evs := sink.named("level"); len(evs) != 1 || evs[0].Value != 100 {
		t.Errorf("level events = %v, want single 100", evs)
	}
	if len(sink.named("switch")) != 0 {
		t.Error("no switch event expected, device was already on")
	}
}

func TestReconcilerSwitchLevelRampFromOffTurnsOn(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)

	target := byte(99)
	recon.Handle(SwitchLevelReport{Value: 10, Target: &target})

	// The ramp's verify get often produces the only report for the whole
	// transition, so the target must drive the on/off derivation.
	if !state.SwitchOn || state.Level != 99 {
		t.Errorf("state = level %d on %v, want 99 on", state.Level, state.SwitchOn)
	}
	if state.TransitionTarget != nil {
		t.Error("ramp report should clear the transition target")
	}
	if evs := sink.named("switch"); len(evs) != 1 || evs[0].Value != true {
		t.Errorf("switch events = %v, want single true", evs)
	}
	if evs := sink.named("levelUpdate"); len(evs) != 1 || evs[0].Value != 100 {
		t.Errorf("levelUpdate events = %v, want single 100", evs)
	}
}

func TestReconcilerSwitchLevelNoChangeNoEvents(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Level = 50
	state.SwitchOn = true

	recon.Handle(SwitchLevelReport{Value: 50})

	if len(sink.events) != 0 {
		t.Errorf("events = %v, want none for an unchanged level", sink.events)
	}
}

func TestReconcilerSwitchLevelOffKeepsRestore(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Level = 80
	state.SwitchOn = true
	state.Restore.Level = 80

	recon.Handle(SwitchLevelReport{Value: 0})

	if state.SwitchOn || state.Level != 0 {
		t.Errorf("state = level %d on %v, want off", state.Level, state.SwitchOn)
	}
	if state.Restore.Level != 80 {
		t.Errorf("restore level = %d, want 80 preserved through off", state.Restore.Level)
	}
	if evs := sink.named("switch"); len(evs) != 1 || evs[0].Value != false {
		t.Errorf("switch events = %v, want single false", evs)
	}
}

func TestReconcilerSwitchLevelEndpointIgnored(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)

	recon.Handle(MultiChannelEncap{SourceEndpoint: 2, Inner: SwitchLevelReport{Value: 50}})

	if state.Level != 0 || len(sink.events) != 0 {
		t.Error("endpoint level reports should be ignored")
	}
}

func TestReconcilerSwitchLevelSuppressedDuringEffect(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Effect = 6

	recon.Handle(SwitchLevelReport{Value: 42})

	if state.Level != 0 || len(sink.events) != 0 {
		t.Error("level reports during an effect should be suppressed")
	}
}

// ─── Colour settlement ─────────────────────────────────────────────

func TestReconcilerColorSettlementWithholdsEvents(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Pending.Track(ComponentRed, u8(255))
	state.Pending.Track(ComponentGreen, u8(128))
	state.Pending.Track(ComponentBlue, nil)

	// First report resolves red; blue's outcome is still unknown, so no
	// events may be published yet.
	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 255})
	if len(sink.events) != 0 {
		t.Fatalf("events before settlement = %v, want none", sink.events)
	}
	if state.RGBW.Red != 255 {
		t.Errorf("red = %d, want 255 applied silently", state.RGBW.Red)
	}

	// Blue settles the batch; green's surviving prediction is merged.
	recon.Handle(SwitchColorReport{Component: ComponentBlue, Value: 10})
	if state.RGBW.Green != 128 {
		t.Errorf("green = %d, want predicted 128 merged at settlement", state.RGBW.Green)
	}
	if len(sink.named("hue")) != 1 || len(sink.named("colorName")) != 1 {
		t.Error("settlement should publish the derived colour picture once")
	}
	colors := sink.named("color")
	if len(colors) != 1 {
		t.Fatalf("color events = %v, want exactly one", colors)
	}
	rgb := colors[0].Value.(map[string]int)
	if rgb["red"] != 255 || rgb["green"] != 128 || rgb["blue"] != 10 {
		t.Errorf("color = %v, want merged 255/128/10", rgb)
	}
}

func TestReconcilerColorAllKnownSettlesOnFirstReport(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Pending.Track(ComponentRed, u8(200))
	state.Pending.Track(ComponentGreen, u8(50))

	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 200})

	if !state.Pending.Empty() {
		t.Error("all-known batch should settle on the first report")
	}
	if state.RGBW.Green != 50 {
		t.Errorf("green = %d, want trusted prediction 50", state.RGBW.Green)
	}
	if len(sink.named("color")) != 1 {
		t.Error("settlement events expected")
	}
}

func TestReconcilerColorSpontaneousReport(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)

	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 180})

	if state.RGBW.Red != 180 {
		t.Errorf("red = %d, want 180", state.RGBW.Red)
	}
	if state.Restore.RGBW.Red != 180 {
		t.Errorf("restore red = %d, want nonzero value remembered", state.Restore.RGBW.Red)
	}
	if len(sink.named("color")) != 1 {
		t.Error("spontaneous change should emit immediately")
	}

	// The identical report again is a no-op.
	sink.reset()
	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 180})
	if len(sink.events) != 0 {
		t.Errorf("events = %v, want none for unchanged component", sink.events)
	}
}

func TestReconcilerColorRampTargetUsed(t *testing.T) {
	recon, state, _, _, _ := newTestReconciler(t)
	state.Pending.Track(ComponentRed, u8(255))

	target := byte(255)
	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 40, Target: &target})

	if state.RGBW.Red != 255 {
		t.Errorf("red = %d, want ramp target 255", state.RGBW.Red)
	}
	if !state.Pending.Empty() {
		t.Error("ramp target should settle the component")
	}
}

func TestReconcilerColorSuppressedDuringEffect(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Effect = 8

	recon.Handle(SwitchColorReport{Component: ComponentGreen, Value: 77})

	if state.RGBW.Green != 77 {
		t.Errorf("green = %d, want 77 tracked silently", state.RGBW.Green)
	}
	if len(sink.events) != 0 {
		t.Errorf("events = %v, want none during an effect", sink.events)
	}
}

func TestReconcilerColorSettlementDerivesAggregateSwitch(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)

	// Lighting a dark device through a colour report flips the aggregate.
	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 200})
	if !state.SwitchOn {
		t.Error("aggregate switch should be on after a channel lit")
	}
	if evs := sink.named("switch"); len(evs) != 1 || evs[0].Value != true {
		t.Errorf("switch events = %v, want single true", evs)
	}

	// Darkening the last lit channel flips it back.
	sink.reset()
	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 0})
	if state.SwitchOn {
		t.Error("aggregate switch should be off after the last channel darkened")
	}
	if evs := sink.named("switch"); len(evs) != 1 || evs[0].Value != false {
		t.Errorf("switch events = %v, want single false", evs)
	}
}

func TestReconcilerColorPerChannelEvents(t *testing.T) {
	recon, _, sink, _, _ := newTestReconciler(t)

	recon.Handle(SwitchColorReport{Component: ComponentRed, Value: 255})

	if evs := sink.channelNamed("red", "switch"); len(evs) != 1 || evs[0].Value != true {
		t.Errorf("red switch events = %v, want single true", evs)
	}
	if evs := sink.channelNamed("red", "level"); len(evs) != 1 || evs[0].Value != 100 {
		t.Errorf("red level events = %v, want single 100", evs)
	}
	if evs := sink.channelNamed("color", "level"); len(evs) != 1 || evs[0].Value != 100 {
		t.Errorf("color level events = %v, want single 100", evs)
	}
	if evs := sink.channelNamed("blue", "switch"); len(evs) != 1 || evs[0].Value != false {
		t.Errorf("blue switch events = %v, want single false", evs)
	}
	if evs := sink.channelNamed("analog-6", "switch"); len(evs) != 0 {
		t.Errorf("analog channel events = %v, want none", evs)
	}
}

// ─── Meter and sensor reports ──────────────────────────────────────

func TestReconcilerMeter(t *testing.T) {
	tests := []struct {
		name     string
		rep      MeterReport
		wantName string
	}{
		{"kwh", MeterReport{MeterType: 1, Scale: MeterScaleKWH, Value: 12.5}, "energy"},
		{"kvah", MeterReport{MeterType: 1, Scale: MeterScaleKVAH, Value: 13.0}, "apparentEnergy"},
		{"watts", MeterReport{MeterType: 1, Scale: MeterScaleWatts, Value: 42.0}, "power"},
		{"volts", MeterReport{MeterType: 1, Scale: MeterScaleVolts, Value: 239.5}, "voltage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recon, _, sink, _, _ := newTestReconciler(t)
			recon.Handle(tt.rep)
			evs := sink.named(tt.wantName)
			if len(evs) != 1 || evs[0].Value != tt.rep.Value {
				t.Errorf("%s events = %v, want single %v", tt.wantName, evs, tt.rep.Value)
			}
		})
	}

	t.Run("non-electrical dropped", func(t *testing.T) {
		recon, _, sink, _, _ := newTestReconciler(t)
		recon.Handle(MeterReport{MeterType: 3, Scale: MeterScaleWatts, Value: 1})
		if len(sink.events) != 0 {
			t.Errorf("events = %v, want none for gas meter", sink.events)
		}
	})
}

func TestReconcilerSensorRoutesToChannel(t *testing.T) {
	recon, _, sink, _, _ := newTestReconciler(t)

	recon.Handle(MultiChannelEncap{
		SourceEndpoint: 6,
		Inner:          SensorReport{SensorType: 0x01, Value: 7.2},
	})

	evs := sink.channelNamed("analog-6", "value")
	if len(evs) != 1 || evs[0].Value != 7.2 {
		t.Errorf("analog events = %v, want single 7.2", evs)
	}

	// Unmapped endpoint readings vanish.
	sink.reset()
	recon.Handle(MultiChannelEncap{
		SourceEndpoint: 9,
		Inner:          SensorReport{SensorType: 0x01, Value: 1.0},
	})
	if len(sink.events) != 0 {
		t.Errorf("events = %v, want none for unmapped endpoint", sink.events)
	}
}

// ─── Notifications ─────────────────────────────────────────────────

func TestReconcilerNotificationAlerts(t *testing.T) {
	tests := []struct {
		name     string
		rep      NotificationReport
		endpoint byte
		want     string
	}{
		{"over current", NotificationReport{Type: 0x08, Event: 0x06}, 1, "overCurrent"},
		{"hardware failure", NotificationReport{Type: 0x09, Event: 0x03}, 1, "hardwareFailure"},
		{"wrong endpoint dropped", NotificationReport{Type: 0x08, Event: 0x06}, 2, ""},
		{"root endpoint dropped", NotificationReport{Type: 0x08, Event: 0x06}, 0, ""},
		{"unrelated event dropped", NotificationReport{Type: 0x08, Event: 0x02}, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recon, _, sink, _, _ := newTestReconciler(t)
			if tt.endpoint == 0 {
				recon.Handle(tt.rep)
			} else {
				recon.Handle(MultiChannelEncap{SourceEndpoint: tt.endpoint, Inner: tt.rep})
			}
			evs := sink.named("alert")
			if tt.want == "" {
				if len(evs) != 0 {
					t.Errorf("alert events = %v, want none", evs)
				}
				return
			}
			if len(evs) != 1 || evs[0].Value != tt.want {
				t.Errorf("alert events = %v, want single %q", evs, tt.want)
			}
		})
	}
}

// ─── Central scene ─────────────────────────────────────────────────

func TestReconcilerCentralSceneDedup(t *testing.T) {
	recon, _, sink, _, _ := newTestReconciler(t)

	recon.Handle(CentralSceneNotification{Sequence: 10, Scene: 1, KeyAttribute: 0})
	recon.Handle(CentralSceneNotification{Sequence: 10, Scene: 1, KeyAttribute: 0})
	recon.Handle(CentralSceneNotification{Sequence: 11, Scene: 1, KeyAttribute: 2})

	evs := sink.named("scene")
	if len(evs) != 2 {
		t.Fatalf("scene events = %v, want 2 (duplicate dropped)", evs)
	}
	first := evs[0].Value.(map[string]any)
	if first["scene"] != 1 || first["action"] != "pushed" {
		t.Errorf("first scene = %v, want scene 1 pushed", first)
	}
	second := evs[1].Value.(map[string]any)
	if second["action"] != "held" {
		t.Errorf("second scene = %v, want held", second)
	}
}

func TestReconcilerCentralSceneUnknownAttribute(t *testing.T) {
	recon, _, sink, _, _ := newTestReconciler(t)

	recon.Handle(CentralSceneNotification{Sequence: 5, Scene: 2, KeyAttribute: 0x07})

	if len(sink.named("scene")) != 0 {
		t.Error("unknown key attributes should not produce scene events")
	}
}

// ─── Effect state machine ──────────────────────────────────────────

func TestReconcilerEffectActivation(t *testing.T) {
	recon, state, sink, sender, _ := newTestReconciler(t)

	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 6})

	if state.Effect != 6 {
		t.Errorf("effect = %d, want 6", state.Effect)
	}
	if evs := sink.named("effect"); len(evs) != 1 || evs[0].Value != "Fireplace" {
		t.Errorf("effect events = %v, want Fireplace", evs)
	}
	if evs := sink.named("colorMode"); len(evs) != 1 || evs[0].Value != "EFFECTS" {
		t.Errorf("colorMode events = %v, want EFFECTS", evs)
	}
	if len(sender.batches) != 0 {
		t.Error("activation must not send corrective frames")
	}
}

func TestReconcilerEffectDeactivationRestores(t *testing.T) {
	recon, state, sink, sender, _ := newTestReconciler(t)
	state.Effect = 6
	state.SwitchOn = true
	state.Level = 80
	state.RGBW = RGBWState{Red: 255}

	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 0})

	if state.Effect != 0 {
		t.Errorf("effect = %d, want 0", state.Effect)
	}
	if evs := sink.named("effect"); len(evs) != 1 || evs[0].Value != "Disabled" {
		t.Errorf("effect events = %v, want Disabled", evs)
	}
	if evs := sink.named("colorMode"); len(evs) != 1 || evs[0].Value != "RGB" {
		t.Errorf("colorMode events = %v, want RGB", evs)
	}
	if len(sender.batches) != 1 {
		t.Fatalf("corrective sends = %d, want 1", len(sender.batches))
	}
	// Restore reasserts colours then level, instantly.
	frames := sender.batches[0]
	if frames[0][0] != ClassSwitchColor || frames[1][0] != ClassSwitchMultilevel {
		t.Errorf("restore frames = % X / % X, want colour then level", []byte(frames[0]), []byte(frames[1]))
	}
}

func TestReconcilerEffectActivationCancelsFlash(t *testing.T) {
	recon, _, _, sender, flash := newTestReconciler(t)
	flash.active = true

	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 6})

	// The effect takes over the visual: the oscillator stops firing and
	// nothing is restored on the way in.
	if flash.active {
		t.Error("flash oscillator must be cancelled on effect activation")
	}
	if len(sender.batches) != 0 {
		t.Error("activation must not send corrective frames")
	}
}

func TestReconcilerEffectDeactivationResumesFlash(t *testing.T) {
	recon, state, _, sender, flash := newTestReconciler(t)
	state.SwitchOn = true
	state.Level = 80
	state.RGBW = RGBWState{Red: 255}
	flash.active = true

	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 6})
	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 0})

	// Exit restores the commanded appearance, then hands the visual back
	// to the interrupted oscillator.
	if len(sender.batches) != 1 {
		t.Fatalf("corrective sends = %d, want 1 restore", len(sender.batches))
	}
	if frames := sender.batches[0]; frames[0][0] != ClassSwitchColor {
		t.Errorf("restore frames = % X, want colour first", []byte(frames[0]))
	}
	if flash.resumes != 1 || !flash.active {
		t.Errorf("flash resumes = %d active %v, want oscillator restarted", flash.resumes, flash.active)
	}
}

func TestReconcilerEffectDeactivationWithoutFlashDoesNotResume(t *testing.T) {
	recon, state, _, _, flash := newTestReconciler(t)
	state.SwitchOn = true

	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 6})
	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 0})

	if flash.resumes != 0 {
		t.Error("no oscillator was interrupted, nothing to resume")
	}
}

func TestReconcilerEffectDeactivationReassertsOffWhileOff(t *testing.T) {
	recon, state, _, sender, _ := newTestReconciler(t)
	state.Effect = 6
	state.SwitchOn = false

	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 0})

	// The effect lit the device while the commanded state was off; snap it
	// back off rather than restoring.
	if len(sender.batches) != 1 {
		t.Fatalf("corrective sends = %d, want 1 off reassert", len(sender.batches))
	}
	frames := sender.batches[0]
	if len(frames) != 1 || frames[0][0] != ClassSwitchMultilevel {
		t.Fatalf("off frames = %v, want single multilevel set", frames)
	}
	if frames[0][2] != 0 {
		t.Errorf("off level = %d, want 0", frames[0][2])
	}
}

func TestReconcilerEffectUnchangedValueIsQuiet(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)
	state.Effect = 6

	recon.Handle(ConfigurationReport{Parameter: 157, Size: 1, Value: 6})

	if len(sink.events) != 0 {
		t.Errorf("events = %v, want none for unchanged effect", sink.events)
	}
}

func TestReconcilerGenericParameterReport(t *testing.T) {
	recon, _, sink, _, _ := newTestReconciler(t)

	recon.Handle(ConfigurationReport{Parameter: 40, Size: 1, Value: 5})

	evs := sink.named("parameter")
	if len(evs) != 1 {
		t.Fatalf("parameter events = %v, want 1", evs)
	}
	payload := evs[0].Value.(map[string]any)
	if payload["number"] != 40 || payload["value"] != int64(5) {
		t.Errorf("parameter payload = %v, want number 40 value 5", payload)
	}
}

// ─── Version reports ───────────────────────────────────────────────

func TestReconcilerVersion(t *testing.T) {
	recon, state, sink, _, _ := newTestReconciler(t)

	recon.Handle(VersionReport{Firmware: 2.08, ProtocolVersion: "3.95"})

	if state.Identity.Firmware != 2.08 {
		t.Errorf("firmware = %v, want 2.08", state.Identity.Firmware)
	}
	if evs := sink.named("firmware"); len(evs) != 1 || evs[0].Value != 2.08 {
		t.Errorf("firmware events = %v, want single 2.08", evs)
	}
}

// ─── Scale helpers ─────────────────────────────────────────────────

func TestLevelPercent(t *testing.T) {
	tests := []struct {
		level byte
		want  int
	}{
		{0, 0},
		{1, 1},
		{50, 51},
		{99, 100},
		{255, 100},
	}
	for _, tt := range tests {
		if got := levelPercent(tt.level); got != tt.want {
			t.Errorf("levelPercent(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestChannelPercent(t *testing.T) {
	tests := []struct {
		value uint8
		want  int
	}{
		{0, 0},
		{128, 50},
		{255, 100},
	}
	for _, tt := range tests {
		if got := channelPercent(tt.value); got != tt.want {
			t.Errorf("channelPercent(%d) = %d, want %d", tt.value, got, tt.want)
		}
	}
}
