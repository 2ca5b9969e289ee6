package zwave

import (
	"bytes"
	"testing"
)

// ─── Command encoding ──────────────────────────────────────────────

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		endpoint byte
		want     []byte
	}{
		{
			name:     "binary set on to root",
			cmd:      SwitchBinarySet{On: true},
			endpoint: 0,
			want:     []byte{0x25, 0x01, 0xFF},
		},
		{
			name:     "binary set off to root",
			cmd:      SwitchBinarySet{On: false},
			endpoint: 0,
			want:     []byte{0x25, 0x01, 0x00},
		},
		{
			name:     "binary get",
			cmd:      SwitchBinaryGet{},
			endpoint: 0,
			want:     []byte{0x25, 0x02},
		},
		{
			name:     "multilevel set with duration",
			cmd:      SwitchMultilevelSet{Level: 50, Duration: 0xFF},
			endpoint: 0,
			want:     []byte{0x26, 0x01, 50, 0xFF},
		},
		{
			name:     "multilevel get wrapped for endpoint",
			cmd:      SwitchMultilevelGet{},
			endpoint: 3,
			want:     []byte{0x60, 0x0D, 0x00, 0x03, 0x26, 0x02},
		},
		{
			name:     "start change down",
			cmd:      SwitchMultilevelStartChange{Up: false, Duration: 10},
			endpoint: 0,
			want:     []byte{0x26, 0x04, 0x40, 0x00, 10},
		},
		{
			name:     "start change up",
			cmd:      SwitchMultilevelStartChange{Up: true, Duration: 10},
			endpoint: 0,
			want:     []byte{0x26, 0x04, 0x00, 0x00, 10},
		},
		{
			name:     "stop change",
			cmd:      SwitchMultilevelStopChange{},
			endpoint: 0,
			want:     []byte{0x26, 0x05},
		},
		{
			name: "colour set two components",
			cmd: SwitchColorSet{
				Components: []ColorComponentValue{
					{ComponentRed, 255},
					{ComponentGreen, 128},
				},
				Duration: 0xFF,
			},
			endpoint: 0,
			want:     []byte{0x33, 0x05, 0x02, 0x02, 0xFF, 0x03, 0x80, 0xFF},
		},
		{
			name: "colour set all four components",
			cmd: SwitchColorSet{
				Components: []ColorComponentValue{
					{ComponentRed, 1},
					{ComponentGreen, 2},
					{ComponentBlue, 3},
					{ComponentWarmWhite, 4},
				},
				Duration: 0,
			},
			endpoint: 0,
			want:     []byte{0x33, 0x05, 0x04, 0x02, 0x01, 0x03, 0x02, 0x04, 0x03, 0x00, 0x04, 0x00},
		},
		{
			name:     "colour get white",
			cmd:      SwitchColorGet{Component: ComponentWarmWhite},
			endpoint: 0,
			want:     []byte{0x33, 0x03, 0x00},
		},
		{
			name:     "configuration set one byte",
			cmd:      ConfigurationSet{Parameter: 157, Size: 1, Value: 6},
			endpoint: 0,
			want:     []byte{0x70, 0x04, 157, 0x01, 0x06},
		},
		{
			name:     "configuration set two bytes above half range",
			cmd:      ConfigurationSet{Parameter: 1, Size: 2, Value: 40000},
			endpoint: 0,
			want:     []byte{0x70, 0x04, 0x01, 0x02, 0x9C, 0x40},
		},
		{
			name:     "configuration get",
			cmd:      ConfigurationGet{Parameter: 157},
			endpoint: 0,
			want:     []byte{0x70, 0x05, 157},
		},
		{
			name:     "meter get watts",
			cmd:      MeterGet{Scale: MeterScaleWatts},
			endpoint: 0,
			want:     []byte{0x32, 0x01, 0x10},
		},
		{
			name:     "meter get kwh",
			cmd:      MeterGet{Scale: MeterScaleKWH},
			endpoint: 0,
			want:     []byte{0x32, 0x01, 0x00},
		},
		{
			name:     "sensor get wrapped for analog endpoint",
			cmd:      SensorGet{SensorType: 0x01},
			endpoint: 5,
			want:     []byte{0x60, 0x0D, 0x00, 0x05, 0x31, 0x04, 0x01, 0x00},
		},
		{
			name:     "association set",
			cmd:      AssociationSet{Group: 2, Nodes: []byte{5, 9}},
			endpoint: 0,
			want:     []byte{0x85, 0x01, 0x02, 0x05, 0x09},
		},
		{
			name:     "association remove all",
			cmd:      AssociationRemove{Group: 2},
			endpoint: 0,
			want:     []byte{0x85, 0x04, 0x02},
		},
		{
			name:     "association get",
			cmd:      AssociationGet{Group: 1},
			endpoint: 0,
			want:     []byte{0x85, 0x02, 0x01},
		},
		{
			name:     "version get",
			cmd:      VersionGet{},
			endpoint: 0,
			want:     []byte{0x86, 0x11},
		},
		{
			name:     "notification get",
			cmd:      NotificationGet{Type: 0x08},
			endpoint: 0,
			want:     []byte{0x71, 0x04, 0x00, 0x08, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeFrame(tt.cmd, tt.endpoint)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeFrame() = % X, want % X", []byte(got), tt.want)
			}
		})
	}
}

// TestEncodeFrameEndpointZeroBare verifies endpoint 0 never grows an
// encapsulation envelope, whatever the command.
func TestEncodeFrameEndpointZeroBare(t *testing.T) {
	cmds := []Command{
		SwitchBinaryGet{},
		SwitchMultilevelGet{},
		SwitchColorGet{Component: ComponentRed},
		VersionGet{},
	}
	for _, cmd := range cmds {
		frame := EncodeFrame(cmd, 0)
		if frame[0] == ClassMultiChannel {
			t.Errorf("EncodeFrame(%T, 0) produced encapsulated frame % X", cmd, []byte(frame))
		}
	}
}

// ─── Configuration value conversion ────────────────────────────────

func TestConfigValueConversion(t *testing.T) {
	tests := []struct {
		name   string
		value  int64
		size   byte
		signed int64
	}{
		{"small positive one byte", 6, 1, 6},
		{"half range one byte", 128, 1, -128},
		{"max one byte", 255, 1, -1},
		{"below half range two bytes", 500, 2, 500},
		{"above half range two bytes", 40000, 2, -25536},
		{"max two bytes", 65535, 2, -1},
		{"four bytes positive", 100000, 4, 100000},
		{"four bytes above half range", 3000000000, 4, 3000000000 - (1 << 32)},
		{"zero", 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed := ConfigValueToSigned(tt.value, tt.size)
			if signed != tt.signed {
				t.Errorf("ConfigValueToSigned(%d, %d) = %d, want %d", tt.value, tt.size, signed, tt.signed)
			}
			back := SignedToConfigValue(signed, tt.size)
			if back != tt.value {
				t.Errorf("SignedToConfigValue(%d, %d) = %d, want %d", signed, tt.size, back, tt.value)
			}
		})
	}
}

func TestConfigValueWireRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value int64
		size  byte
	}{
		{"one byte", 200, 1},
		{"two bytes", 40000, 2},
		{"four bytes", 3000000000, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := encodeConfigValue(tt.value, tt.size)
			if len(wire) != int(tt.size) {
				t.Fatalf("encodeConfigValue produced %d bytes, want %d", len(wire), tt.size)
			}
			if got := decodeConfigValue(wire); got != tt.value {
				t.Errorf("round trip %d = %d", tt.value, got)
			}
		})
	}
}

// ─── Component naming ──────────────────────────────────────────────

func TestColorComponentString(t *testing.T) {
	if got := ComponentWarmWhite.String(); got != "white" {
		t.Errorf("ComponentWarmWhite.String() = %q, want %q", got, "white")
	}
	if got := ComponentRed.String(); got != "red" {
		t.Errorf("ComponentRed.String() = %q, want %q", got, "red")
	}
	if got := ColorComponent(7).String(); got != "component-7" {
		t.Errorf("ColorComponent(7).String() = %q, want %q", got, "component-7")
	}
}

func TestCommandClassVersion(t *testing.T) {
	if got := CommandClassVersion(ClassSwitchColor); got != 3 {
		t.Errorf("CommandClassVersion(SwitchColor) = %d, want 3", got)
	}
	if got := CommandClassVersion(0x99); got != 0 {
		t.Errorf("CommandClassVersion(unsupported) = %d, want 0", got)
	}
}
