package zwave

import (
	"fmt"
	"math"
)

// Notification types and events the reconciler cares about. Everything else
// is logged and dropped.
const (
	notificationTypePower  byte = 0x08
	notificationTypeSystem byte = 0x09

	notificationEventOverCurrent     byte = 0x06
	notificationEventHardwareFailure byte = 0x03
)

// Meter domain and scales for the electrical meter.
const (
	meterTypeElectric byte = 0x01

	// MeterScaleKWH is cumulative energy in kWh.
	MeterScaleKWH byte = 0
	// MeterScaleKVAH is cumulative apparent energy in kVAh.
	MeterScaleKVAH byte = 1
	// MeterScaleWatts is instantaneous power in W.
	MeterScaleWatts byte = 2
	// MeterScaleVolts is instantaneous voltage in V.
	MeterScaleVolts byte = 4
)

// Report is a decoded inbound frame.
//
// The set of variants is closed: every frame decodes to exactly one of the
// types below, with UnrecognizedReport as the explicit catch-all for
// classes or commands outside the supported grammar.
type Report interface {
	reportKind() string
}

// VersionReport carries firmware and protocol versions.
type VersionReport struct {
	LibraryType     byte
	ProtocolVersion string
	// Firmware is the application version as a decimal (e.g. 2.08).
	Firmware float64
}

func (VersionReport) reportKind() string { return "version" }

// ConfigurationReport carries a parameter value. Value is the unsigned
// parameter value after two's-complement conversion.
type ConfigurationReport struct {
	Parameter byte
	Size      byte
	Value     int64
}

func (ConfigurationReport) reportKind() string { return "configuration" }

// AssociationReport carries the membership of an association group.
type AssociationReport struct {
	Group    byte
	MaxNodes byte
	Nodes    []byte
}

func (AssociationReport) reportKind() string { return "association" }

// SwitchLevelReport carries the dimmer level. Target and Duration are only
// present for version 4+ reports describing an in-flight ramp.
type SwitchLevelReport struct {
	Value    byte
	Target   *byte
	Duration *byte
}

func (SwitchLevelReport) reportKind() string { return "switch-level" }

// SensorReport carries a multilevel sensor reading.
type SensorReport struct {
	SensorType byte
	Scale      byte
	Precision  byte
	Value      float64
}

func (SensorReport) reportKind() string { return "sensor" }

// MultiChannelEncap wraps a report received from a specific endpoint.
type MultiChannelEncap struct {
	SourceEndpoint byte
	DestEndpoint   byte
	Inner          Report
}

func (MultiChannelEncap) reportKind() string { return "multi-channel" }

// NotificationReport carries a device alert.
type NotificationReport struct {
	V1AlarmType  byte
	V1AlarmLevel byte
	Type         byte
	Event        byte
}

func (NotificationReport) reportKind() string { return "notification" }

// IsOverCurrent reports whether this is an over-current alert.
func (r NotificationReport) IsOverCurrent() bool {
	return r.Type == notificationTypePower && r.Event == notificationEventOverCurrent
}

// IsHardwareFailure reports whether this is a hardware failure alert.
func (r NotificationReport) IsHardwareFailure() bool {
	return r.Type == notificationTypeSystem && r.Event == notificationEventHardwareFailure
}

// SwitchColorReport carries the value of a single colour component.
// Target is present for version 3+ reports during a ramp; when present it
// is the value the component will settle at.
type SwitchColorReport struct {
	Component ColorComponent
	Value     byte
	Target    *byte
}

func (SwitchColorReport) reportKind() string { return "switch-color" }

// ReportedValue returns the value this component will settle at: the ramp
// target when one is present, the current value otherwise.
func (r SwitchColorReport) ReportedValue() byte {
	if r.Target != nil {
		return *r.Target
	}
	return r.Value
}

// CentralSceneNotification carries a scene-controller key press.
type CentralSceneNotification struct {
	Sequence     byte
	Scene        byte
	KeyAttribute byte
}

func (CentralSceneNotification) reportKind() string { return "central-scene" }

// MeterReport carries an electrical meter reading.
type MeterReport struct {
	MeterType byte
	Scale     byte
	Precision byte
	Value     float64
}

func (MeterReport) reportKind() string { return "meter" }

// UnrecognizedReport is the catch-all for classes or commands outside the
// supported grammar. It carries the raw bytes for diagnostics.
type UnrecognizedReport struct {
	Class   byte
	Command byte
	Payload []byte
}

func (UnrecognizedReport) reportKind() string { return "unrecognized" }

// DecodeFrame decodes an inbound frame into a typed report.
//
// Unknown classes or commands decode to UnrecognizedReport without error
// (forward compatibility: ignore unknown, log for diagnostics). An error is
// returned only for frames too short to carry their declared structure.
//
// Parameters:
//   - data: Raw frame bytes from the gateway (already decrypted and routed)
//
// Returns:
//   - Report: One of the closed variant set
//   - error: ErrInvalidFrame if the frame is truncated
func DecodeFrame(data []byte) (Report, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: too short (%d bytes, need at least 2)", ErrInvalidFrame, len(data))
	}

	class, command := data[0], data[1]
	payload := data[2:]

	switch class {
	case ClassVersion:
		if command == cmdVersionReport {
			return decodeVersionReport(payload)
		}
	case ClassConfiguration:
		if command == cmdConfigurationReport {
			return decodeConfigurationReport(payload)
		}
	case ClassAssociation:
		if command == cmdAssociationReport {
			return decodeAssociationReport(payload)
		}
	case ClassSwitchMultilevel:
		if command == cmdSwitchMultilevelReport {
			return decodeSwitchLevelReport(payload)
		}
	case ClassSensorMultilevel:
		if command == cmdSensorMultilevelReport {
			return decodeSensorReport(payload)
		}
	case ClassMultiChannel:
		if command == cmdMultiChannelEncap {
			return decodeMultiChannelEncap(payload)
		}
	case ClassNotification:
		if command == cmdNotificationReport {
			return decodeNotificationReport(payload)
		}
	case ClassSwitchColor:
		if command == cmdSwitchColorReport {
			return decodeSwitchColorReport(payload)
		}
	case ClassCentralScene:
		if command == cmdCentralSceneNotification {
			return decodeCentralSceneNotification(payload)
		}
	case ClassMeter:
		if command == cmdMeterReport {
			return decodeMeterReport(payload)
		}
	}

	return UnrecognizedReport{Class: class, Command: command, Payload: payload}, nil
}

func decodeVersionReport(p []byte) (Report, error) {
	if len(p) < 5 {
		return nil, fmt.Errorf("%w: version report requires 5 bytes, got %d", ErrInvalidFrame, len(p))
	}
	return VersionReport{
		LibraryType:     p[0],
		ProtocolVersion: fmt.Sprintf("%d.%d", p[1], p[2]),
		Firmware:        float64(p[3]) + float64(p[4])/100,
	}, nil
}

func decodeConfigurationReport(p []byte) (Report, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: configuration report requires 2 bytes, got %d", ErrInvalidFrame, len(p))
	}
	size := p[1] & 0x07
	if len(p) < 2+int(size) {
		return nil, fmt.Errorf("%w: configuration report value truncated (size %d)", ErrInvalidFrame, size)
	}
	return ConfigurationReport{
		Parameter: p[0],
		Size:      size,
		Value:     decodeConfigValue(p[2 : 2+int(size)]),
	}, nil
}

func decodeAssociationReport(p []byte) (Report, error) {
	if len(p) < 3 {
		return nil, fmt.Errorf("%w: association report requires 3 bytes, got %d", ErrInvalidFrame, len(p))
	}
	nodes := make([]byte, len(p)-3)
	copy(nodes, p[3:])
	return AssociationReport{Group: p[0], MaxNodes: p[1], Nodes: nodes}, nil
}

func decodeSwitchLevelReport(p []byte) (Report, error) {
	if len(p) < 1 {
		return nil, fmt.Errorf("%w: switch level report requires 1 byte, got %d", ErrInvalidFrame, len(p))
	}
	rep := SwitchLevelReport{Value: p[0]}
	if len(p) >= 3 {
		target, duration := p[1], p[2]
		rep.Target = &target
		rep.Duration = &duration
	}
	return rep, nil
}

func decodeSensorReport(p []byte) (Report, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: sensor report requires 2 bytes, got %d", ErrInvalidFrame, len(p))
	}
	precision := p[1] >> 5
	scale := (p[1] >> 3) & 0x03
	size := p[1] & 0x07
	if len(p) < 2+int(size) {
		return nil, fmt.Errorf("%w: sensor report value truncated (size %d)", ErrInvalidFrame, size)
	}
	return SensorReport{
		SensorType: p[0],
		Scale:      scale,
		Precision:  precision,
		Value:      decodeScaledValue(p[2:2+int(size)], precision),
	}, nil
}

func decodeMultiChannelEncap(p []byte) (Report, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: multi-channel encapsulation requires 4 bytes, got %d", ErrInvalidFrame, len(p))
	}
	inner, err := DecodeFrame(p[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: encapsulated frame: %w", ErrInvalidFrame, err)
	}
	return MultiChannelEncap{
		SourceEndpoint: p[0] & 0x7F,
		DestEndpoint:   p[1] & 0x7F,
		Inner:          inner,
	}, nil
}

func decodeNotificationReport(p []byte) (Report, error) {
	if len(p) < 6 {
		return nil, fmt.Errorf("%w: notification report requires 6 bytes, got %d", ErrInvalidFrame, len(p))
	}
	return NotificationReport{
		V1AlarmType:  p[0],
		V1AlarmLevel: p[1],
		Type:         p[4],
		Event:        p[5],
	}, nil
}

func decodeSwitchColorReport(p []byte) (Report, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: colour report requires 2 bytes, got %d", ErrInvalidFrame, len(p))
	}
	rep := SwitchColorReport{Component: ColorComponent(p[0]), Value: p[1]}
	if len(p) >= 4 {
		target := p[2]
		rep.Target = &target
	}
	return rep, nil
}

func decodeCentralSceneNotification(p []byte) (Report, error) {
	if len(p) < 3 {
		return nil, fmt.Errorf("%w: central scene notification requires 3 bytes, got %d", ErrInvalidFrame, len(p))
	}
	return CentralSceneNotification{
		Sequence:     p[0],
		KeyAttribute: p[1] & 0x07,
		Scene:        p[2],
	}, nil
}

func decodeMeterReport(p []byte) (Report, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: meter report requires 2 bytes, got %d", ErrInvalidFrame, len(p))
	}
	meterType := p[0] & 0x1F
	scaleBit2 := (p[0] & 0x80) >> 5
	precision := p[1] >> 5
	scale := scaleBit2 | (p[1]>>3)&0x03
	size := p[1] & 0x07
	if len(p) < 2+int(size) {
		return nil, fmt.Errorf("%w: meter report value truncated (size %d)", ErrInvalidFrame, size)
	}
	return MeterReport{
		MeterType: meterType,
		Scale:     scale,
		Precision: precision,
		Value:     decodeScaledValue(p[2:2+int(size)], precision),
	}, nil
}

// decodeScaledValue decodes a big-endian signed integer and applies the
// decimal precision divisor shared by meter and sensor reports.
func decodeScaledValue(data []byte, precision byte) float64 {
	if len(data) == 0 {
		return 0
	}
	raw := int64(int8(data[0]))
	for _, b := range data[1:] {
		raw = raw<<8 | int64(b)
	}
	return float64(raw) / math.Pow10(int(precision))
}
