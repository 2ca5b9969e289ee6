package zwave

import "fmt"

// Command class identifiers for the lighting/metering/sensor subset this
// bridge speaks. Anything outside this set is passed through as opaque.
const (
	ClassSwitchBinary     byte = 0x25
	ClassSwitchMultilevel byte = 0x26
	ClassSensorMultilevel byte = 0x31
	ClassMeter            byte = 0x32
	ClassSwitchColor      byte = 0x33
	ClassCentralScene     byte = 0x5B
	ClassMultiChannel     byte = 0x60
	ClassConfiguration    byte = 0x70
	ClassNotification     byte = 0x71
	ClassAssociation      byte = 0x85
	ClassVersion          byte = 0x86
)

// Command identifiers within each class.
const (
	cmdSwitchBinarySet byte = 0x01
	cmdSwitchBinaryGet byte = 0x02

	cmdSwitchMultilevelSet         byte = 0x01
	cmdSwitchMultilevelGet         byte = 0x02
	cmdSwitchMultilevelReport      byte = 0x03
	cmdSwitchMultilevelStartChange byte = 0x04
	cmdSwitchMultilevelStopChange  byte = 0x05

	cmdSensorMultilevelGet    byte = 0x04
	cmdSensorMultilevelReport byte = 0x05

	cmdMeterGet    byte = 0x01
	cmdMeterReport byte = 0x02

	cmdSwitchColorGet    byte = 0x03
	cmdSwitchColorReport byte = 0x04
	cmdSwitchColorSet    byte = 0x05

	cmdCentralSceneNotification byte = 0x03

	cmdMultiChannelEncap byte = 0x0D

	cmdConfigurationSet    byte = 0x04
	cmdConfigurationGet    byte = 0x05
	cmdConfigurationReport byte = 0x06

	cmdNotificationGet    byte = 0x04
	cmdNotificationReport byte = 0x05

	cmdAssociationSet    byte = 0x01
	cmdAssociationGet    byte = 0x02
	cmdAssociationReport byte = 0x03
	cmdAssociationRemove byte = 0x04

	cmdVersionGet    byte = 0x11
	cmdVersionReport byte = 0x12
)

// commandClassVersions is the fixed command-class version table. It selects
// the decode grammar for inbound reports and documents the dialect we emit.
var commandClassVersions = map[byte]byte{
	ClassSwitchBinary:     1,
	ClassSwitchMultilevel: 3,
	ClassSensorMultilevel: 5,
	ClassMeter:            3,
	ClassSwitchColor:      3,
	ClassCentralScene:     3,
	ClassMultiChannel:     3,
	ClassConfiguration:    1,
	ClassNotification:     3,
	ClassAssociation:      2,
	ClassVersion:          2,
}

// CommandClassVersion returns the version this bridge speaks for a class,
// or 0 if the class is unsupported.
func CommandClassVersion(class byte) byte {
	return commandClassVersions[class]
}

// ColorComponent identifies one physical colour channel on the wire.
type ColorComponent byte

// Colour component identifiers.
const (
	ComponentWarmWhite ColorComponent = 0
	ComponentRed       ColorComponent = 2
	ComponentGreen     ColorComponent = 3
	ComponentBlue      ColorComponent = 4
)

// colorComponentNames maps component identifiers to their names.
var colorComponentNames = map[ColorComponent]string{
	ComponentWarmWhite: "white",
	ComponentRed:       "red",
	ComponentGreen:     "green",
	ComponentBlue:      "blue",
}

// String returns the component's channel name.
func (c ColorComponent) String() string {
	if name, ok := colorComponentNames[c]; ok {
		return name
	}
	return fmt.Sprintf("component-%d", byte(c))
}

// Frame is one complete encoded command ready for the gateway, possibly
// endpoint-wrapped. Security wrapping is applied by the gateway daemon.
type Frame []byte

// Command is a typed outbound command payload.
//
// Implementations encode themselves to class+command+parameter bytes;
// endpoint wrapping is applied uniformly by EncodeFrame.
type Command interface {
	encode() []byte
}

// AssociationSet adds nodes to an association group.
type AssociationSet struct {
	Group byte
	Nodes []byte
}

func (c AssociationSet) encode() []byte {
	return append([]byte{ClassAssociation, cmdAssociationSet, c.Group}, c.Nodes...)
}

// AssociationGet requests the membership of an association group.
type AssociationGet struct {
	Group byte
}

func (c AssociationGet) encode() []byte {
	return []byte{ClassAssociation, cmdAssociationGet, c.Group}
}

// AssociationRemove removes nodes from an association group. An empty node
// list clears the whole group.
type AssociationRemove struct {
	Group byte
	Nodes []byte
}

func (c AssociationRemove) encode() []byte {
	return append([]byte{ClassAssociation, cmdAssociationRemove, c.Group}, c.Nodes...)
}

// VersionGet requests firmware and protocol version information.
type VersionGet struct{}

func (VersionGet) encode() []byte {
	return []byte{ClassVersion, cmdVersionGet}
}

// SwitchBinarySet turns the switch fully on or off.
type SwitchBinarySet struct {
	On bool
}

func (c SwitchBinarySet) encode() []byte {
	value := byte(0x00)
	if c.On {
		value = 0xFF
	}
	return []byte{ClassSwitchBinary, cmdSwitchBinarySet, value}
}

// SwitchBinaryGet requests the binary switch state.
type SwitchBinaryGet struct{}

func (SwitchBinaryGet) encode() []byte {
	return []byte{ClassSwitchBinary, cmdSwitchBinaryGet}
}

// SwitchMultilevelSet sets the dimmer level (0-99) with a ramp duration.
type SwitchMultilevelSet struct {
	Level    byte
	Duration byte
}

func (c SwitchMultilevelSet) encode() []byte {
	return []byte{ClassSwitchMultilevel, cmdSwitchMultilevelSet, c.Level, c.Duration}
}

// SwitchMultilevelGet requests the dimmer level.
type SwitchMultilevelGet struct{}

func (SwitchMultilevelGet) encode() []byte {
	return []byte{ClassSwitchMultilevel, cmdSwitchMultilevelGet}
}

// SwitchMultilevelStartChange begins a continuous level ramp.
type SwitchMultilevelStartChange struct {
	Up       bool
	Duration byte
}

func (c SwitchMultilevelStartChange) encode() []byte {
	// Bit 6 of the first parameter byte selects the direction (1 = down).
	var direction byte
	if !c.Up {
		direction = 0x40
	}
	return []byte{ClassSwitchMultilevel, cmdSwitchMultilevelStartChange, direction, 0x00, c.Duration}
}

// SwitchMultilevelStopChange halts a continuous level ramp.
type SwitchMultilevelStopChange struct{}

func (SwitchMultilevelStopChange) encode() []byte {
	return []byte{ClassSwitchMultilevel, cmdSwitchMultilevelStopChange}
}

// ColorComponentValue pairs a colour component with a target value.
type ColorComponentValue struct {
	Component ColorComponent
	Value     byte
}

// SwitchColorSet sets one or more colour components in a single command.
type SwitchColorSet struct {
	Components []ColorComponentValue
	Duration   byte
}

func (c SwitchColorSet) encode() []byte {
	// Count lives in the low 5 bits of the first parameter byte.
	buf := make([]byte, 0, 4+2*len(c.Components))
	buf = append(buf, ClassSwitchColor, cmdSwitchColorSet, byte(len(c.Components))&0x1F)
	for _, cv := range c.Components {
		buf = append(buf, byte(cv.Component), cv.Value)
	}
	return append(buf, c.Duration)
}

// SwitchColorGet requests the value of a single colour component.
type SwitchColorGet struct {
	Component ColorComponent
}

func (c SwitchColorGet) encode() []byte {
	return []byte{ClassSwitchColor, cmdSwitchColorGet, byte(c.Component)}
}

// ConfigurationSet writes a configuration parameter value.
//
// Value is the unsigned parameter value (0..256^Size-1); it is transmitted
// as a signed two's-complement integer of Size bytes.
type ConfigurationSet struct {
	Parameter byte
	Size      byte
	Value     int64
}

func (c ConfigurationSet) encode() []byte {
	buf := []byte{ClassConfiguration, cmdConfigurationSet, c.Parameter, c.Size}
	return append(buf, encodeConfigValue(c.Value, c.Size)...)
}

// ConfigurationGet requests a configuration parameter value.
type ConfigurationGet struct {
	Parameter byte
}

func (c ConfigurationGet) encode() []byte {
	return []byte{ClassConfiguration, cmdConfigurationGet, c.Parameter}
}

// MeterGet requests a meter reading on the given scale.
type MeterGet struct {
	Scale byte
}

func (c MeterGet) encode() []byte {
	// Scale occupies bits 3-4 of the parameter byte.
	return []byte{ClassMeter, cmdMeterGet, (c.Scale & 0x03) << 3}
}

// NotificationGet requests the status of a notification type.
type NotificationGet struct {
	Type byte
}

func (c NotificationGet) encode() []byte {
	return []byte{ClassNotification, cmdNotificationGet, 0x00, c.Type, 0x00}
}

// SensorGet requests a multilevel sensor reading.
type SensorGet struct {
	SensorType byte
}

func (c SensorGet) encode() []byte {
	return []byte{ClassSensorMultilevel, cmdSensorMultilevelGet, c.SensorType, 0x00}
}

// EncodeFrame encodes a typed command into a wire frame for the given
// destination endpoint.
//
// Endpoint 0 addresses the root device and the payload is emitted bare —
// adding an encapsulation envelope for endpoint 0 would break framing
// compatibility, so it is omitted, not just optional. Endpoints > 0 are
// wrapped in a Multi Channel encapsulation carrying the destination.
//
// Parameters:
//   - cmd: Typed command to encode
//   - endpoint: Destination endpoint (0 = root device)
//
// Returns:
//   - Frame: Encoded frame ready for the gateway
func EncodeFrame(cmd Command, endpoint byte) Frame {
	payload := cmd.encode()
	if endpoint == 0 {
		return Frame(payload)
	}

	buf := make([]byte, 0, 4+len(payload))
	buf = append(buf, ClassMultiChannel, cmdMultiChannelEncap, 0x00, endpoint)
	return Frame(append(buf, payload...))
}

// ConfigValueToSigned converts an unsigned parameter value (0..256^size-1)
// to the signed two's-complement integer transmitted on the wire: values at
// or above half-range have 2^(8*size) subtracted.
func ConfigValueToSigned(value int64, size byte) int64 {
	rangeSize := int64(1) << (8 * uint(size))
	if value >= rangeSize/2 {
		return value - rangeSize
	}
	return value
}

// SignedToConfigValue converts a signed two's-complement wire integer back
// to the unsigned parameter value: negative values have 2^(8*size) added.
func SignedToConfigValue(signed int64, size byte) int64 {
	if signed < 0 {
		return signed + int64(1)<<(8*uint(size))
	}
	return signed
}

// encodeConfigValue converts an unsigned parameter value to its signed
// two's-complement wire bytes (big-endian).
func encodeConfigValue(value int64, size byte) []byte {
	signed := ConfigValueToSigned(value, size)
	buf := make([]byte, size)
	for i := int(size) - 1; i >= 0; i-- {
		buf[i] = byte(signed & 0xFF)
		signed >>= 8
	}
	return buf
}

// decodeConfigValue converts two's-complement wire bytes back to the
// unsigned parameter value.
func decodeConfigValue(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}
	signed := int64(int8(data[0])) // sign-extend from the leading byte
	for _, b := range data[1:] {
		signed = signed<<8 | int64(b)
	}
	return SignedToConfigValue(signed, byte(len(data)))
}
