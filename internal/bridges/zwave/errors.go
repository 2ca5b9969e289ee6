package zwave

import "errors"

// Domain errors for the Z-Wave RGBW bridge package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to the gateway daemon.
	ErrNotConnected = errors.New("zwave: not connected to gateway")

	// ErrConnectionFailed is returned when the connection to the gateway fails.
	ErrConnectionFailed = errors.New("zwave: connection to gateway failed")

	// ErrInvalidFrame is returned when a received frame is malformed.
	ErrInvalidFrame = errors.New("zwave: invalid frame")

	// ErrDecodingFailed is returned when decoding an inbound report fails.
	ErrDecodingFailed = errors.New("zwave: decoding failed")

	// ErrEncodingFailed is returned when encoding a command fails.
	ErrEncodingFailed = errors.New("zwave: encoding failed")

	// ErrSendFailed is returned when sending a frame to the gateway fails.
	ErrSendFailed = errors.New("zwave: frame send failed")

	// ErrUnknownEffect is returned when an effect name or number is not in
	// the preset table.
	ErrUnknownEffect = errors.New("zwave: unknown effect")

	// ErrUnknownChannel is returned when a routing key has no mapped
	// logical channel.
	ErrUnknownChannel = errors.New("zwave: unknown channel")

	// ErrAssociationTooLarge is returned when an association node list
	// exceeds the group capacity.
	ErrAssociationTooLarge = errors.New("zwave: association list exceeds group capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("zwave: operation timed out")

	// ErrProtocolDesync is returned when the gateway stream framing is
	// corrupted and the connection must be re-established.
	ErrProtocolDesync = errors.New("zwave: gateway protocol desync")
)
