package zwave

import "fmt"

// ChannelKind identifies the role of a logical channel.
type ChannelKind int

// Logical channel kinds. The colour aggregate spans the red, green, and
// blue components; analog channels map to sensor endpoints.
const (
	ChannelWhite ChannelKind = iota
	ChannelColor
	ChannelRed
	ChannelGreen
	ChannelBlue
	ChannelAnalog
)

// String returns the kind's channel name.
func (k ChannelKind) String() string {
	switch k {
	case ChannelWhite:
		return "white"
	case ChannelColor:
		return "color"
	case ChannelRed:
		return "red"
	case ChannelGreen:
		return "green"
	case ChannelBlue:
		return "blue"
	case ChannelAnalog:
		return "analog"
	default:
		return fmt.Sprintf("channel-%d", int(k))
	}
}

// LogicalChannel identifies one logical sub-device multiplexed over the
// physical link. The mapping is immutable and used purely for dispatch.
type LogicalChannel struct {
	Kind ChannelKind

	// Endpoint is the device endpoint for analog channels; 0 otherwise.
	Endpoint byte

	// Key is the routing key child consumers are addressed by.
	Key string
}

// ChannelRouter maps routing keys to logical channels and back. It is
// built once from configuration and read-only afterwards.
type ChannelRouter struct {
	byKey      map[string]LogicalChannel
	byEndpoint map[byte]LogicalChannel
	channels   []LogicalChannel
}

// NewChannelRouter builds a router for the colour/white channels plus the
// given analog sensor endpoints.
//
// Routing keys follow the channel names: "white", "color", "red", "green",
// "blue", and "analog-<endpoint>" for sensor inputs.
func NewChannelRouter(analogEndpoints []byte) *ChannelRouter {
	r := &ChannelRouter{
		byKey:      make(map[string]LogicalChannel),
		byEndpoint: make(map[byte]LogicalChannel),
	}

	for _, kind := range []ChannelKind{ChannelWhite, ChannelColor, ChannelRed, ChannelGreen, ChannelBlue} {
		r.add(LogicalChannel{Kind: kind, Key: kind.String()})
	}
	for _, ep := range analogEndpoints {
		r.add(LogicalChannel{
			Kind:     ChannelAnalog,
			Endpoint: ep,
			Key:      fmt.Sprintf("analog-%d", ep),
		})
	}

	return r
}

func (r *ChannelRouter) add(ch LogicalChannel) {
	r.byKey[ch.Key] = ch
	if ch.Endpoint > 0 {
		r.byEndpoint[ch.Endpoint] = ch
	}
	r.channels = append(r.channels, ch)
}

// ChannelForRoutingKey resolves a routing key to its logical channel.
//
// Returns:
//   - LogicalChannel: The mapped channel
//   - error: ErrUnknownChannel if the key has no mapping
func (r *ChannelRouter) ChannelForRoutingKey(key string) (LogicalChannel, error) {
	ch, ok := r.byKey[key]
	if !ok {
		return LogicalChannel{}, fmt.Errorf("%w: routing key %q", ErrUnknownChannel, key)
	}
	return ch, nil
}

// RoutingKeyForChannel returns the routing key for a logical channel.
func (r *ChannelRouter) RoutingKeyForChannel(ch LogicalChannel) string {
	return ch.Key
}

// ChannelForEndpoint resolves a device endpoint to its logical channel
// (analog sensor inputs only).
func (r *ChannelRouter) ChannelForEndpoint(endpoint byte) (LogicalChannel, bool) {
	ch, ok := r.byEndpoint[endpoint]
	return ch, ok
}

// Channels returns all mapped logical channels.
func (r *ChannelRouter) Channels() []LogicalChannel {
	return r.channels
}

// AnalogEndpoints returns the endpoints of all analog channels.
func (r *ChannelRouter) AnalogEndpoints() []byte {
	var eps []byte
	for _, ch := range r.channels {
		if ch.Kind == ChannelAnalog {
			eps = append(eps, ch.Endpoint)
		}
	}
	return eps
}

// ComponentsForChannel returns the colour components a channel controls.
// Analog channels control no components.
func ComponentsForChannel(kind ChannelKind) []ColorComponent {
	switch kind {
	case ChannelWhite:
		return []ColorComponent{ComponentWarmWhite}
	case ChannelColor:
		return []ColorComponent{ComponentRed, ComponentGreen, ComponentBlue}
	case ChannelRed:
		return []ColorComponent{ComponentRed}
	case ChannelGreen:
		return []ColorComponent{ComponentGreen}
	case ChannelBlue:
		return []ColorComponent{ComponentBlue}
	default:
		return nil
	}
}

// channelKindForComponent returns the single-component channel kind for a
// colour component.
func channelKindForComponent(c ColorComponent) ChannelKind {
	switch c {
	case ComponentRed:
		return ChannelRed
	case ComponentGreen:
		return ChannelGreen
	case ComponentBlue:
		return ChannelBlue
	default:
		return ChannelWhite
	}
}
