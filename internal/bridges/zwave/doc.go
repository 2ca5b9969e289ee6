// Package zwave implements the Z-Wave RGBW bridge for Gray Logic.
//
// This package drives multi-channel RGBW lighting controllers on a Z-Wave
// mesh via a gateway daemon. It translates between Gray Logic's internal
// representation and command-class frames, and reconciles optimistic
// command state against the reports the devices send back.
//
// # Architecture
//
// The bridge operates as a translator between two buses:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │  Z-Wave Bridge  │   zwgd
//	│      Core       │◄────────►│   (this pkg)    │◄────────► Z-Wave Mesh
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Connect to the gateway daemon via Unix socket or TCP
//   - Encode high-level commands into command-class frames, each write
//     paired with a verification read
//   - Decode inbound frames and settle in-flight colour updates before
//     emitting derived state (hue, saturation, colour name, mode)
//   - Route per-channel commands and analog input readings through the
//     logical channel map
//   - Supervise preset effects and the flash oscillator
//   - Publish health status and persist device state
//
// # Command Pipeline
//
// Commands flow through the planner, which records speculative state
// (pending colour updates, transition targets), and reports flow through
// the reconciler, which confirms or corrects it. Events for a
// multi-component colour command are withheld until every touched
// component has settled, so consumers never observe a half-applied colour.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
// Per-device planner/reconciler state is serialised by the bridge.
//
// # References
//
//   - Z-Wave command class specification: https://www.silabs.com
//   - Gray Logic Z-Wave spec: docs/protocols/zwave.md
package zwave
