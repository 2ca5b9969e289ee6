// Package device persists Z-Wave device state across daemon restarts.
//
// The bridge keeps an in-memory model of each RGBW dimmer (colour
// components, dimming level, restore targets). This package stores that
// model as a JSON snapshot in SQLite so a restarted daemon can resume
// with the device's last known state instead of assuming everything is
// off.
//
// Usage:
//
//	store := device.NewStore(db)
//	err := store.SaveDeviceState(ctx, "light.living_room", snap)
//	snap, ok, err := store.LoadDeviceState(ctx, "light.living_room")
//
// Corrupt snapshots (failed JSON decode) are cleared on load and treated
// as absent, so a damaged database never blocks startup.
package device
