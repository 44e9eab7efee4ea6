// Package telemetry caches the latest device readings for WattMCP Core.
//
// Devices stream telemetry continuously; agents read it on demand via the
// REST API. This package decouples the two rates: every inbound reading
// replaces the device's cached snapshot, and reads always return the most
// recently arrived complete snapshot without touching the broker.
//
// # Semantics
//
//   - Last-writer-wins by arrival order. Embedded device clocks are not
//     trusted for ordering; the payload timestamp is kept for reference only.
//   - Atomic replacement. A snapshot is swapped whole, so readers never see
//     fields from two different readings mixed together.
//   - Unknown devices simply have no snapshot (ErrNoTelemetry), which the
//     API layer maps to 404.
//
// # Usage
//
//	cache := telemetry.NewCache()
//
//	// On each inbound telemetry message:
//	snap, err := telemetry.ParseSnapshot(deviceID, payload, time.Now())
//	if err == nil {
//	    cache.Update(snap)
//	}
//
//	// Serving an API read:
//	snap, err := cache.Get("mpsoc-01")
package telemetry
