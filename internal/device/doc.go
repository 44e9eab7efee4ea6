// Package device provides the device registry for WattMCP Core.
//
// The registry answers two questions for the rest of the gateway:
// which devices exist, and which of them are currently alive.
//
// # Features
//
//   - Implicit registration: the first MQTT message observed on a device's
//     topic subtree creates its registry entry
//   - Derived liveness: a device is online iff it has been heard from within
//     the configured offline threshold; nothing is stored that can go stale
//   - Self-reported metadata: IP address, location, and electrical model
//     parameters arrive via status heartbeats and are merged into the entry
//   - Write-behind persistence: reads are always in-memory; a background
//     loop flushes changes to SQLite so metadata survives restarts
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo, 30*time.Second)
//	registry.SetLogger(logger)
//
//	if err := registry.Load(ctx); err != nil {
//	    return err
//	}
//	registry.Start(ctx)
//
//	// On every inbound message:
//	registry.RecordActivity("mpsoc-01", time.Now())
//
//	// Serving an API read:
//	devices := registry.List()
//	online := registry.IsOnline("mpsoc-01")
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package device
