// Package command implements the command/telemetry correlation engine at
// the heart of WattMCP Core.
//
// AI agents speak synchronous request/response over REST; edge devices
// speak asynchronous pub/sub over MQTT. This package bridges the two: a
// dispatched command registers a pending entry keyed by a generated
// command ID, the command is published to the device's topic, and the
// caller blocks on the entry until the device's response is correlated
// back by that ID, the deadline passes, or the caller gives up.
//
// # Ordering Guarantees
//
//   - The pending entry is registered before the command is published, so
//     a response can never arrive ahead of its own entry.
//   - Each entry resolves exactly once. Response, reaper, and cancellation
//     race on an atomic compare-and-swap; the losers become counted events
//     (duplicate, unmatched) instead of double-completions.
//   - Responses correlate purely by command ID and are verified against
//     the target device ID; arrival order across commands is irrelevant,
//     so interleaved and reordered responses resolve correctly.
//
// # Failure Taxonomy
//
//   - ErrDispatchFailed: the broker publish failed; the device never saw
//     the command and the caller learns immediately.
//   - ErrTimeout: no response before the deadline (or the caller
//     cancelled); the entry is removed so a late response is unmatched.
//   - Unmatched / mismatched / duplicate responses: counted in Metrics,
//     logged, and dropped. None of them are errors for any caller.
//
// # Usage
//
//	engine, err := command.New(command.Deps{
//	    Channel:   channel,
//	    Registry:  registry,
//	    Telemetry: cache,
//	    Topics:    topics,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//
//	result, err := engine.DispatchAndWait(ctx, command.Request{
//	    DeviceID: "mpsoc-01",
//	    Action:   "SET_CONTROL_TARGET",
//	    Payload:  map[string]any{"targetVoltage": 12.5, "slewRate": 0.1},
//	    Timeout:  5 * time.Second,
//	})
package command
