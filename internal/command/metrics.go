package command

import "sync/atomic"

// Metrics counts correlation-engine events.
//
// All counters are monotonic and updated lock-free on the message hot path.
// Use Snapshot to read a consistent-enough copy for reporting.
type Metrics struct {
	// Dispatched counts commands accepted and published.
	Dispatched atomic.Uint64

	// Succeeded counts commands resolved with a device-reported success.
	Succeeded atomic.Uint64

	// Failed counts commands resolved with a device-reported error.
	Failed atomic.Uint64

	// TimedOut counts commands resolved by the timeout reaper or caller
	// cancellation.
	TimedOut atomic.Uint64

	// DispatchFailures counts commands that never reached the broker.
	DispatchFailures atomic.Uint64

	// UnmatchedResponses counts responses with no pending entry: late
	// arrivals after a timeout, retransmits after resolution, or IDs the
	// gateway never issued.
	UnmatchedResponses atomic.Uint64

	// MismatchedResponses counts responses whose command ID is pending
	// but whose topic names a different device than the command targeted.
	MismatchedResponses atomic.Uint64

	// DuplicateResponses counts resolution attempts that lost the CAS race
	// because the entry was already resolved.
	DuplicateResponses atomic.Uint64

	// TelemetryMessages counts telemetry payloads accepted into the cache.
	TelemetryMessages atomic.Uint64

	// StatusMessages counts device heartbeats processed.
	StatusMessages atomic.Uint64

	// MalformedMessages counts inbound payloads dropped as unparseable.
	MalformedMessages atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Dispatched          uint64 `json:"dispatched"`
	Succeeded           uint64 `json:"succeeded"`
	Failed              uint64 `json:"failed"`
	TimedOut            uint64 `json:"timedOut"`
	DispatchFailures    uint64 `json:"dispatchFailures"`
	UnmatchedResponses  uint64 `json:"unmatchedResponses"`
	MismatchedResponses uint64 `json:"mismatchedResponses"`
	DuplicateResponses  uint64 `json:"duplicateResponses"`
	TelemetryMessages   uint64 `json:"telemetryMessages"`
	StatusMessages      uint64 `json:"statusMessages"`
	MalformedMessages   uint64 `json:"malformedMessages"`
	Pending             int    `json:"pending"`
}

// Snapshot returns a copy of all counters.
// Pending is filled in by the engine, which owns the table.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Dispatched:          m.Dispatched.Load(),
		Succeeded:           m.Succeeded.Load(),
		Failed:              m.Failed.Load(),
		TimedOut:            m.TimedOut.Load(),
		DispatchFailures:    m.DispatchFailures.Load(),
		UnmatchedResponses:  m.UnmatchedResponses.Load(),
		MismatchedResponses: m.MismatchedResponses.Load(),
		DuplicateResponses:  m.DuplicateResponses.Load(),
		TelemetryMessages:   m.TelemetryMessages.Load(),
		StatusMessages:      m.StatusMessages.Load(),
		MalformedMessages:   m.MalformedMessages.Load(),
	}
}
