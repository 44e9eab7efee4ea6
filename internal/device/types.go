package device

import (
	"time"
)

// Device represents an edge power-electronics device known to the gateway.
//
// A device enters the registry either from persisted metadata loaded at
// startup or implicitly the first time any MQTT message arrives on its
// topic subtree. Liveness is never stored: it is derived from LastSeenAt
// at read time (see OnlineAt).
type Device struct {
	// ID is the unique device identifier, taken from the MQTT topic
	// (e.g., "mpsoc-01").
	ID string `json:"deviceId"`

	// IPAddress is the device's network address, self-reported via the
	// status heartbeat. Empty until the first heartbeat arrives.
	IPAddress string `json:"ipAddress,omitempty"`

	// GeoLocation is a free-form location string (e.g., "lab-2/rack-4").
	GeoLocation string `json:"geoLocation,omitempty"`

	// ModelParameters holds per-device electrical model constants
	// (e.g., "L_uH": 22.0, "C_uF": 470.0) used by agents for simulation.
	ModelParameters map[string]float64 `json:"modelParameters,omitempty"`

	// FirstSeenAt is when the gateway first observed this device.
	FirstSeenAt time.Time `json:"firstSeenAt"`

	// LastSeenAt is the arrival time of the most recent message from the
	// device on any of its topics (telemetry, status, or command response).
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// OnlineAt reports whether the device counts as online at the given instant.
//
// A device is online while the time since its last message is strictly less
// than the threshold; at exactly the threshold it is already offline. There
// is no stored online flag to go stale; a device that falls silent drops out
// of the online set the moment the threshold is reached.
func (d *Device) OnlineAt(now time.Time, threshold time.Duration) bool {
	if d.LastSeenAt.IsZero() {
		return false
	}
	return now.Sub(d.LastSeenAt) < threshold
}

// DeepCopy returns a copy of the device with no shared mutable state.
func (d *Device) DeepCopy() *Device {
	copied := *d
	if d.ModelParameters != nil {
		copied.ModelParameters = make(map[string]float64, len(d.ModelParameters))
		for k, v := range d.ModelParameters {
			copied.ModelParameters[k] = v
		}
	}
	return &copied
}

// Info carries the self-reported metadata from a device status heartbeat.
//
// Zero-valued fields are treated as "not reported" and leave the existing
// registry values untouched.
type Info struct {
	IPAddress       string
	GeoLocation     string
	ModelParameters map[string]float64
}
