package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"
)

// Snapshot is one complete telemetry reading from a device.
//
// Snapshots are immutable once published to the cache: an update replaces
// the whole snapshot rather than patching fields, so a reader never sees
// voltage from one reading and current from another.
type Snapshot struct {
	// DeviceID identifies the reporting device.
	DeviceID string `json:"deviceId"`

	// Fields holds the numeric readings keyed by name
	// (e.g., "voltage_out", "current_in", "power_W", "temperature_C").
	Fields map[string]float64 `json:"fields"`

	// CapturedAt is the timestamp embedded in the device payload.
	// Zero when the payload carried no usable timestamp. Informational
	// only: freshness ordering uses ReceivedAt.
	CapturedAt time.Time `json:"capturedAt,omitempty"`

	// ReceivedAt is when the gateway received the reading.
	ReceivedAt time.Time `json:"receivedAt"`
}

// DeepCopy returns a copy of the snapshot with no shared mutable state.
func (s *Snapshot) DeepCopy() *Snapshot {
	copied := *s
	if s.Fields != nil {
		copied.Fields = make(map[string]float64, len(s.Fields))
		for k, v := range s.Fields {
			copied.Fields[k] = v
		}
	}
	return &copied
}

// ParseSnapshot decodes a raw telemetry payload into a Snapshot.
//
// The payload is a flat JSON object of numeric readings. A "timestamp"
// member is lifted into CapturedAt rather than Fields; it may be either
// epoch seconds (number) or RFC3339 (string). Non-numeric members other
// than the timestamp are ignored, so firmware can add diagnostic strings
// without breaking the gateway.
//
// Parameters:
//   - deviceID: Device the payload arrived from (taken from the topic)
//   - payload: Raw JSON payload
//   - receivedAt: Gateway arrival time
//
// Returns:
//   - *Snapshot: Parsed snapshot
//   - error: If the payload is not a JSON object or has no numeric fields
func ParseSnapshot(deviceID string, payload []byte, receivedAt time.Time) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	snap := &Snapshot{
		DeviceID:   deviceID,
		Fields:     make(map[string]float64, len(raw)),
		ReceivedAt: receivedAt,
	}

	for name, value := range raw {
		if name == "timestamp" {
			snap.CapturedAt = parseTimestamp(value)
			continue
		}

		var f float64
		if err := json.Unmarshal(value, &f); err != nil {
			continue // non-numeric diagnostic member
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		snap.Fields[name] = f
	}

	if len(snap.Fields) == 0 {
		return nil, fmt.Errorf("%w: no numeric fields", ErrMalformedPayload)
	}

	return snap, nil
}

// parseTimestamp accepts epoch seconds (number) or RFC3339 (string).
// Returns the zero time if the value is neither.
func parseTimestamp(value json.RawMessage) time.Time {
	var epoch float64
	if err := json.Unmarshal(value, &epoch); err == nil {
		if epoch <= 0 || math.IsNaN(epoch) || math.IsInf(epoch, 0) {
			return time.Time{}
		}
		sec, frac := math.Modf(epoch)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	}

	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// Cache holds the latest telemetry snapshot per device.
//
// Updates follow arrival order: the newest message to reach the gateway
// wins, regardless of any timestamp embedded in the payload. Device clocks
// on embedded boards drift and reset; the broker's delivery order is the
// only ordering the gateway trusts.
//
// All methods are safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewCache creates an empty telemetry cache.
func NewCache() *Cache {
	return &Cache{
		snapshots: make(map[string]*Snapshot),
	}
}

// Update replaces the stored snapshot for the device.
//
// The whole snapshot is swapped in one step; concurrent readers see either
// the complete old reading or the complete new one, never a blend.
func (c *Cache) Update(snap *Snapshot) {
	if snap == nil || snap.DeviceID == "" {
		return
	}

	stored := snap.DeepCopy()

	c.mu.Lock()
	c.snapshots[snap.DeviceID] = stored
	c.mu.Unlock()
}

// Get returns the latest snapshot for the device.
// Returns ErrNoTelemetry if the device has not reported yet.
// The returned snapshot is a deep copy; callers can safely modify it.
func (c *Cache) Get(deviceID string) (*Snapshot, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[deviceID]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNoTelemetry
	}
	return snap.DeepCopy(), nil
}

// Count returns the number of devices with cached telemetry.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
