package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelemetry records a device telemetry snapshot.
//
// This is the primary method for persisting telemetry history. The write is
// non-blocking; points are batched and sent asynchronously, so a slow or
// unreachable InfluxDB never delays the hot path.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "mpsoc-01")
//   - fields: Numeric telemetry readings (e.g., "voltage_out", "power_W")
//   - capturedAt: The timestamp embedded in the device payload
//
// Example:
//
//	client.WriteTelemetry("mpsoc-01",
//	    map[string]float64{"voltage_out": 11.98, "temperature_C": 45.2},
//	    capturedAt)
func (c *Client) WriteTelemetry(deviceID string, fields map[string]float64, capturedAt time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	pointFields := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		pointFields[name] = value
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"device_id": deviceID,
		},
		pointFields,
		capturedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandOutcome records the result of a dispatched command.
//
// Used for tracking round-trip latency and failure rates per device
// and action.
//
// Parameters:
//   - deviceID: Device identifier
//   - action: Command action (e.g., "SET_CONTROL_TARGET")
//   - status: Terminal status ("success", "failure", "timeout")
//   - latency: Time from dispatch to resolution
func (c *Client) WriteCommandOutcome(deviceID, action, status string, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_outcome",
		map[string]string{
			"device_id": deviceID,
			"action":    action,
			"status":    status,
		},
		map[string]interface{}{
			"latency_ms": float64(latency.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
