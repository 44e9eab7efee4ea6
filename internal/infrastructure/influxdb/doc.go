// Package influxdb provides InfluxDB connectivity for WattMCP Core.
//
// It wraps the official influxdb-client-go v2 library with WattMCP-specific
// patterns for connection management, telemetry writing, and health monitoring.
//
// # Purpose
//
// The in-memory telemetry cache holds only the latest snapshot per device.
// This package persists the full history as time-series data:
//   - Device telemetry readings (voltage, current, power, temperature)
//   - Command outcomes (latency and terminal status per device/action)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "wattagent",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("mpsoc-01",
//	    map[string]float64{"voltage_out": 11.98}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
