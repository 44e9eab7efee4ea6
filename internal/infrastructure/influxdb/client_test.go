package influxdb

import (
	"errors"
	"testing"
	"time"

	"github.com/wattagent/wattmcp-core/internal/infrastructure/config"
)

// Tests here cover behaviour that does not require a running InfluxDB
// instance. Write round-trips are exercised by the integration suite.

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-dependent test in short mode")
	}

	cfg := config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:19086", // nothing listening here
		Token:   "test-token",
		Org:     "wattagent",
		Bucket:  "telemetry",
	}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestFlushDisconnected(t *testing.T) {
	client := &Client{}
	// Must not panic with a nil write API.
	client.Flush()
}

func TestWriteTelemetryDisconnected(t *testing.T) {
	client := &Client{}
	// Writes on a disconnected client are dropped silently.
	client.WriteTelemetry("mpsoc-01", map[string]float64{"voltage_out": 12.0}, time.Now())
}

func TestSetOnError(t *testing.T) {
	client := &Client{}
	client.SetOnError(func(error) {})

	client.mu.RLock()
	defer client.mu.RUnlock()
	if client.onError == nil {
		t.Error("SetOnError() did not store callback")
	}
}
