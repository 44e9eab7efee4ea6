package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrNoTelemetry is returned when a device has not reported any telemetry yet.
	ErrNoTelemetry = errors.New("telemetry: no data for device")

	// ErrMalformedPayload is returned when a telemetry payload cannot be parsed.
	ErrMalformedPayload = errors.New("telemetry: malformed payload")
)
