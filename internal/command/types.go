package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the terminal outcome of a dispatched command.
type Status string

// Terminal command statuses.
const (
	// StatusSuccess means the device executed the command and reported success.
	StatusSuccess Status = "success"

	// StatusFailure means the device responded but reported an error.
	StatusFailure Status = "failure"

	// StatusTimeout means no response arrived before the deadline.
	StatusTimeout Status = "timeout"
)

// Wire status values reported by device firmware.
const (
	wireStatusSuccess = "SUCCESS"
)

// Request describes a command an agent wants executed on a device.
type Request struct {
	// DeviceID is the target device.
	DeviceID string

	// Action is the command verb (e.g., "SET_CONTROL_TARGET",
	// "GET_DEVICE_STATUS"). Actions are opaque to the gateway; it routes
	// them without interpreting the semantics.
	Action string

	// Payload carries action-specific arguments
	// (e.g., {"targetVoltage": 12.5, "slewRate": 0.1}).
	Payload map[string]any

	// Timeout bounds the wait for a device response. Zero selects the
	// configured default; values above the configured maximum are clamped.
	Timeout time.Duration
}

// Command is the wire message published to a device's command topic.
type Command struct {
	CommandID string         `json:"commandId"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload"`
}

// Response is the wire message a device publishes after executing a command.
type Response struct {
	CommandID string          `json:"commandId"`
	Status    string          `json:"status"` // "SUCCESS" or "ERROR"
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ParseResponse decodes a raw command-response payload.
//
// Returns ErrMalformedResponse if the payload is not valid JSON or carries
// no commandId (without one the response cannot be correlated).
func ParseResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if resp.CommandID == "" {
		return nil, fmt.Errorf("%w: missing commandId", ErrMalformedResponse)
	}
	return &resp, nil
}

// TerminalStatus maps the firmware wire status to the gateway taxonomy.
// Anything other than SUCCESS counts as a device-reported failure.
func (r *Response) TerminalStatus() Status {
	if strings.EqualFold(r.Status, wireStatusSuccess) {
		return StatusSuccess
	}
	return StatusFailure
}

// Result is the terminal outcome delivered to a waiting caller.
type Result struct {
	// CommandID is the correlation identifier assigned at dispatch.
	CommandID string `json:"commandId"`

	// DeviceID is the device the command was sent to.
	DeviceID string `json:"deviceId"`

	// Status is the terminal outcome.
	Status Status `json:"status"`

	// Message is the human-readable detail from the device, or a gateway
	// explanation for timeouts.
	Message string `json:"message,omitempty"`

	// Payload is the action-specific response body, if the device sent one.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Latency is the time from dispatch to resolution.
	Latency time.Duration `json:"-"`
}
