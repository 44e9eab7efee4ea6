package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of the WattAgent topic hierarchy.
// It can be overridden via gateway.topic_prefix in config.yaml.
const DefaultTopicPrefix = "wattagent"

// Topic leaf segments under a device subtree.
const (
	segmentDevice          = "device"
	segmentServer          = "server"
	segmentTelemetry       = "telemetry"
	segmentStatus          = "status"
	segmentCommand         = "command"
	segmentResponse        = "response"
	segmentCommandResponse = segmentCommand + "/" + segmentResponse
)

// Topics provides builders for WattAgent MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// The zero value uses DefaultTopicPrefix:
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("mpsoc-01")
//	// Returns: "wattagent/device/mpsoc-01/command"
type Topics struct {
	// Prefix overrides the topic hierarchy root. Empty means DefaultTopicPrefix.
	Prefix string
}

// prefix returns the effective hierarchy root.
func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceTelemetry returns the topic a device publishes telemetry readings to.
//
// Example: wattagent/device/mpsoc-01/telemetry
func (t Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.prefix(), segmentDevice, deviceID, segmentTelemetry)
}

// DeviceStatus returns the topic a device publishes liveness heartbeats to.
//
// Example: wattagent/device/mpsoc-01/status
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.prefix(), segmentDevice, deviceID, segmentStatus)
}

// DeviceCommand returns the topic the gateway publishes commands to.
//
// Example: wattagent/device/mpsoc-01/command
func (t Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.prefix(), segmentDevice, deviceID, segmentCommand)
}

// DeviceCommandResponse returns the topic a device publishes command
// responses to.
//
// Example: wattagent/device/mpsoc-01/command/response
func (t Topics) DeviceCommandResponse(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.prefix(), segmentDevice, deviceID, segmentCommandResponse)
}

// =============================================================================
// Server Topics
// =============================================================================

// ServerStatus returns the topic for gateway online/offline status.
// Used for the LWT and retained status messages.
//
// Example: wattagent/server/status
func (t Topics) ServerStatus() string {
	return fmt.Sprintf("%s/%s/%s", t.prefix(), segmentServer, segmentStatus)
}

// =============================================================================
// Wildcard Subscription Patterns
// =============================================================================

// AllDeviceTelemetry returns the wildcard pattern matching telemetry from
// every device.
//
// Example: wattagent/device/+/telemetry
func (t Topics) AllDeviceTelemetry() string {
	return fmt.Sprintf("%s/%s/+/%s", t.prefix(), segmentDevice, segmentTelemetry)
}

// AllDeviceStatus returns the wildcard pattern matching heartbeats from
// every device.
//
// Example: wattagent/device/+/status
func (t Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/%s/+/%s", t.prefix(), segmentDevice, segmentStatus)
}

// AllDeviceCommandResponses returns the wildcard pattern matching command
// responses from every device.
//
// Example: wattagent/device/+/command/response
func (t Topics) AllDeviceCommandResponses() string {
	return fmt.Sprintf("%s/%s/+/%s", t.prefix(), segmentDevice, segmentCommandResponse)
}

// AllDeviceTopics returns the pattern matching the entire device subtree.
//
// Example: wattagent/device/#
func (t Topics) AllDeviceTopics() string {
	return fmt.Sprintf("%s/%s/#", t.prefix(), segmentDevice)
}

// =============================================================================
// Topic Parsing
// =============================================================================

// MessageKind identifies which leaf of the device subtree a topic addresses.
type MessageKind int

// Device message kinds, in the order they appear in the topic hierarchy docs.
const (
	KindUnknown MessageKind = iota
	KindTelemetry
	KindStatus
	KindCommand
	KindCommandResponse
)

// String returns the topic leaf name for the kind.
func (k MessageKind) String() string {
	switch k {
	case KindTelemetry:
		return segmentTelemetry
	case KindStatus:
		return segmentStatus
	case KindCommand:
		return segmentCommand
	case KindCommandResponse:
		return segmentCommandResponse
	default:
		return "unknown"
	}
}

// ParseDeviceTopic extracts the device ID and message kind from a topic in
// the device subtree.
//
// Recognised shapes:
//
//	{prefix}/device/{id}/telemetry
//	{prefix}/device/{id}/status
//	{prefix}/device/{id}/command
//	{prefix}/device/{id}/command/response
//
// Parameters:
//   - topic: The full topic string as received from the broker
//
// Returns:
//   - string: The device ID segment
//   - MessageKind: The message kind for the leaf
//   - error: ErrUnrecognisedTopic if the topic does not match any shape
func (t Topics) ParseDeviceTopic(topic string) (string, MessageKind, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != t.prefix() || parts[1] != segmentDevice {
		return "", KindUnknown, fmt.Errorf("%w: %q", ErrUnrecognisedTopic, topic)
	}

	deviceID := parts[2]
	if deviceID == "" {
		return "", KindUnknown, fmt.Errorf("%w: empty device id in %q", ErrUnrecognisedTopic, topic)
	}

	switch {
	case len(parts) == 4 && parts[3] == segmentTelemetry:
		return deviceID, KindTelemetry, nil
	case len(parts) == 4 && parts[3] == segmentStatus:
		return deviceID, KindStatus, nil
	case len(parts) == 4 && parts[3] == segmentCommand:
		return deviceID, KindCommand, nil
	case len(parts) == 5 && parts[3] == segmentCommand && parts[4] == segmentResponse:
		return deviceID, KindCommandResponse, nil
	default:
		return "", KindUnknown, fmt.Errorf("%w: %q", ErrUnrecognisedTopic, topic)
	}
}
