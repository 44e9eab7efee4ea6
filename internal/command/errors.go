package command

import "errors"

// Domain errors for the command package.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, command.ErrTimeout) {
//	    // map to 504
//	}
var (
	// ErrDeviceIDRequired is returned when a request has no device ID.
	ErrDeviceIDRequired = errors.New("command: device id required")

	// ErrActionRequired is returned when a request has no action.
	ErrActionRequired = errors.New("command: action required")

	// ErrDispatchFailed is returned when the command could not be handed
	// to the broker. The device never saw the command; no response will
	// ever arrive, so the caller gets told immediately instead of waiting
	// out a timeout.
	ErrDispatchFailed = errors.New("command: dispatch failed")

	// ErrTimeout is returned when no device response arrived before the
	// command deadline.
	ErrTimeout = errors.New("command: timed out waiting for response")

	// ErrDuplicateCommandID is returned when inserting a pending entry
	// whose command ID is already tracked.
	ErrDuplicateCommandID = errors.New("command: duplicate command id")

	// ErrMalformedResponse is returned when a device response payload
	// cannot be parsed or correlated.
	ErrMalformedResponse = errors.New("command: malformed response")

	// ErrCommandNotFound is returned when polling a command ID with no
	// recorded outcome.
	ErrCommandNotFound = errors.New("command: not found")

	// ErrEngineClosed is returned when dispatching after shutdown began.
	ErrEngineClosed = errors.New("command: engine closed")
)
