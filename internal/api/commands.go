package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wattagent/wattmcp-core/internal/command"
)

// dispatchRequest is the POST /devices/{id}/command body.
type dispatchRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`

	// TimeoutSeconds bounds the wait for the device response. Zero selects
	// the gateway default; the configured maximum caps it.
	TimeoutSeconds float64 `json:"timeoutSeconds,omitempty"`
}

// handleDispatchCommand publishes a command to a device.
//
// By default the request blocks until the device responds or the command
// times out, returning the terminal result. With ?wait=false the gateway
// returns 202 immediately with the command ID, which can be polled via
// GET /devices/{id}/command/{commandID}.
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}
	if body.TimeoutSeconds < 0 {
		writeBadRequest(w, "timeoutSeconds must not be negative")
		return
	}

	req := command.Request{
		DeviceID: id,
		Action:   body.Action,
		Payload:  body.Payload,
		Timeout:  time.Duration(body.TimeoutSeconds * float64(time.Second)),
	}

	if r.URL.Query().Get("wait") == "false" {
		commandID, err := s.engine.Dispatch(req)
		if err != nil {
			s.writeDispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"commandId": commandID,
			"deviceId":  id,
			"status":    "pending",
		})
		return
	}

	result, err := s.engine.DispatchAndWait(r.Context(), req)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	// A device-reported failure still completed the round-trip: the device
	// answered, it just said no. That is a 200 with status "failure".
	writeJSON(w, http.StatusOK, result)
}

// handleGetCommandResult returns the recorded outcome of a dispatched command.
func (s *Server) handleGetCommandResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	commandID := chi.URLParam(r, "commandID")

	result, err := s.engine.GetResult(commandID)
	if err != nil {
		if errors.Is(err, command.ErrCommandNotFound) {
			writeNotFound(w, "command not found or still pending")
			return
		}
		writeInternalError(w, "failed to get command result")
		return
	}
	if result.DeviceID != id {
		// The command exists but belongs to another device's URL space.
		writeNotFound(w, "command not found for this device")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeDispatchError maps dispatch failures to HTTP status codes.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, command.ErrTimeout):
		writeGatewayTimeout(w, err.Error())
	case errors.Is(err, command.ErrDispatchFailed):
		writeBadGateway(w, err.Error())
	case errors.Is(err, command.ErrDeviceIDRequired), errors.Is(err, command.ErrActionRequired):
		writeBadRequest(w, err.Error())
	case errors.Is(err, command.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "gateway shutting down")
	default:
		writeInternalError(w, "command dispatch failed")
	}
}
