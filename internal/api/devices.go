package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wattagent/wattmcp-core/internal/device"
	"github.com/wattagent/wattmcp-core/internal/telemetry"
)

// deviceView is a registry entry decorated with derived liveness. Online is
// computed at read time from lastSeenAt; no stored flag can go stale.
type deviceView struct {
	device.Device
	Online bool `json:"online"`
}

// handleListDevices returns all known devices with their liveness.
//
// Query parameters:
//   - online: "true" or "false" to filter by derived liveness
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("online")

	views := []deviceView{}
	for _, d := range s.engine.ListDevices() {
		online := s.engine.IsOnline(d.ID)
		switch filter {
		case "true":
			if !online {
				continue
			}
		case "false":
			if online {
				continue
			}
		}
		views = append(views, deviceView{Device: d, Online: online})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.engine.GetDevice(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, deviceView{Device: *dev, Online: s.engine.IsOnline(id)})
}

// handleGetLiveTelemetry returns the most recent telemetry snapshot for a
// device. The snapshot is the last complete reading the device published;
// 404 means the device has never reported telemetry this process lifetime.
func (s *Server) handleGetLiveTelemetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := s.engine.GetSnapshot(id)
	if err != nil {
		if errors.Is(err, telemetry.ErrNoTelemetry) {
			writeNotFound(w, "no telemetry received from device")
			return
		}
		writeInternalError(w, "failed to read telemetry")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
