package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// flushInterval is how often dirty devices are written back to the repository.
const flushInterval = 5 * time.Second

// finalFlushTimeout bounds the last write-back during shutdown.
const finalFlushTimeout = 2 * time.Second

// Registry tracks known devices and their liveness.
//
// The in-memory map is authoritative: every read (Get, List, IsOnline) is
// served from memory and never touches storage, so lookups stay cheap on the
// message hot path. The repository is only consulted at startup (Load) and
// by the background write-back loop, which persists devices so metadata
// survives restarts.
//
// Devices are created implicitly: the first message observed on a device's
// topic subtree registers it. There is no eviction; the population is small
// and bounded by the fleet size.
//
// All public methods are thread-safe.
type Registry struct {
	offlineThreshold time.Duration
	repo             Repository // nil disables persistence

	mu      sync.RWMutex
	devices map[string]*Device
	dirty   map[string]struct{}

	logger Logger
}

// NewRegistry creates a device registry.
//
// Parameters:
//   - repo: Persistence backend; pass nil to run memory-only
//   - offlineThreshold: Silence duration after which a device reports offline
func NewRegistry(repo Repository, offlineThreshold time.Duration) *Registry {
	return &Registry{
		offlineThreshold: offlineThreshold,
		repo:             repo,
		devices:          make(map[string]*Device),
		dirty:            make(map[string]struct{}),
		logger:           noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load seeds the registry from persisted device metadata.
// Call once at startup, before messages start flowing.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range devices {
		d := devices[i]
		r.devices[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device registry loaded", "count", len(devices))
	return nil
}

// Start launches the background write-back loop.
// The loop flushes dirty devices to the repository every flushInterval and
// performs a final flush when ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	if r.repo == nil {
		return
	}
	go r.flushLoop(ctx)
}

// RecordActivity notes that a message arrived from the given device.
//
// Unknown devices are created implicitly; known devices get their
// LastSeenAt advanced. Stale arrival times (earlier than the current
// LastSeenAt) are ignored so liveness never moves backwards.
//
// Parameters:
//   - id: Device identifier from the message topic
//   - at: Arrival time of the message
func (r *Registry) RecordActivity(id string, at time.Time) error {
	if id == "" {
		return ErrInvalidDeviceID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		d = &Device{
			ID:          id,
			FirstSeenAt: at,
			LastSeenAt:  at,
		}
		r.devices[id] = d
		r.dirty[id] = struct{}{}
		r.logger.Info("device discovered", "device_id", id)
		return nil
	}

	if at.After(d.LastSeenAt) {
		d.LastSeenAt = at
		r.dirty[id] = struct{}{}
	}
	return nil
}

// SetInfo merges self-reported metadata from a status heartbeat.
//
// Only reported fields overwrite existing values; an empty IPAddress or nil
// ModelParameters leaves the stored value alone. The device must already be
// known (RecordActivity runs first for every inbound message).
func (r *Registry) SetInfo(id string, info Info) error {
	if id == "" {
		return ErrInvalidDeviceID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}

	if info.IPAddress != "" {
		d.IPAddress = info.IPAddress
	}
	if info.GeoLocation != "" {
		d.GeoLocation = info.GeoLocation
	}
	if info.ModelParameters != nil {
		d.ModelParameters = make(map[string]float64, len(info.ModelParameters))
		for k, v := range info.ModelParameters {
			d.ModelParameters[k] = v
		}
	}
	r.dirty[id] = struct{}{}
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// List returns all known devices sorted by ID.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// IsOnline reports whether the device has been heard from within the
// offline threshold. Unknown devices are offline.
func (r *Registry) IsOnline(id string) bool {
	return r.OnlineAt(id, time.Now())
}

// OnlineAt is IsOnline evaluated at an explicit instant.
func (r *Registry) OnlineAt(id string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return false
	}
	return d.OnlineAt(now, r.offlineThreshold)
}

// OfflineThreshold returns the configured silence threshold.
func (r *Registry) OfflineThreshold() time.Duration {
	return r.offlineThreshold
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// flushLoop periodically writes dirty devices back to the repository.
func (r *Registry) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush with a bounded deadline; the parent context is
			// already cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			r.flushDirty(flushCtx)
			cancel()
			return
		case <-ticker.C:
			r.flushDirty(ctx)
		}
	}
}

// flushDirty persists every device marked dirty since the last flush.
// Failed writes are re-marked dirty and retried on the next cycle.
func (r *Registry) flushDirty(ctx context.Context) {
	r.mu.Lock()
	if len(r.dirty) == 0 {
		r.mu.Unlock()
		return
	}
	batch := make([]*Device, 0, len(r.dirty))
	for id := range r.dirty {
		if d, ok := r.devices[id]; ok {
			batch = append(batch, d.DeepCopy())
		}
	}
	r.dirty = make(map[string]struct{})
	r.mu.Unlock()

	for _, d := range batch {
		if err := r.repo.Upsert(ctx, d); err != nil {
			r.logger.Warn("device write-back failed", "device_id", d.ID, "error", err)
			r.mu.Lock()
			r.dirty[d.ID] = struct{}{}
			r.mu.Unlock()
		}
	}
}
