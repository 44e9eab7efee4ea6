package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wattagent/wattmcp-core/internal/device"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/mqtt"
	"github.com/wattagent/wattmcp-core/internal/telemetry"
)

// maxIDCollisionRetries bounds command ID regeneration on table collision.
// UUID collisions are vanishingly rare; the loop exists so a collision is
// a retry, not a clobbered in-flight command.
const maxIDCollisionRetries = 3

// Channel is the slice of the MQTT client the engine needs.
//
// It is satisfied by an adapter over mqtt.Client (see cmd/wattmcp) and by
// in-memory fakes in tests.
type Channel interface {
	// Publish sends a payload to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Recorder persists telemetry history and command outcomes.
// Satisfied by influxdb.Client; nil disables recording.
type Recorder interface {
	WriteTelemetry(deviceID string, fields map[string]float64, capturedAt time.Time)
	WriteCommandOutcome(deviceID, action, status string, latency time.Duration)
}

// Logger defines the logging interface used by the engine.
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

// Config tunes the correlation engine.
type Config struct {
	// DefaultTimeout is applied when a request does not set one.
	DefaultTimeout time.Duration

	// MaxTimeout caps caller-supplied timeouts.
	MaxTimeout time.Duration

	// ReaperInterval is the sweep period for expired entries. It bounds
	// how long past its deadline a command can linger unresolved.
	ReaperInterval time.Duration

	// QoS is the MQTT QoS for published commands and subscriptions.
	QoS byte
}

// Default engine tuning, used when Config fields are zero.
const (
	defaultCommandTimeout = 10 * time.Second
	defaultMaxTimeout     = 60 * time.Second
	defaultReaperInterval = 250 * time.Millisecond
)

// Deps carries the engine's collaborators.
type Deps struct {
	Channel   Channel
	Registry  *device.Registry
	Telemetry *telemetry.Cache
	Topics    mqtt.Topics
	Recorder  Recorder // optional
	Logger    Logger   // optional
	Config    Config
}

// Engine is the command/telemetry correlation engine.
//
// It bridges the synchronous REST surface to the asynchronous MQTT fabric:
// callers dispatch a command and block on a per-command channel; inbound
// responses are matched back by command ID and wake exactly one waiter.
// Telemetry and heartbeats flowing over the same connection feed the
// telemetry cache and device registry as a side effect.
type Engine struct {
	channel  Channel
	registry *device.Registry
	cache    *telemetry.Cache
	topics   mqtt.Topics
	recorder Recorder
	logger   Logger
	cfg      Config

	table   *Table
	metrics Metrics
	results *resultLog

	closed atomic.Bool
}

// New creates a correlation engine.
//
// Parameters:
//   - deps: Collaborators; Channel, Registry and Telemetry are required
//
// Returns:
//   - *Engine: Engine ready for Start
//   - error: If a required dependency is missing
func New(deps Deps) (*Engine, error) {
	if deps.Channel == nil {
		return nil, errors.New("command: channel is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("command: device registry is required")
	}
	if deps.Telemetry == nil {
		return nil, errors.New("command: telemetry cache is required")
	}

	cfg := deps.Config
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultCommandTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = defaultMaxTimeout
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = defaultReaperInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Engine{
		channel:  deps.Channel,
		registry: deps.Registry,
		cache:    deps.Telemetry,
		topics:   deps.Topics,
		recorder: deps.Recorder,
		logger:   logger,
		cfg:      cfg,
		table:    NewTable(),
		results:  newResultLog(maxRecordedResults),
	}, nil
}

// Start subscribes to the device topic subtree and launches the timeout
// reaper. The reaper stops when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	patterns := []string{
		e.topics.AllDeviceTelemetry(),
		e.topics.AllDeviceStatus(),
		e.topics.AllDeviceCommandResponses(),
	}
	for _, pattern := range patterns {
		if err := e.channel.Subscribe(pattern, e.cfg.QoS, e.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}

	go e.reapLoop(ctx)

	e.logger.Info("correlation engine started",
		"default_timeout", e.cfg.DefaultTimeout,
		"max_timeout", e.cfg.MaxTimeout,
		"reaper_interval", e.cfg.ReaperInterval,
	)
	return nil
}

// Close stops accepting new dispatches and resolves every still-pending
// command as a timeout. The reaper dies with the Start context, which main
// cancels before the HTTP server drains; without this final sweep a waiter
// whose device never answers would stay parked until the server force-closes.
func (e *Engine) Close() error {
	e.closed.Store(true)

	now := time.Now()
	for _, ent := range e.table.All() {
		res := &Result{
			CommandID: ent.commandID,
			DeviceID:  ent.deviceID,
			Status:    StatusTimeout,
			Message:   "gateway shutting down before response arrived",
			Latency:   now.Sub(ent.dispatchedAt),
		}
		if !ent.resolve(res) {
			continue
		}
		e.table.Remove(ent.commandID)
		e.metrics.TimedOut.Add(1)
		e.results.record(res)
		if e.recorder != nil {
			e.recorder.WriteCommandOutcome(ent.deviceID, ent.action, string(StatusTimeout), res.Latency)
		}
		e.logger.Warn("pending command resolved at shutdown",
			"command_id", ent.commandID,
			"device_id", ent.deviceID,
			"action", ent.action,
		)
	}
	return nil
}

// HandleMessage routes one inbound MQTT message.
//
// Every message, whatever its kind, refreshes the sender's liveness first;
// a device that streams telemetry but never answers commands still counts
// as online.
func (e *Engine) HandleMessage(topic string, payload []byte) error {
	deviceID, kind, err := e.topics.ParseDeviceTopic(topic)
	if err != nil {
		e.metrics.MalformedMessages.Add(1)
		return err
	}

	now := time.Now()
	if err := e.registry.RecordActivity(deviceID, now); err != nil {
		return err
	}

	switch kind {
	case mqtt.KindTelemetry:
		return e.handleTelemetry(deviceID, payload, now)
	case mqtt.KindStatus:
		return e.handleStatus(deviceID, payload)
	case mqtt.KindCommandResponse:
		return e.handleResponse(deviceID, payload, now)
	default:
		// Command messages are gateway-published; seeing one here means a
		// broker echo or an over-broad subscription. Liveness was already
		// recorded, nothing else to do.
		return nil
	}
}

// handleTelemetry updates the cache with a new reading.
func (e *Engine) handleTelemetry(deviceID string, payload []byte, receivedAt time.Time) error {
	snap, err := telemetry.ParseSnapshot(deviceID, payload, receivedAt)
	if err != nil {
		e.metrics.MalformedMessages.Add(1)
		return err
	}

	e.cache.Update(snap)
	e.metrics.TelemetryMessages.Add(1)

	if e.recorder != nil {
		capturedAt := snap.CapturedAt
		if capturedAt.IsZero() {
			capturedAt = snap.ReceivedAt
		}
		e.recorder.WriteTelemetry(deviceID, snap.Fields, capturedAt)
	}
	return nil
}

// heartbeat is the device status wire message. The info fields are
// optional; most firmware sends only deviceId, timestamp and status.
type heartbeat struct {
	Status          string             `json:"status"`
	IPAddress       string             `json:"ipAddress,omitempty"`
	GeoLocation     string             `json:"geoLocation,omitempty"`
	ModelParameters map[string]float64 `json:"modelParameters,omitempty"`
}

// handleStatus merges any self-reported metadata from a heartbeat.
// Liveness was already recorded from the arrival itself; the payload's
// "status" field is informational.
func (e *Engine) handleStatus(deviceID string, payload []byte) error {
	var hb heartbeat
	if err := json.Unmarshal(payload, &hb); err != nil {
		e.metrics.MalformedMessages.Add(1)
		return fmt.Errorf("command: malformed heartbeat from %s: %w", deviceID, err)
	}

	e.metrics.StatusMessages.Add(1)

	if hb.IPAddress != "" || hb.GeoLocation != "" || hb.ModelParameters != nil {
		if err := e.registry.SetInfo(deviceID, device.Info{
			IPAddress:       hb.IPAddress,
			GeoLocation:     hb.GeoLocation,
			ModelParameters: hb.ModelParameters,
		}); err != nil {
			return err
		}
	}

	e.logger.Debug("device heartbeat", "device_id", deviceID, "status", hb.Status)
	return nil
}

// handleResponse correlates a command response back to its waiter.
func (e *Engine) handleResponse(deviceID string, payload []byte, receivedAt time.Time) error {
	resp, err := ParseResponse(payload)
	if err != nil {
		e.metrics.MalformedMessages.Add(1)
		return err
	}

	ent, ok := e.table.Get(resp.CommandID)
	if !ok {
		// Late arrival after timeout, a retransmit, or an ID the gateway
		// never issued. Counted and dropped; the waiter (if any) has
		// already been answered.
		e.metrics.UnmatchedResponses.Add(1)
		e.logger.Warn("unmatched command response",
			"command_id", resp.CommandID,
			"device_id", deviceID,
		)
		return nil
	}

	if ent.deviceID != deviceID {
		// Correct command ID from the wrong device. Never resolves the
		// entry: a spoofed or confused publisher must not complete another
		// device's command.
		e.metrics.MismatchedResponses.Add(1)
		e.logger.Warn("command response from wrong device",
			"command_id", resp.CommandID,
			"expected_device", ent.deviceID,
			"actual_device", deviceID,
		)
		return nil
	}

	res := &Result{
		CommandID: resp.CommandID,
		DeviceID:  deviceID,
		Status:    resp.TerminalStatus(),
		Message:   resp.Message,
		Payload:   resp.Payload,
		Latency:   receivedAt.Sub(ent.dispatchedAt),
	}

	if !ent.resolve(res) {
		e.metrics.DuplicateResponses.Add(1)
		e.logger.Debug("duplicate response ignored",
			"command_id", resp.CommandID,
			"device_id", deviceID,
		)
		return nil
	}

	e.table.Remove(ent.commandID)
	e.recordOutcome(ent, res)

	e.logger.Info("command resolved",
		"command_id", resp.CommandID,
		"device_id", deviceID,
		"status", res.Status,
		"latency_ms", res.Latency.Milliseconds(),
	)
	return nil
}

// Dispatch publishes a command without waiting for the response.
//
// The returned command ID can be polled later via GetResult. The pending
// entry still times out through the reaper if no response arrives.
func (e *Engine) Dispatch(req Request) (string, error) {
	ent, err := e.dispatch(req)
	if err != nil {
		return "", err
	}
	return ent.commandID, nil
}

// DispatchAndWait publishes a command and blocks until it resolves.
//
// Resolution comes from whichever happens first: the device's response, the
// command deadline (ErrTimeout), or ctx cancellation (also surfaced as
// ErrTimeout, with the entry cleaned up so a late response counts as
// unmatched rather than leaking).
//
// A device-reported failure is a successful round-trip: the returned
// Result carries StatusFailure and err is nil.
func (e *Engine) DispatchAndWait(ctx context.Context, req Request) (*Result, error) {
	ent, err := e.dispatch(req)
	if err != nil {
		return nil, err
	}

	select {
	case <-ent.done:
		return e.deliver(ent.result)

	case <-ctx.Done():
		res := &Result{
			CommandID: ent.commandID,
			DeviceID:  ent.deviceID,
			Status:    StatusTimeout,
			Message:   "wait cancelled: " + ctx.Err().Error(),
			Latency:   time.Since(ent.dispatchedAt),
		}
		if ent.resolve(res) {
			e.table.Remove(ent.commandID)
			e.metrics.TimedOut.Add(1)
			e.results.record(res)
			if e.recorder != nil {
				e.recorder.WriteCommandOutcome(ent.deviceID, ent.action, string(StatusTimeout), res.Latency)
			}
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		// A response or the reaper won the race; deliver that outcome.
		<-ent.done
		return e.deliver(ent.result)
	}
}

// deliver maps a terminal result to the DispatchAndWait return convention.
func (e *Engine) deliver(res *Result) (*Result, error) {
	if res.Status == StatusTimeout {
		return res, fmt.Errorf("%w: command %s to %s", ErrTimeout, res.CommandID, res.DeviceID)
	}
	return res, nil
}

// dispatch validates the request, registers the pending entry, and
// publishes the command.
//
// The entry goes into the table BEFORE the publish: once the message is on
// the wire a fast device could answer within microseconds, and the response
// handler must find the entry already there. The cost is cleanup on publish
// failure, which is the cheap side of that race.
func (e *Engine) dispatch(req Request) (*entry, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if req.DeviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if req.Action == "" {
		return nil, ErrActionRequired
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout > e.cfg.MaxTimeout {
		timeout = e.cfg.MaxTimeout
	}

	now := time.Now()
	var ent *entry
	for attempt := 0; ; attempt++ {
		ent = newEntry(newCommandID(), req.DeviceID, req.Action, now, timeout)
		if err := e.table.Insert(ent); err == nil {
			break
		}
		if attempt == maxIDCollisionRetries {
			return nil, fmt.Errorf("%w: could not allocate command id", ErrDispatchFailed)
		}
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(Command{
		CommandID: ent.commandID,
		Action:    req.Action,
		Payload:   payload,
	})
	if err != nil {
		e.table.Remove(ent.commandID)
		return nil, fmt.Errorf("%w: encoding command: %w", ErrDispatchFailed, err)
	}

	if err := e.channel.Publish(e.topics.DeviceCommand(req.DeviceID), data, e.cfg.QoS, false); err != nil {
		// The command never reached the broker; nothing will ever answer
		// it. Remove the entry so it cannot linger to a pointless timeout.
		e.table.Remove(ent.commandID)
		e.metrics.DispatchFailures.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	e.metrics.Dispatched.Add(1)
	e.logger.Info("command dispatched",
		"command_id", ent.commandID,
		"device_id", req.DeviceID,
		"action", req.Action,
		"timeout", timeout,
	)
	return ent, nil
}

// newCommandID generates a correlation identifier.
func newCommandID() string {
	return "cmd-" + uuid.NewString()
}

// GetResult returns the recorded outcome of a resolved command.
// Returns ErrCommandNotFound if the command is unknown, still pending, or
// its outcome has been evicted from the bounded log.
func (e *Engine) GetResult(commandID string) (*Result, error) {
	if res, ok := e.results.get(commandID); ok {
		return res, nil
	}
	return nil, ErrCommandNotFound
}

// GetSnapshot returns the latest telemetry for a device.
func (e *Engine) GetSnapshot(deviceID string) (*telemetry.Snapshot, error) {
	return e.cache.Get(deviceID)
}

// ListDevices returns all known devices sorted by ID.
func (e *Engine) ListDevices() []device.Device {
	return e.registry.List()
}

// GetDevice returns a device's registry entry.
func (e *Engine) GetDevice(deviceID string) (*device.Device, error) {
	return e.registry.Get(deviceID)
}

// IsOnline reports derived liveness for a device.
func (e *Engine) IsOnline(deviceID string) bool {
	return e.registry.IsOnline(deviceID)
}

// PendingCount returns the number of in-flight commands.
func (e *Engine) PendingCount() int {
	return e.table.Len()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() MetricsSnapshot {
	snap := e.metrics.Snapshot()
	snap.Pending = e.table.Len()
	return snap
}

// recordOutcome updates terminal metrics and the result log for a
// response-resolved entry.
func (e *Engine) recordOutcome(ent *entry, res *Result) {
	switch res.Status {
	case StatusSuccess:
		e.metrics.Succeeded.Add(1)
	case StatusFailure:
		e.metrics.Failed.Add(1)
	case StatusTimeout:
		e.metrics.TimedOut.Add(1)
	}

	e.results.record(res)

	if e.recorder != nil {
		e.recorder.WriteCommandOutcome(ent.deviceID, ent.action, string(res.Status), res.Latency)
	}
}
