package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wattagent/wattmcp-core/internal/command"
	"github.com/wattagent/wattmcp-core/internal/device"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/config"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/logging"
	"github.com/wattagent/wattmcp-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the slice of the correlation engine the API surface needs.
// Satisfied by *command.Engine and by fakes in tests.
type Engine interface {
	DispatchAndWait(ctx context.Context, req command.Request) (*command.Result, error)
	Dispatch(req command.Request) (string, error)
	GetResult(commandID string) (*command.Result, error)
	GetSnapshot(deviceID string) (*telemetry.Snapshot, error)
	ListDevices() []device.Device
	GetDevice(deviceID string) (*device.Device, error)
	IsOnline(deviceID string) bool
	Stats() command.MetricsSnapshot
}

// HealthChecker reports the health of a named backend component.
type HealthChecker func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   Engine
	Health   map[string]HealthChecker // optional backend checks for /health
	Version  string
}

// Server is the HTTP API server for WattMCP Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg     config.ServerConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	engine  Engine
	health  map[string]HealthChecker
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("correlation engine is required")
	}

	return &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		engine:  deps.Engine,
		health:  deps.Health,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
