// WattMCP Core - Command/Telemetry Correlation Gateway
//
// This is the main entry point for the WattMCP Core application.
// WattMCP bridges AI agents speaking synchronous REST to fleets of edge
// power-electronics devices speaking asynchronous MQTT:
//   - Commands are published to per-device topics and correlated back to
//     the waiting HTTP request by command ID
//   - Telemetry and heartbeats feed an in-memory snapshot cache and a
//     device registry with derived liveness
//   - InfluxDB optionally records telemetry history and command outcomes
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/wattagent/wattmcp-core/migrations"

	"github.com/wattagent/wattmcp-core/internal/api"
	"github.com/wattagent/wattmcp-core/internal/command"
	"github.com/wattagent/wattmcp-core/internal/device"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/config"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/database"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/influxdb"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/logging"
	"github.com/wattagent/wattmcp-core/internal/infrastructure/mqtt"
	"github.com/wattagent/wattmcp-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting WattMCP Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo, cfg.Gateway.GetOfflineThreshold())
	registry.SetLogger(log)

	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	registry.Start(ctx)
	log.Info("device registry initialised",
		"devices", registry.Count(),
		"offline_threshold", cfg.Gateway.GetOfflineThreshold(),
	)

	// Connect to MQTT broker
	topics := mqtt.Topics{Prefix: cfg.Gateway.TopicPrefix}
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the correlation engine
	engineDeps := command.Deps{
		Channel:   &mqttChannelAdapter{client: mqttClient},
		Registry:  registry,
		Telemetry: telemetry.NewCache(),
		Topics:    topics,
		Logger:    log,
		Config: command.Config{
			DefaultTimeout: cfg.Gateway.GetDefaultCommandTimeout(),
			MaxTimeout:     cfg.Gateway.GetMaxCommandTimeout(),
			ReaperInterval: cfg.Gateway.GetReaperInterval(),
			QoS:            byte(cfg.MQTT.QoS),
		},
	}
	if influxClient != nil {
		engineDeps.Recorder = influxClient
	}

	engine, err := command.New(engineDeps)
	if err != nil {
		return fmt.Errorf("creating correlation engine: %w", err)
	}
	if startErr := engine.Start(ctx); startErr != nil {
		return fmt.Errorf("starting correlation engine: %w", startErr)
	}
	defer func() {
		log.Info("closing correlation engine")
		if closeErr := engine.Close(); closeErr != nil {
			log.Error("error closing correlation engine", "error", closeErr)
		}
	}()
	log.Info("correlation engine started", "topic_prefix", cfg.Gateway.TopicPrefix)

	// Start the API server
	health := map[string]api.HealthChecker{
		"database": db.HealthCheck,
		"mqtt":     mqttClient.HealthCheck,
	}
	if influxClient != nil {
		health["influxdb"] = influxClient.HealthCheck
	}

	apiServer, err := api.New(api.Deps{
		Config:   cfg.Server,
		Security: cfg.Security,
		Logger:   log,
		Engine:   engine,
		Health:   health,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (stops accepting commands)
	// 2. Correlation engine
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database (after the registry's final flush)

	log.Info("WattMCP Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WATTMCP_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WATTMCP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttChannelAdapter adapts the infrastructure MQTT client to the correlation
// engine's Channel interface. The signatures line up except that the client's
// Subscribe takes the named mqtt.MessageHandler type.
type mqttChannelAdapter struct {
	client *mqtt.Client
}

// Publish implements command.Channel.
func (a *mqttChannelAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements command.Channel.
func (a *mqttChannelAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.client.Subscribe(topic, qos, mqtt.MessageHandler(handler))
}
