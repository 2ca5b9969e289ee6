// Gray Logic Z-Wave - RGBW Dimmer Bridge
//
// This is the main entry point for the Z-Wave RGBW bridge daemon.
// It translates between the mesh network's node frames and Gray Logic's
// MQTT message scheme, supervising the zwgd gateway daemon along the way.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-zwave/migrations"

	"github.com/nerrad567/gray-logic-zwave/internal/bridges/zwave"
	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-zwave/internal/zwgd"
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
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
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
	log.Info("starting Gray Logic Z-Wave bridge",
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

	// Device state persistence
	stateStore := device.NewStore(db)
	stateStore.SetLogger(log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
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

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	if !cfg.Protocols.ZWave.Enabled {
		return fmt.Errorf("protocols.zwave.enabled is false, nothing to do")
	}

	// Start zwgd gateway daemon (if managed)
	var zwgdManager *zwgd.Manager
	if cfg.Protocols.ZWave.ZWGD.Managed {
		zwgdManager, err = startZWGD(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("starting zwgd: %w", err)
		}
		defer func() {
			log.Info("stopping zwgd")
			if stopErr := zwgdManager.Stop(); stopErr != nil {
				log.Error("error stopping zwgd", "error", stopErr)
			}
		}()
	}

	// Start the Z-Wave bridge
	bridge, err := startBridge(ctx, cfg, zwgdManager, mqttClient, stateStore, influxClient, log)
	if err != nil {
		return fmt.Errorf("starting Z-Wave bridge: %w", err)
	}
	defer func() {
		log.Info("stopping Z-Wave bridge")
		bridge.Stop()
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Bridge (persists device state)
	// 2. zwgd (if managed)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Gray Logic Z-Wave bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
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
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Bridge health is verified during Start() - it connects to zwgd
	// and sets up MQTT subscriptions before returning successfully.

	return nil
}

// startZWGD initialises and starts the zwgd gateway daemon.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - *zwgd.Manager: Running zwgd manager
//   - error: If zwgd fails to start
func startZWGD(ctx context.Context, cfg *config.Config, log *logging.Logger) (*zwgd.Manager, error) {
	// Convert config types
	zwgdCfg := zwgd.Config{
		Managed:             cfg.Protocols.ZWave.ZWGD.Managed,
		Binary:              cfg.Protocols.ZWave.ZWGD.Binary,
		SerialDevice:        cfg.Protocols.ZWave.ZWGD.SerialDevice,
		ListenPort:          cfg.Protocols.ZWave.ZWGD.ListenPort,
		RestartOnFailure:    cfg.Protocols.ZWave.ZWGD.RestartOnFailure,
		RestartDelay:        time.Duration(cfg.Protocols.ZWave.ZWGD.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts:  cfg.Protocols.ZWave.ZWGD.MaxRestartAttempts,
		HealthCheckInterval: cfg.Protocols.ZWave.ZWGD.HealthCheckInterval,
		LogLevel:            cfg.Protocols.ZWave.ZWGD.LogLevel,
	}

	manager, err := zwgd.NewManager(zwgdCfg)
	if err != nil {
		return nil, fmt.Errorf("creating zwgd manager: %w", err)
	}
	manager.SetLogger(log)

	log.Info("starting zwgd",
		"serial_device", zwgdCfg.SerialDevice,
		"listen_port", zwgdCfg.ListenPort,
	)

	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting zwgd: %w", err)
	}

	log.Info("zwgd started",
		"connection_url", manager.ConnectionURL(),
		"managed", manager.IsManaged(),
	)

	return manager, nil
}

// startBridge initialises and starts the Z-Wave protocol bridge.
//
// Parameters:
//   - ctx: Context for connection/cancellation
//   - cfg: Application configuration
//   - zwgdManager: zwgd manager (may be nil if not managed)
//   - mqttClient: MQTT client for publishing/subscribing
//   - stateStore: Device state persistence
//   - influxClient: Telemetry sink (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - *zwave.Bridge: Running Z-Wave bridge
//   - error: If bridge fails to start
func startBridge(ctx context.Context, cfg *config.Config, zwgdManager *zwgd.Manager,
	mqttClient *mqtt.Client, stateStore *device.Store, influxClient *influxdb.Client,
	log *logging.Logger) (*zwave.Bridge, error) {
	// Load bridge configuration (devices, node IDs, calibration)
	bridgeCfg, err := zwave.LoadConfig(cfg.Protocols.ZWave.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading bridge config: %w", err)
	}
	log.Info("bridge config loaded",
		"path", cfg.Protocols.ZWave.ConfigFile,
		"devices", len(bridgeCfg.Devices),
	)

	// Determine connection URL:
	// - If zwgd is managed, use its connection URL
	// - Otherwise, use the bridge config's gateway connection
	connURL := bridgeCfg.Gateway.Connection
	if zwgdManager != nil {
		connURL = zwgdManager.ConnectionURL()
	}

	// Connect to the gateway daemon
	gateway, err := zwave.Connect(ctx, zwave.GatewayConfig{
		Connection:        connURL,
		ConnectTimeout:    time.Duration(bridgeCfg.Gateway.ConnectTimeout) * time.Second,
		ReadTimeout:       time.Duration(bridgeCfg.Gateway.ReadTimeout) * time.Second,
		ReconnectInterval: time.Duration(bridgeCfg.Gateway.ReconnectInterval) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to zwgd: %w", err)
	}
	log.Info("connected to zwgd", "url", connURL)

	// Create MQTT adapter to satisfy the bridge's interface
	mqttAdapter := &mqttBridgeAdapter{client: mqttClient, log: log}

	// Telemetry is optional; a nil interface means MQTT-only readings
	var telemetry zwave.TelemetrySink
	if influxClient != nil {
		telemetry = influxClient
	}

	// Create the bridge
	bridge, err := zwave.NewBridge(zwave.BridgeOptions{
		Config:     bridgeCfg,
		MQTTClient: mqttAdapter,
		Gateway:    gateway,
		Logger:     log,
		Store:      stateStore,
		Telemetry:  telemetry,
	})
	if err != nil {
		// Clean up gateway connection on error
		_ = gateway.Close()
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	// Start the bridge
	if err := bridge.Start(ctx); err != nil {
		_ = gateway.Close()
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("Z-Wave bridge started")

	return bridge, nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
	log    *logging.Logger
}

// Publish implements zwave.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements zwave.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements zwave.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements zwave.MQTTClient.
// Note: the MQTT client lifecycle is owned by run()'s defer chain, so
// this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {
	// No-op: MQTT client lifecycle is managed by the defer chain
}
