package zwave

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultGatewayConnection is the default gateway daemon connection address.
const DefaultGatewayConnection = "tcp://localhost:4711"

// Config is the root configuration for the Z-Wave bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge  BridgeConfig    `yaml:"bridge"`
	Gateway GatewaySettings `yaml:"gateway"`
	MQTT    MQTTSettings    `yaml:"mqtt"`
	Devices []DeviceConfig  `yaml:"devices"`
	Logging LoggingConfig   `yaml:"logging"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance.
	// Used in MQTT client ID and health reporting.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`
}

// GatewaySettings contains gateway daemon connection settings.
// These override the defaults in GatewayConfig.
type GatewaySettings struct {
	// Connection is the gateway connection URL.
	// Supported formats:
	//   - "unix:///run/zwgd" (Unix socket)
	//   - "tcp://localhost:4711" (TCP)
	// Default: "tcp://localhost:4711"
	Connection string `yaml:"connection"`

	// ConnectTimeout is the maximum time to wait for connection (seconds).
	// Default: 10 seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// ReadTimeout is the timeout for read operations (seconds).
	// Default: 30 seconds.
	ReadTimeout int `yaml:"read_timeout"`

	// ReconnectInterval is the delay between reconnection attempts (seconds).
	// Default: 5 seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// MQTTSettings contains MQTT broker connection settings.
type MQTTSettings struct {
	// Broker is the MQTT broker URL.
	// Example: "tcp://localhost:1883"
	Broker string `yaml:"broker"`

	// ClientID is the MQTT client identifier.
	// Should be unique per bridge instance.
	// Default: bridge.id + "-mqtt"
	ClientID string `yaml:"client_id"`

	// Username for MQTT authentication (optional).
	Username string `yaml:"username"`

	// Password for MQTT authentication (optional).
	// WARNING: Never log this value. Use String() method for safe logging.
	Password string `yaml:"password"`

	// QoS is the MQTT quality of service level (0, 1, or 2).
	// Default: 1 (at least once delivery).
	QoS int `yaml:"qos"`

	// KeepAlive is the MQTT keep-alive interval (seconds).
	// Default: 60 seconds.
	KeepAlive int `yaml:"keep_alive"`
}

// String returns a string representation with password masked.
// Use this for logging to prevent credential exposure.
func (m MQTTSettings) String() string {
	password := ""
	if m.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MQTTSettings{Broker:%q, ClientID:%q, Username:%q, Password:%s, QoS:%d, KeepAlive:%d}",
		m.Broker, m.ClientID, m.Username, password, m.QoS, m.KeepAlive)
}

// MarshalJSON implements json.Marshaler to redact password in JSON output.
// This prevents accidental password exposure in logs or API responses.
func (m MQTTSettings) MarshalJSON() ([]byte, error) {
	// Create a copy with redacted password for serialisation
	type redacted MQTTSettings
	safe := redacted(m)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is the log output format: json or text.
	// Default: json
	Format string `yaml:"format"`
}

// DeviceConfig defines one RGBW controller on the mesh.
type DeviceConfig struct {
	// DeviceID is the Gray Logic device identifier.
	// Must match the device_id in Core's device registry.
	DeviceID string `yaml:"device_id"`

	// NodeID is the mesh node number (1-232).
	NodeID byte `yaml:"node_id"`

	// Name is an optional display name.
	Name string `yaml:"name"`

	// Model is the hardware model name. The protocol exposes no model
	// string, so it is declared here and carried into the device identity.
	Model string `yaml:"model"`

	// AnalogEndpoints lists endpoints wired as 0-10V analog inputs rather
	// than colour outputs.
	AnalogEndpoints []byte `yaml:"analog_endpoints"`

	// MinLevel and MaxLevel remap commanded brightness into a calibrated
	// range (1-99). Zero means no remapping.
	MinLevel byte `yaml:"min_level"`
	MaxLevel byte `yaml:"max_level"`

	// FlashRateMs is the default flash oscillator cycle time (milliseconds).
	// Clamped to 1000-30000; zero uses the built-in default.
	FlashRateMs int `yaml:"flash_rate_ms"`

	// Parameters holds desired configuration parameter values to sync to
	// the device on startup.
	Parameters []ParameterConfig `yaml:"parameters"`

	// Associations holds desired association group memberships.
	Associations []AssociationConfig `yaml:"associations"`
}

// ParameterConfig is one desired configuration parameter value.
type ParameterConfig struct {
	// Number is the parameter number.
	Number byte `yaml:"number"`

	// Size is the value size in bytes (1, 2, or 4).
	Size byte `yaml:"size"`

	// Value is the desired value (unsigned representation).
	Value int64 `yaml:"value"`
}

// AssociationConfig is one desired association group membership.
type AssociationConfig struct {
	// Group is the association group number.
	Group byte `yaml:"group"`

	// Nodes lists the member node ids (max 5 per group).
	Nodes []byte `yaml:"nodes"`
}

// Calibration returns the device's brightness calibration.
func (d DeviceConfig) Calibration() Calibration {
	return Calibration{MinLevel: d.MinLevel, MaxLevel: d.MaxLevel}
}

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ZWAVE_BRIDGE_SECTION_KEY
// For example: ZWAVE_BRIDGE_GATEWAY_CONNECTION, ZWAVE_BRIDGE_MQTT_BROKER
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "zwave-bridge-01",
			HealthInterval: 30,
		},
		Gateway: GatewaySettings{
			Connection:        DefaultGatewayConnection,
			ConnectTimeout:    10,
			ReadTimeout:       30,
			ReconnectInterval: 5,
		},
		MQTT: MQTTSettings{
			Broker:    "tcp://localhost:1883",
			QoS:       1,
			KeepAlive: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Devices: []DeviceConfig{},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ZWAVE_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("ZWAVE_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}

	// Gateway
	if v := os.Getenv("ZWAVE_BRIDGE_GATEWAY_CONNECTION"); v != "" {
		cfg.Gateway.Connection = v
	}

	// MQTT
	if v := os.Getenv("ZWAVE_BRIDGE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("ZWAVE_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("ZWAVE_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateMQTT()...)
	errs = append(errs, c.validateDevices()...)
	errs = append(errs, c.validateLogging()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateBridge validates bridge settings.
func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	return errs
}

// validateGateway validates gateway connection settings.
func (c *Config) validateGateway() []string {
	var errs []string
	if c.Gateway.Connection == "" {
		errs = append(errs, "gateway.connection is required")
	}
	if c.Gateway.ConnectTimeout < 1 {
		errs = append(errs, "gateway.connect_timeout must be at least 1 second")
	}
	if c.Gateway.ReadTimeout < 1 {
		errs = append(errs, "gateway.read_timeout must be at least 1 second")
	}
	return errs
}

// validateMQTT validates MQTT broker settings.
func (c *Config) validateMQTT() []string {
	var errs []string
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	return errs
}

// maxNodeID is the highest valid mesh node number.
const maxNodeID = 232

// validateDevices validates device configurations.
func (c *Config) validateDevices() []string {
	var errs []string
	deviceIDs := make(map[string]bool)
	nodeIDs := make(map[byte]bool)

	for i, dev := range c.Devices {
		if dev.DeviceID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].device_id is required", i))
			continue
		}
		if deviceIDs[dev.DeviceID] {
			errs = append(errs, fmt.Sprintf("devices[%d].device_id %q is duplicate", i, dev.DeviceID))
		}
		deviceIDs[dev.DeviceID] = true

		if dev.NodeID == 0 || dev.NodeID > maxNodeID {
			errs = append(errs, fmt.Sprintf("devices[%d].node_id must be 1-%d", i, maxNodeID))
		} else if nodeIDs[dev.NodeID] {
			errs = append(errs, fmt.Sprintf("devices[%d].node_id %d is duplicate", i, dev.NodeID))
		}
		nodeIDs[dev.NodeID] = true

		if dev.MinLevel > uint8(levelMax) || dev.MaxLevel > uint8(levelMax) {
			errs = append(errs, fmt.Sprintf("devices[%d] calibration levels must be 0-%d", i, levelMax))
		}
		if dev.MinLevel != 0 && dev.MaxLevel != 0 && dev.MinLevel > dev.MaxLevel {
			errs = append(errs, fmt.Sprintf("devices[%d].min_level exceeds max_level", i))
		}
		if dev.FlashRateMs != 0 && (dev.FlashRateMs < flashRateMinMs || dev.FlashRateMs > flashRateMaxMs) {
			errs = append(errs, fmt.Sprintf("devices[%d].flash_rate_ms must be %d-%d", i, flashRateMinMs, flashRateMaxMs))
		}

		errs = append(errs, validateDeviceParameters(i, dev.Parameters)...)
		errs = append(errs, validateDeviceAssociations(i, dev.Associations)...)
	}

	return errs
}

// validateDeviceParameters validates parameter sync entries for a device.
func validateDeviceParameters(deviceIdx int, params []ParameterConfig) []string {
	var errs []string
	for j, p := range params {
		if p.Size != 1 && p.Size != 2 && p.Size != 4 {
			errs = append(errs, fmt.Sprintf("devices[%d].parameters[%d].size must be 1, 2, or 4", deviceIdx, j))
		}
	}
	return errs
}

// validateDeviceAssociations validates association entries for a device.
func validateDeviceAssociations(deviceIdx int, assocs []AssociationConfig) []string {
	var errs []string
	for j, a := range assocs {
		if a.Group == 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].associations[%d].group is required", deviceIdx, j))
		}
		if len(a.Nodes) > maxAssociationNodes {
			errs = append(errs, fmt.Sprintf("devices[%d].associations[%d] has %d nodes, capacity %d",
				deviceIdx, j, len(a.Nodes), maxAssociationNodes))
		}
	}
	return errs
}

// validateLogging validates logging settings.
func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	return errs
}

// ToGatewayConfig converts settings to a GatewayConfig for the client.
func (c *Config) ToGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Connection:        c.Gateway.Connection,
		ConnectTimeout:    time.Duration(c.Gateway.ConnectTimeout) * time.Second,
		ReadTimeout:       time.Duration(c.Gateway.ReadTimeout) * time.Second,
		ReconnectInterval: time.Duration(c.Gateway.ReconnectInterval) * time.Second,
	}
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetMQTTClientID returns the MQTT client ID, defaulting to bridge ID if not set.
func (c *Config) GetMQTTClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	return c.Bridge.ID + "-mqtt"
}
