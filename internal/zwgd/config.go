package zwgd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the zwgd gateway daemon.
type Config struct {
	// Managed indicates whether Gray Logic should manage zwgd lifecycle.
	// If false, zwgd is expected to be running externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the zwgd executable.
	// Default: "/usr/bin/zwgd"
	Binary string `yaml:"binary"`

	// SerialDevice is the Z-Wave controller's serial port.
	// This is the -d flag for zwgd.
	// Default: "/dev/ttyACM0"
	SerialDevice string `yaml:"serial_device"`

	// ListenPort is the TCP port zwgd listens on for clients
	// (like Gray Logic's Z-Wave bridge).
	// Default: 4711
	ListenPort int `yaml:"listen_port"`

	// UnixSocket enables Unix socket listening in addition to TCP.
	// Empty disables the Unix socket.
	UnixSocket string `yaml:"unix_socket,omitempty"`

	// RestartOnFailure enables automatic restart if zwgd crashes.
	// Default: true
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelay is the time to wait before restarting.
	// Default: 5s
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// GracefulTimeout is how long to wait for graceful shutdown.
	// Default: 10s
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// HealthCheckInterval is how often to run watchdog health checks.
	// If zwgd hangs (stops responding), it will be killed and restarted
	// after 3 consecutive health check failures.
	// Default: 30s
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// HealthCheckTimeout is how long to wait for zwgd to answer the
	// session handshake during a health check.
	// Default: 3s
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout,omitempty"`

	// LogLevel sets zwgd's verbosity.
	// Range: 0 (minimal) to 5 (maximum debug)
	// Default: 0
	LogLevel int `yaml:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults for a USB stick
// controller on the first ACM port.
func DefaultConfig() Config {
	return Config{
		Managed:             true,
		Binary:              "/usr/bin/zwgd",
		SerialDevice:        "/dev/ttyACM0",
		ListenPort:          4711,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartAttempts:  10,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  3 * time.Second,
		LogLevel:            0,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("zwgd binary path is required")
	}

	if c.SerialDevice == "" {
		return fmt.Errorf("serial_device is required")
	}
	if err := validateSafePathComponent(c.SerialDevice, "serial_device"); err != nil {
		return err
	}

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 1 and 65535")
	}

	if c.UnixSocket != "" {
		if err := validateSafePathComponent(c.UnixSocket, "unix_socket"); err != nil {
			return err
		}
	}

	if c.LogLevel < 0 || c.LogLevel > 5 {
		return fmt.Errorf("log_level must be between 0 and 5")
	}

	return nil
}

// BuildArgs constructs the command-line arguments for zwgd.
func (c *Config) BuildArgs() []string {
	var args []string

	// Serial controller (-d)
	args = append(args, "-d", c.SerialDevice)

	// TCP server (-p) - required for the Z-Wave bridge to connect
	args = append(args, "-p", strconv.Itoa(c.ListenPort))

	// Unix socket (-u)
	if c.UnixSocket != "" {
		args = append(args, "-u", c.UnixSocket)
	}

	// Verbosity
	if c.LogLevel > 0 {
		args = append(args, fmt.Sprintf("-v%d", c.LogLevel))
	}

	return args
}

// ConnectionURL returns the URL for connecting to zwgd.
// This is used by the Z-Wave bridge to know where to connect.
func (c *Config) ConnectionURL() string {
	if c.ListenPort > 0 {
		return fmt.Sprintf("tcp://localhost:%d", c.ListenPort)
	}
	if c.UnixSocket != "" {
		return fmt.Sprintf("unix://%s", c.UnixSocket)
	}
	return "tcp://localhost:4711"
}

// safePathPattern allows alphanumeric, hyphen, underscore, forward slash, and colon.
// This prevents shell metacharacters that could enable command injection.
var safePathPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-/:.]+$`)

// validateSafePathComponent ensures a string doesn't contain shell metacharacters.
// This prevents command injection when the value is passed to subprocess arguments.
func validateSafePathComponent(value, fieldName string) error {
	if !safePathPattern.MatchString(value) {
		return fmt.Errorf("%s contains invalid characters (allowed: alphanumeric, hyphen, underscore, slash, colon, dot)", fieldName)
	}
	// Additionally reject common shell metacharacters explicitly
	for _, ch := range []string{";", "|", "&", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\\", "'", "\"", ".."} {
		if strings.Contains(value, ch) {
			return fmt.Errorf("%s contains forbidden sequence %q", fieldName, ch)
		}
	}
	return nil
}
