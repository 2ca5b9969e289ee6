package zwgd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/process"
)

// Timeouts and intervals for zwgd management.
const (
	// readyTimeout is how long to wait for zwgd to accept TCP connections after starting.
	readyTimeout = 30 * time.Second

	// readyPollInterval is how often to try connecting during readiness check.
	readyPollInterval = 100 * time.Millisecond

	// dialTimeout is the timeout for individual TCP connection attempts.
	dialTimeout = 500 * time.Millisecond

	// pidFilePath is the default location for the zwgd PID file.
	// This prevents multiple instances from claiming the serial controller.
	pidFilePath = "/var/run/graylogic-zwgd.pid"

	// pidFileMode is the permission mode for the PID file.
	pidFileMode = 0600

	// pidFileFallbackPath is used if we can't write to /var/run
	pidFileFallbackPath = "/tmp/graylogic-zwgd.pid"
)

// Gateway socket protocol constants for the health check handshake.
// Every zwgd message is size(2 BE) + type(2 BE) + payload, where size
// covers type + payload but not itself. The daemon echoes the open-session
// type to confirm.
const msgOpenSession uint16 = 0x0001

// HealthError represents a health check failure with recoverability information.
// This allows the process manager to decide whether restarting will help.
type HealthError struct {
	// Layer is which health check layer failed (0-2)
	Layer int
	// Recoverable indicates if restarting the process might fix the issue
	Recoverable bool
	// Err is the underlying error
	Err error
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("health check layer %d failed: %v", e.Layer, e.Err)
}

func (e *HealthError) Unwrap() error {
	return e.Err
}

// IsRecoverable implements the process.RecoverableError interface.
func (e *HealthError) IsRecoverable() bool {
	return e.Recoverable
}

// newHealthError creates a health check error for a specific layer.
func newHealthError(layer int, recoverable bool, err error) *HealthError {
	return &HealthError{
		Layer:       layer,
		Recoverable: recoverable,
		Err:         err,
	}
}

// Logger defines the logging interface for the zwgd manager.
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

// Manager manages the zwgd daemon process.
type Manager struct {
	config  Config
	process *process.Manager
	logger  Logger

	// dStateCount tracks consecutive health checks where zwgd is in D (uninterruptible sleep) state.
	// Reset to 0 when zwgd returns to a healthy state.
	// Uses atomic.Int32 for thread-safe access from health check goroutine.
	dStateCount atomic.Int32

	// activePIDFilePath stores the path used when acquiring the PID file.
	// This ensures removePIDFile() removes the same file that was acquired,
	// even if /var/run permissions change at runtime.
	activePIDFilePath string
}

// NewManager creates a new zwgd manager.
func NewManager(cfg Config) (*Manager, error) {
	// Apply defaults for zero values
	if cfg.Binary == "" {
		cfg.Binary = "/usr/bin/zwgd"
	}
	if cfg.SerialDevice == "" {
		cfg.SerialDevice = "/dev/ttyACM0"
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 4711
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartAttempts == 0 {
		cfg.MaxRestartAttempts = 10
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.HealthCheckTimeout == 0 {
		cfg.HealthCheckTimeout = 3 * time.Second
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid zwgd config: %w", err)
	}

	m := &Manager{
		config: cfg,
		logger: noopLogger{},
	}

	return m, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the zwgd daemon.
// It will block until zwgd is ready to accept connections.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Managed {
		m.logger.Info("zwgd management disabled, expecting external zwgd")
		return nil
	}

	args := m.config.BuildArgs()

	m.logger.Info("starting zwgd",
		"binary", m.config.Binary,
		"args", args,
		"serial_device", m.config.SerialDevice,
	)

	// Create the process manager
	procConfig := process.Config{
		Name:               "zwgd",
		Binary:             m.config.Binary,
		Args:               args,
		RestartOnFailure:   m.config.RestartOnFailure,
		RestartDelay:       m.config.RestartDelay,
		MaxRestartAttempts: m.config.MaxRestartAttempts,
		GracefulTimeout:    m.config.GracefulTimeout,
		OnStart: func() {
			m.logger.Info("zwgd process started", "pid", m.process.PID())
		},
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("zwgd process stopped", "error", err)
			} else {
				m.logger.Info("zwgd process stopped")
			}
		},
		OnRestart: func(attempt int) {
			m.logger.Info("zwgd restarting", "attempt", attempt)
		},
		// Watchdog: periodic health check to detect hung zwgd
		HealthCheckInterval: m.config.HealthCheckInterval,
		HealthCheckFunc: func(ctx context.Context) error {
			return m.HealthCheck(ctx)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	// Start the process
	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting zwgd: %w", err)
	}

	// Wait for zwgd to be ready (TCP port accepting connections)
	if err := m.waitForReady(ctx); err != nil {
		// Stop the process if it didn't become ready
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping zwgd after failed readiness check", "error", stopErr)
		}
		return fmt.Errorf("zwgd failed to become ready: %w", err)
	}

	// Atomically acquire PID file to prevent duplicate instances
	// This is done AFTER zwgd starts so we have the real PID
	pid := m.process.PID()
	if pid > 0 {
		if err := m.acquirePIDFile(pid); err != nil {
			// Another instance started between our check - stop this one
			m.logger.Error("failed to acquire PID file, stopping duplicate instance", "error", err)
			_ = m.process.Stop() //nolint:errcheck // Error ignored - we're already handling a fatal error
			return fmt.Errorf("cannot start: %w", err)
		}
	}

	m.logger.Info("zwgd ready",
		"connection_url", m.config.ConnectionURL(),
		"serial_device", m.config.SerialDevice,
	)

	return nil
}

// waitForReady waits for zwgd to be ready to accept connections.
func (m *Manager) waitForReady(ctx context.Context) error {
	addr := fmt.Sprintf("localhost:%d", m.config.ListenPort)
	deadline := time.Now().Add(readyTimeout)

	m.logger.Debug("waiting for zwgd to be ready", "address", addr)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for zwgd: %w", ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for zwgd on %s after %v", addr, readyTimeout)
		}

		// Check if process is still running
		if !m.process.IsRunning() {
			lastErr := m.process.LastError()
			if lastErr != nil {
				return fmt.Errorf("zwgd process exited: %w", lastErr)
			}
			return errors.New("zwgd process exited unexpectedly")
		}

		// Try to connect
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		time.Sleep(readyPollInterval)
	}
}

// Stop gracefully stops the zwgd daemon.
func (m *Manager) Stop() error {
	if !m.config.Managed || m.process == nil {
		return nil
	}

	m.logger.Info("stopping zwgd")

	// Stop the process first, then remove PID file.
	// This prevents a race where a new instance could start before the old one
	// has fully released resources (TCP port, serial device).
	err := m.process.Stop()

	// Remove PID file after process has stopped
	m.removePIDFile()

	return err
}

// IsRunning returns true if zwgd is currently running.
func (m *Manager) IsRunning() bool {
	if !m.config.Managed {
		// If not managed, assume external zwgd is running
		return true
	}
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}

// IsManaged returns true if this manager is controlling zwgd.
func (m *Manager) IsManaged() bool {
	return m.config.Managed
}

// ConnectionURL returns the URL for connecting to zwgd.
func (m *Manager) ConnectionURL() string {
	return m.config.ConnectionURL()
}

// Stats returns current statistics for zwgd.
func (m *Manager) Stats() Stats {
	stats := Stats{
		Managed:       m.config.Managed,
		SerialDevice:  m.config.SerialDevice,
		ConnectionURL: m.config.ConnectionURL(),
	}

	if m.process != nil {
		procStats := m.process.Stats()
		stats.Status = string(procStats.Status)
		stats.PID = procStats.PID
		stats.Uptime = procStats.Uptime
		stats.RestartCount = procStats.RestartCount
		stats.LastError = procStats.LastError
	} else if !m.config.Managed {
		stats.Status = "external"
	} else {
		stats.Status = "stopped"
	}

	return stats
}

// Stats holds statistics about the zwgd daemon.
type Stats struct {
	Managed       bool          `json:"managed"`
	Status        string        `json:"status"`
	SerialDevice  string        `json:"serial_device"`
	ConnectionURL string        `json:"connection_url"`
	PID           int           `json:"pid,omitempty"`
	Uptime        time.Duration `json:"uptime,omitempty"`
	RestartCount  int           `json:"restart_count"`
	LastError     string        `json:"last_error,omitempty"`
}

// HealthCheck verifies zwgd and the serial controller are healthy.
//
// Layers:
//   - Layer 0: Serial device presence via stat
//   - Layer 1: Process state via /proc
//   - Layer 2: Session handshake over the gateway socket
//
// Layer 0 catches stick removal, which a restart cannot fix. Layers 1
// and 2 catch hung or wedged daemons, which a restart usually does fix.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if !m.config.Managed {
		return nil
	}

	// Layer 0: Serial device presence check
	// This is the fastest check and catches stick disconnection immediately
	// NOT RECOVERABLE: If hardware is missing, restarting zwgd won't help
	if err := m.checkSerialDevicePresent(); err != nil {
		return newHealthError(0, false, err)
	}

	// Layer 1: Verify process state via /proc (fast, catches SIGSTOP/zombie)
	// RECOVERABLE: Restarting will fix zombie/stopped states
	if m.process != nil {
		pid := m.process.PID()
		if pid > 0 {
			if err := m.checkProcessState(pid); err != nil {
				return newHealthError(1, true, err)
			}
		}
	}

	// Layer 2: Session handshake over the gateway socket
	// This verifies zwgd is actually processing messages, not just alive.
	// RECOVERABLE: A wedged event loop is fixed by a restart.
	if err := m.checkSessionHealth(ctx); err != nil {
		return newHealthError(2, true, err)
	}

	return nil
}

// checkSerialDevicePresent verifies the Z-Wave controller's serial port exists.
// This is Layer 0 of the health check - the fastest possible hardware check.
func (m *Manager) checkSerialDevicePresent() error {
	if _, err := os.Stat(m.config.SerialDevice); err != nil {
		return fmt.Errorf("serial device %s not present: %w", m.config.SerialDevice, err)
	}
	return nil
}

// checkSessionHealth performs end-to-end verification by opening a session
// on the gateway socket and waiting for the echoed confirmation. This verifies:
//   - zwgd is accepting connections
//   - zwgd's event loop is processing messages
//
// It does not touch the radio, so it is safe to run at any frequency.
func (m *Manager) checkSessionHealth(ctx context.Context) error {
	timeout := m.config.HealthCheckTimeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := fmt.Sprintf("localhost:%d", m.config.ListenPort)

	var d net.Dialer
	conn, err := d.DialContext(checkCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("session health check failed (connect): %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("session health check failed (set deadline): %w", err)
	}

	// Open-session message: flags(1) + reserved(2), subscribe_all off so
	// this probe session never receives node traffic.
	handshake := []byte{
		0x00, 0x05, // size = 5 (type + payload)
		byte(msgOpenSession >> 8), byte(msgOpenSession & 0xFF),
		0x00, 0x00, 0x00,
	}

	if _, err := conn.Write(handshake); err != nil {
		return fmt.Errorf("session health check failed (write handshake): %w", err)
	}

	// Read the response header: size(2) + type(2)
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		if isTimeoutError(err) {
			return fmt.Errorf("session health check failed: no response within %v", timeout)
		}
		return fmt.Errorf("session health check failed (read response): %w", err)
	}

	respType := uint16(header[2])<<8 | uint16(header[3])
	if respType != msgOpenSession {
		return fmt.Errorf("session health check failed: unexpected response type 0x%04X", respType)
	}

	m.logger.Debug("session health check passed", "address", addr)
	return nil
}

// isTimeoutError checks if an error is a timeout error.
func isTimeoutError(err error) bool {
	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}
	return false
}

// checkProcessState reads /proc/PID/stat to verify the process is in a healthy state.
// Returns an error if the process is stopped (T), traced (t), zombie (Z), or dead (X/x).
func (m *Manager) checkProcessState(pid int) error {
	// Read /proc/PID/stat which contains process state as the 3rd field
	// Format: pid (comm) state ...
	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	data, err := os.ReadFile(statPath)
	if err != nil {
		// Process might have just exited
		return fmt.Errorf("cannot read process state: %w", err)
	}

	// Parse the stat file. The state is the 3rd field, after "(comm)"
	// We need to find the closing ) of the comm field first
	statStr := string(data)
	closeParenIdx := strings.LastIndex(statStr, ")")
	if closeParenIdx == -1 || closeParenIdx+2 >= len(statStr) {
		return fmt.Errorf("invalid /proc/stat format")
	}

	// Fields after ) are space-separated, state is the first one
	fields := strings.Fields(statStr[closeParenIdx+2:])
	if len(fields) < 1 {
		return fmt.Errorf("invalid /proc/stat format: no state field")
	}

	state := fields[0]

	// Process states (from proc(5) man page):
	// R = running, S = sleeping, D = disk sleep (uninterruptible)
	// T = stopped (SIGSTOP), t = tracing stop
	// Z = zombie, X/x = dead
	// W = paging (not used since 2.6.xx), I = idle
	switch state {
	case "T", "t":
		return fmt.Errorf("zwgd process is stopped (state=%s)", state)
	case "Z":
		return fmt.Errorf("zwgd process is zombie (state=%s)", state)
	case "X", "x":
		return fmt.Errorf("zwgd process is dead (state=%s)", state)
	case "D":
		// D (uninterruptible sleep) is usually temporary (serial I/O).
		// However, if zwgd is stuck in D-state for multiple health checks,
		// the serial interface is likely hung and needs recovery.
		count := m.dStateCount.Add(1)
		if count >= 3 {
			return fmt.Errorf("zwgd process stuck in uninterruptible sleep (state=D, count=%d)", count)
		}
		m.logger.Debug("zwgd process in uninterruptible sleep (state=D)", "count", count)
		return nil
	default:
		// R, S, I are all healthy states - reset D-state counter
		m.dStateCount.Store(0)
		return nil
	}
}

// getPIDFilePath returns the path for the PID file, preferring /var/run but
// falling back to /tmp if that's not writable.
func (m *Manager) getPIDFilePath() string {
	// Try /var/run first (standard location for daemon PID files)
	if f, err := os.OpenFile(pidFilePath, os.O_CREATE|os.O_WRONLY, pidFileMode); err == nil {
		f.Close()
		os.Remove(pidFilePath) // Remove the test file
		return pidFilePath
	}
	// Fall back to /tmp
	return pidFileFallbackPath
}

// acquirePIDFile atomically creates the PID file and writes our PID.
// This uses O_EXCL to ensure no race condition between checking for existing
// instances and claiming the PID file.
//
// Returns nil on success (PID file created with our PID).
// Returns an error if another instance is already running.
func (m *Manager) acquirePIDFile(pid int) error {
	return m.acquirePIDFileWithRetry(pid, 0)
}

// maxPIDFileRetries limits recursion depth for PID file acquisition.
const maxPIDFileRetries = 3

// acquirePIDFileWithRetry implements PID file acquisition with bounded retries.
func (m *Manager) acquirePIDFileWithRetry(pid int, attempt int) error {
	if attempt >= maxPIDFileRetries {
		return fmt.Errorf("failed to acquire PID file after %d attempts", maxPIDFileRetries)
	}

	// Determine path once on first attempt and store it.
	// This ensures removePIDFile() uses the same path even if /var/run permissions change.
	if attempt == 0 {
		m.activePIDFilePath = m.getPIDFilePath()
	}
	pidFile := m.activePIDFilePath
	content := fmt.Sprintf("%d\n", pid)

	// Try atomic exclusive create - fails if file already exists
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, pidFileMode)
	if err == nil {
		// Success - we got the lock, write our PID
		defer f.Close()
		if _, writeErr := f.WriteString(content); writeErr != nil {
			os.Remove(pidFile)
			return fmt.Errorf("writing PID file: %w", writeErr)
		}
		m.logger.Debug("acquired PID file", "path", pidFile, "pid", pid)
		return nil
	}

	// File exists - check if it's stale
	if !os.IsExist(err) {
		return fmt.Errorf("creating PID file %s: %w", pidFile, err)
	}

	// Read existing PID
	data, readErr := os.ReadFile(pidFile)
	if readErr != nil {
		// Can't read it, try to remove and retry
		os.Remove(pidFile)
		return m.acquirePIDFileWithRetry(pid, attempt+1)
	}

	pidStr := strings.TrimSpace(string(data))
	existingPID, parseErr := strconv.Atoi(pidStr)
	if parseErr != nil {
		// Invalid PID file, remove and retry
		m.logger.Warn("removing invalid PID file", "path", pidFile, "content", pidStr)
		os.Remove(pidFile)
		return m.acquirePIDFileWithRetry(pid, attempt+1)
	}

	// Check if the existing PID is still alive
	if !m.isZwgdProcessAlive(existingPID) {
		// Stale PID file, remove and retry
		m.logger.Info("removing stale PID file", "path", pidFile, "stale_pid", existingPID)
		os.Remove(pidFile)
		return m.acquirePIDFileWithRetry(pid, attempt+1)
	}

	// Another zwgd instance is actually running
	return fmt.Errorf("another zwgd instance is already running (PID %d, file %s)", existingPID, pidFile)
}

// isZwgdProcessAlive checks if a process with the given PID is running and is zwgd.
func (m *Manager) isZwgdProcessAlive(pid int) bool {
	// Check if process exists and we can signal it
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds - send signal 0 to check if alive
	if signalErr := proc.Signal(syscall.Signal(0)); signalErr != nil {
		return false // Process is dead
	}

	// Process is alive - verify it's actually zwgd
	commPath := fmt.Sprintf("/proc/%d/comm", pid)
	commData, err := os.ReadFile(commPath)
	if err != nil {
		// Can't verify identity, assume it's not our zwgd
		return false
	}

	comm := strings.TrimSpace(string(commData))
	return comm == "zwgd"
}

// removePIDFile removes the PID file if it exists.
func (m *Manager) removePIDFile() {
	// Use the stored path from acquisition, not a fresh determination.
	// This ensures we remove the same file we created, even if /var/run permissions changed.
	pidFile := m.activePIDFilePath
	if pidFile == "" {
		return // Never acquired a PID file
	}
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove PID file", "path", pidFile, "error", err)
	} else if err == nil {
		m.logger.Debug("removed PID file", "path", pidFile)
	}
	m.activePIDFilePath = "" // Clear after removal
}
