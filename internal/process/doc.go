// Package process provides generic subprocess lifecycle management.
//
// This package is designed for managing long-running child processes like
// protocol gateway daemons (zwgd and friends) that Gray Logic depends on.
//
// Features:
//   - Start/stop subprocess with graceful shutdown
//   - Automatic restart on failure with exponential backoff
//   - Health monitoring and status reporting
//   - Log capture from subprocess stdout/stderr
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:              "zwgd",
//	    Binary:            "/usr/bin/zwgd",
//	    Args:              []string{"-d", "/dev/ttyACM0", "-p", "4711"},
//	    RestartOnFailure:  true,
//	    RestartDelay:      5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
