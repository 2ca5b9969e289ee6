// Package zwgd provides management of the zwgd gateway daemon process.
//
// zwgd (Z-Wave gateway daemon) multiplexes the Z-Wave serial controller
// onto a socket for clients like the Z-Wave bridge. This package manages
// zwgd as a subprocess of the daemon, providing:
//
//   - Configuration-driven startup (no manual init scripts)
//   - Automatic restart on failure
//   - Health monitoring (serial device, process state, session handshake)
//   - Graceful shutdown coordination
//
// The zwgd process is started with command-line arguments derived from
// the YAML configuration, eliminating the need for engineers to manually
// edit system configuration files.
//
// Example configuration (in config.yaml):
//
//	protocols:
//	  zwave:
//	    enabled: true
//	    zwgd:
//	      managed: true
//	      binary: "/usr/bin/zwgd"
//	      serial_device: "/dev/ttyACM0"
//	      listen_port: 4711
//
// When the daemon starts, it will spawn zwgd with the appropriate
// arguments and monitor it throughout the application lifecycle.
package zwgd
