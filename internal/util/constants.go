// Package util provides common utility functions and constants used across
// vpnpick. This package is intentionally kept dependency-free (no imports from
// other internal/* packages) to serve as a shared foundation without
// introducing circular dependencies.
package util

import "time"

const (
	// DefaultProbePort is the port dialed by the latency probe. Tunnel servers
	// keep a plain TCP listener there, so a completed handshake is a cheap
	// reachability signal.
	DefaultProbePort = 80

	// DefaultProbeTimeout bounds a single connect attempt. A probe that does
	// not complete its handshake within this window is unreachable.
	DefaultProbeTimeout = 2 * time.Second

	// DefaultMaxConcurrentProbes caps in-flight probes during a ranking pass,
	// so N endpoints cost about ceil(N/10) timeout windows in the worst case.
	DefaultMaxConcurrentProbes = 10

	// FastestFallback is the reference latency for tier classification when
	// no endpoint answered.
	FastestFallback = time.Second

	// DefaultSettleDelay is the wait between launching the tunnel process and
	// the public IP check. Checking earlier reports the pre-tunnel address.
	DefaultSettleDelay = 5 * time.Second

	// DefaultPollInterval is the liveness poll period while connected.
	DefaultPollInterval = time.Second

	// DefaultTerminateGrace bounds the wait after SIGTERM. Past it the
	// supervisor gives up waiting and returns to the caller.
	DefaultTerminateGrace = 5 * time.Second

	// Unknown is displayed for geolocation fields the service did not return.
	Unknown = "Unknown"
)
