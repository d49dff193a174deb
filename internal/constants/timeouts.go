package constants

import "time"

const (
	// DefaultDialTimeout bounds TCP connect to the API host.
	DefaultDialTimeout = 10 * time.Second
	// DefaultTLSHandshakeTimeout bounds the TLS handshake.
	DefaultTLSHandshakeTimeout = 10 * time.Second
	// DefaultResponseHeaderTimeout is zero: requests wait on the transport default.
	DefaultResponseHeaderTimeout = 0
	// DefaultExpectContinueTimeout mirrors net/http defaults.
	DefaultExpectContinueTimeout = 1 * time.Second
	// DefaultHandshakeTimeout bounds the detached visitor bootstrap attempt.
	DefaultHandshakeTimeout = 30 * time.Second
	// ConfigReloadDebounce coalesces bursts of config file writes.
	ConfigReloadDebounce = 100 * time.Millisecond
	// StorageWatchDebounce coalesces bursts of credential file writes.
	StorageWatchDebounce = 50 * time.Millisecond
	// ServerShutdownTimeout bounds graceful dev server shutdown.
	ServerShutdownTimeout = 10 * time.Second
)
