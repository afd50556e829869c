package adbserver

import "errors"

var (
	// ErrInvalidConfig is returned by NewManager for unusable settings.
	ErrInvalidConfig = errors.New("adbserver: invalid config")

	// ErrUnhealthy is returned when the server does not answer a host
	// request with OKAY.
	ErrUnhealthy = errors.New("adbserver: server unhealthy")

	// ErrNotReady is returned when the server does not come up in time.
	ErrNotReady = errors.New("adbserver: server not ready")
)
