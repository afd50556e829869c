package adapter

import "errors"

var (
	// ErrToolNotFound is returned when the adb or fastboot binary cannot be executed.
	ErrToolNotFound = errors.New("adapter: tool not found")

	// ErrCommandFailed is returned when a tool exits non-zero.
	ErrCommandFailed = errors.New("adapter: command failed")

	// ErrUnsupportedMode is returned for a reboot mode the tool cannot reach.
	ErrUnsupportedMode = errors.New("adapter: unsupported reboot mode")

	// ErrVersionTooOld is returned when an installed tool is below the configured minimum.
	ErrVersionTooOld = errors.New("adapter: tool version below minimum")
)
