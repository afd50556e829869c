package device

import "errors"

// ErrDeviceNotFound is returned when a serial is not in the current snapshot.
var ErrDeviceNotFound = errors.New("device: not found")
