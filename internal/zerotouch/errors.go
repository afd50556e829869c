package zerotouch

import "errors"

var (
	// ErrNoPlanPath is returned when zero-touch is enabled without a plan.
	ErrNoPlanPath = errors.New("zerotouch: enabled without a plan path")

	// ErrCountdownTooLong is returned for countdowns above MaxCountdownSeconds.
	ErrCountdownTooLong = errors.New("zerotouch: countdown too long")
)
