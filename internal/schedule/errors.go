package schedule

import "errors"

var (
	// ErrInvalidEntry is returned when a schedule entry is incomplete or its
	// condition does not compile.
	ErrInvalidEntry = errors.New("schedule: invalid entry")

	// ErrInvalidDocument is returned when the schedule file cannot be parsed.
	ErrInvalidDocument = errors.New("schedule: invalid document")
)
