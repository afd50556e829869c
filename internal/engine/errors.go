package engine

import (
	"errors"
	"fmt"

	"github.com/nerrad567/flashline-core/internal/plan"
)

// Domain errors for the engine package.
var (
	// ErrCancelled is returned when a run stops because Cancel was called
	// or its context ended.
	ErrCancelled = errors.New("cancelled by user")

	// ErrRunInProgress is returned when Execute is called while a run is active.
	ErrRunInProgress = errors.New("engine: run already in progress")

	// ErrUnknownStep is returned when a step variant has no dispatch rule.
	ErrUnknownStep = errors.New("engine: unknown step")

	// ErrRunNotFound is returned by the Supervisor for an unknown run key.
	ErrRunNotFound = errors.New("engine: run not found")
)

// StepError reports the step that aborted a run.
type StepError struct {
	Index int // zero-based
	Kind  plan.Kind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index+1, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
