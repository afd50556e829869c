package plan

import "errors"

// Domain errors for the plan package.
//
//	if errors.Is(err, plan.ErrEmptyPlan) {
//	    // reject upload
//	}
var (
	// ErrEmptyPlan is returned when a plan has no steps.
	ErrEmptyPlan = errors.New("plan must contain at least one step")

	// ErrInvalidDocument is returned when a plan document cannot be decoded
	// or fails schema or semantic validation.
	ErrInvalidDocument = errors.New("plan: invalid document")

	// ErrUnknownStepType is returned when a step's type is not part of the vocabulary.
	ErrUnknownStepType = errors.New("plan: unknown step type")
)
