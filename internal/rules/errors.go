package rules

import "errors"

var (
	// ErrCompile is returned when an expression fails to parse or type-check.
	ErrCompile = errors.New("rules: compile failed")

	// ErrEval is returned when a compiled expression fails at runtime.
	ErrEval = errors.New("rules: evaluation failed")

	// ErrNotBool is returned when an expression yields a non-boolean value.
	ErrNotBool = errors.New("rules: result is not a bool")
)
