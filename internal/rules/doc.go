// Package rules evaluates boolean CEL expressions against named inputs.
//
// An Evaluator owns one CEL environment whose variables are all dynamically
// typed. Compiled programs are cached per expression, so repeated checks of
// the same rule (a schedule condition evaluated on every device arrival, a
// safety rule evaluated on every request) only pay the compile cost once.
package rules
