// Package safety assesses the brick risk of a flash before it happens.
//
// Risk rules are CEL expressions over the flash context (device model,
// current firmware, target ROM and target Android version). All context
// fields are lower-cased before evaluation so rules can match with plain
// contains() checks. The first matching rule in declaration order decides
// the result; when none match the flash is reported safe.
package safety
