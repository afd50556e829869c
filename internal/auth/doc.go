// Package auth issues and validates the bearer tokens that guard the
// control API.
//
// Tokens are HS256-signed JWTs carrying a subject (operator name or
// automation identity) and one of two roles:
//
//   - viewer: may read devices, runs, history and schedules
//   - operator: may additionally start, pause, resume and cancel runs,
//     dispatch batches and change zero-touch and schedule settings
//
// Tokens are stateless: there is no user store and no refresh flow. They
// are minted with "flashline --issue-token <subject> --role <role>".
package auth
