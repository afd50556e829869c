// Package zerotouch starts a plan automatically when a device appears.
//
// When enabled, a newly observed device that matches the optional target
// serial gets a visible countdown (one event per second) and then the
// configured plan runs against it. Each serial is processed at most once
// until an operator resets the processed set; a countdown in flight blocks
// a second countdown for the same serial. Cancelling a countdown leaves the
// device unprocessed.
//
// Events are published on the "zerotouch" channel:
//
//	{"serial":"R58M","status":"detected"}
//	{"serial":"R58M","status":"countdown","remaining":3}
//	{"serial":"R58M","status":"started"}
//	{"serial":"R58M","status":"cancelled"}
//	{"serial":"R58M","status":"error","message":"..."}
package zerotouch
