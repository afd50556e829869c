// Package api implements the HTTP REST API and WebSocket server for the
// Flashline provisioning station.
//
// This package provides:
//   - REST endpoints for devices, plan runs, batch actions, zero-touch,
//     schedules, history and brick-risk checks
//   - WebSocket hub relaying engine, watcher and batch events
//   - JWT bearer authentication with viewer/operator roles
//   - Middleware stack (request ID, logging, recovery, CORS, rate limit)
//
// # Architecture
//
// The server is a thin layer over the run supervisor and the other station
// components. Long operations are started with 202 Accepted and observed
// over the WebSocket or the run endpoints; nothing in a handler waits for a
// device.
//
// # Security
//
// When security.auth_enabled is false every route is open. Otherwise all
// routes except /health require a bearer token, and mutating requests need
// the operator role. Browsers that cannot set headers on a WebSocket
// upgrade may pass the token as the access_token query parameter.
package api
