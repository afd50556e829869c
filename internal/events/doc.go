// Package events carries progress notifications out of the orchestration core.
//
// Producers (engine, watcher, zero-touch trigger, batch dispatcher) publish
// typed payloads on named channels through a Sink. A Fanout delivers each
// event to every registered consumer: the WebSocket hub, the MQTT bridge,
// the activity history and the telemetry writer.
//
// Publish must not block for long; consumers that do I/O should buffer or
// drop rather than stall a flash.
package events
