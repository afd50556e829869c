// Package history keeps the station's activity log in SQLite.
//
// Rows are written by a Sink that listens on the event bus: every finished
// run, every batch task result and each zero-touch lifecycle change (but not
// countdown ticks) becomes one activity_log row. Writes happen on a
// background goroutine so a slow disk never stalls a running plan.
package history
