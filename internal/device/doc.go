// Package device holds the presence model for attached devices.
//
// A Status is one row of `adb devices` or `fastboot devices` output. The
// Registry keeps the most recent merged snapshot published by the watcher
// so API handlers can answer without shelling out to the tools.
package device
