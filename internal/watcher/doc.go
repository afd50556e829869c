// Package watcher polls adb and fastboot for attached devices.
//
// Each tick enumerates both tools in parallel, merges the results by serial
// (adb wins when a serial shows up in both) and publishes the merged list on
// the device.status channel. Subscribers are told which serials are new
// since the previous tick; the zero-touch trigger and schedule matcher hang
// off that notification.
//
// A failed enumeration counts as "no devices" for that tool. The loop only
// stops when its context ends.
package watcher
