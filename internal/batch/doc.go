// Package batch fans a single device action out across many devices.
//
// Tasks run concurrently, bounded by the configured parallelism. Each
// result is published on the batch.progress channel the moment its device
// finishes; the returned Job lists results in the order the serials were
// given, whatever order they completed in.
package batch
