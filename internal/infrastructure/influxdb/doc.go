// Package influxdb writes Flashline run telemetry to InfluxDB 2.x.
//
// Step durations, run outcomes and batch results are written as points so
// line supervisors can chart yield and per-step timing. Writes are
// non-blocking and batched by the client library; failures surface through
// the SetOnError callback.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	client.WritePoint("flash_step", tags, fields)
package influxdb
