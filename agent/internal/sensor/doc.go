// Package sensor turns raw accelerometer feeds into compute.Sample values.
//
// Every source implements Source:
//
//	Stream(ctx, out chan<- compute.Sample) error
//
// Supported types:
//   - jsonl - newline-delimited JSON readings from a file or stdin
//   - prometheus - polls a device exporter for accel_x/accel_y/accel_z gauges
//     (or a single accel_magnitude gauge)
//   - mqtt - subscribes to a broker topic carrying JSON readings
//
// A reading is {"x","y","z","t"} or {"magnitude","t"}; t is milliseconds,
// "ts" may carry an ISO-8601 timestamp instead. Sources that have no
// timestamp on the wire stamp samples with milliseconds since they started.
//
// HTTP sources share one authenticated client per source (apikey, bearer,
// basic or mtls).
package sensor
