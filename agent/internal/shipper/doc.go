// Package shipper sends window reports to the collector as JSON over HTTP
// (POST {collector_endpoint}/api/reports).
//
// Shipper.Ship() is non-blocking: a compute.Result is built into a
// types.Report and placed in an in-memory channel (default capacity 100).
// When the buffer is full the oldest report is evicted so the latest windows
// are always preserved. The sampling loop never waits on the network.
//
// Shipper.Run() drains the buffer, retrying transient failures with truncated
// exponential backoff (1s→60s, ±25% jitter). Every send is bounded by
// send_timeout. 4xx responses wrap ErrPermanent and discard the report.
//
// Auth: the API key header (X-TCDS-KEY by default) when collector_auth.mode
// is apikey.
//
// The Sender is injectable for testing.
package shipper
