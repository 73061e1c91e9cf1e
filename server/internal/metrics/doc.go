// Package metrics exposes the server's own Prometheus metrics on /metrics:
// ingest counts by class, rejections by reason, buffer size, WebSocket
// clients, alerts fired and HTTP request latency per route.
package metrics
