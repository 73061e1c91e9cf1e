// Package security checks the TLS certificates of the endpoints an agent
// talks to: the collector, a Prometheus exporter, or an MQTT broker. The
// agent runs the check once at startup and logs certificates that are
// expired, about to expire, or cannot be inspected.
package security
