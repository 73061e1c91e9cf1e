// Package summary turns the report buffer into the two read models the
// dashboard consumes: the full-buffer Dashboard (class counts, means, recent
// reports, alert level) and the time-windowed Query aggregate.
//
// Both builders are pure functions of the entries and the clock, so the REST
// API, the WebSocket hub and the alert engine share one definition.
package summary
