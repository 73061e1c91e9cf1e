// Package receiver implements POST /api/reports, the HTTP endpoint that
// accepts window reports from relojcausal-agent instances.
//
// Receiver.ServeHTTP decodes the report, defaults node_id ("anon") and
// region ("unknown"), normalises ts to millisecond UTC (missing or invalid
// values become the receive time) and rejects unknown classes or non-finite
// metrics with 400. Accepted reports get an ID, are added to the store, and
// trigger an alert evaluation over the refreshed summary. Authentication is
// enforced upstream by middleware (see package auth), so the receiver itself
// only performs structural validation.
package receiver
