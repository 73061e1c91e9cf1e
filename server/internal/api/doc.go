// Package api implements the HTTP REST API for relojcausal-server.
//
// New(deps).Router() returns a gorilla/mux router that serves:
//
//	GET    /api/reports      - dashboard payload (counts, means, latest, alert level)
//	POST   /api/reports      - report ingest (delegated to package receiver)
//	DELETE /api/reports      - clear the report buffer
//	GET    /api/query        - aggregates over the last query_window
//	GET    /api/config       - runtime settings
//	POST   /api/config       - update runtime settings
//	GET    /api/alerts       - firing and recently resolved alerts
//	GET    /api/diagnostics  - plain-language hints about the network
//	GET    /healthz          - liveness
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for methods a path does not serve
//   - Guard write routes (POST, DELETE) with the configured key middleware
//
// JSON types are defined in types.go.
package api
