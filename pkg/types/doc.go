// Package types defines the Go types shared by the agent and the server.
// Report is both the in-memory record the agent builds once per window and
// the JSON body the server ingests on POST /api/reports.
package types
