// Package store provides the thread-safe in-memory ring buffer that holds the
// most recent reports received from agents. It is created once in main and
// passed to every consumer; there is no package-level state.
package store
