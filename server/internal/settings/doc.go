// Package settings holds the mutable runtime settings exposed on /api/config.
// Agents poll them to pick up a new report interval; the dashboard reads the
// mode hint and the alerts switch.
package settings
