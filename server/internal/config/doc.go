// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort          - port for ingest, REST API and WebSocket hub (default 8080)
//   - Auth.Mode         - "apikey" or "none"
//   - Auth.KeyEnv       - environment variable holding the expected API key
//   - Auth.Header       - HTTP header name (default "X-TCDS-KEY")
//   - CORS.AllowedOrigins
//   - Store             - capacity 2000, history 50, query_window 10m
//   - Runtime           - initial /api/config settings
//   - Query             - entropy_ok -0.2, locking_ok 0.9
//   - Alerts            - rules over the dashboard summary, webhooks
//   - StreamInterval    - WebSocket broadcast period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
