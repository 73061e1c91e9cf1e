// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent} - agent config tree parsed from YAML
//   - AgentConfig - node_id, region, collector_endpoint, interval_ms,
//     window_capacity, buffer_size, send_timeout, remote_config,
//     collector_auth, sensor, thresholds
//   - SensorConfig - type (jsonl|prometheus|mqtt) with per-type fields
//   - AuthConfig - mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, password_env; secrets resolve from the
//     environment
//
// Load(path) reads the YAML file, applies defaults (5000 ms window, 4096
// sample capacity, 100 buffered reports, 10s send timeout), then validates.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory so that
// both in-place writes and atomic renames trigger a reload.
//
// Poll(ctx, client, url, every, onInterval) pulls report_interval_ms from the
// collector's /api/config; failures keep the last known interval.
package config
