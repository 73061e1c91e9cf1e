package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// MinRemoteIntervalMs is the smallest window interval the collector may
// suggest. Smaller values are ignored.
const MinRemoteIntervalMs = 500

const remoteTimeout = 10 * time.Second

// ErrNoInterval is returned by Fetch when the collector's response carries no
// usable report_interval_ms.
var ErrNoInterval = errors.New("config: remote config has no usable report_interval_ms")

// Remote is the subset of the collector's runtime settings the agent acts on.
type Remote struct {
	ModeHint         string `json:"mode_hint"`
	ReportIntervalMs int64  `json:"report_interval_ms"`
	AlertsEnabled    bool   `json:"alerts_enabled"`
	Version          string `json:"version"`
}

type remoteEnvelope struct {
	OK     bool    `json:"ok"`
	Config *Remote `json:"config"`
}

// RemoteURL derives the runtime-settings URL from a collector base URL.
func RemoteURL(collector string) string {
	return strings.TrimRight(collector, "/") + "/api/config"
}

// Fetch performs a single GET of the collector's runtime settings.
func Fetch(ctx context.Context, client *http.Client, url string) (Remote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Remote{}, fmt.Errorf("config: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Remote{}, fmt.Errorf("config: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return Remote{}, fmt.Errorf("config: GET %s: HTTP %d", url, resp.StatusCode)
	}

	var env remoteEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err != nil {
		return Remote{}, fmt.Errorf("config: decode remote config: %w", err)
	}
	if env.Config == nil || env.Config.ReportIntervalMs <= MinRemoteIntervalMs {
		return Remote{}, ErrNoInterval
	}
	return *env.Config, nil
}

// Poll fetches the collector's runtime settings every `every` and calls
// onInterval whenever report_interval_ms differs from the last value seen.
// Fetch failures are logged and the last known interval stays in force.
// Poll blocks until ctx is cancelled.
func Poll(ctx context.Context, client *http.Client, url string, every time.Duration, onInterval func(ms int64)) {
	var last int64

	check := func() {
		reqCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
		defer cancel()

		remote, err := Fetch(reqCtx, client, url)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("config: remote fetch failed, keeping last interval",
					"url", url, "err", err)
			}
			return
		}
		if remote.ReportIntervalMs == last {
			return
		}
		last = remote.ReportIntervalMs
		slog.Info("config: remote interval changed",
			"report_interval_ms", last, "mode_hint", remote.ModeHint)
		onInterval(last)
	}

	check()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
