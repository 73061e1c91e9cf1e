package main

import (
	"log/slog"
	"sync"
)

// intervalResolver picks the window interval from the config file and the
// collector's runtime settings. Once the collector has pushed a value, file
// reloads no longer override it.
type intervalResolver struct {
	mu     sync.Mutex
	file   int64
	remote int64
	apply  func(ms int64) bool
}

func newIntervalResolver(fileMs int64, apply func(ms int64) bool) *intervalResolver {
	return &intervalResolver{file: fileMs, apply: apply}
}

// fromFile records the interval read from a reloaded config file.
func (r *intervalResolver) fromFile(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.file = ms
	if r.remote > 0 {
		slog.Debug("config file interval shadowed by collector",
			"file_interval_ms", ms, "remote_interval_ms", r.remote)
		return
	}
	r.apply(ms)
}

// fromRemote records the interval advertised by the collector.
func (r *intervalResolver) fromRemote(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.apply(ms) {
		r.remote = ms
	}
}
