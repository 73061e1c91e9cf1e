package settings

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relojcausal/relojcausal/server/internal/config"
)

// MinReportIntervalMs is the exclusive lower bound for report_interval_ms.
// Smaller values in an update are ignored rather than rejected.
const MinReportIntervalMs = 500

// ErrInvalidModeHint is returned by Update for an unknown mode_hint.
var ErrInvalidModeHint = errors.New("settings: invalid mode_hint")

// Runtime is the settings document served on /api/config.
type Runtime struct {
	ModeHint         string `json:"mode_hint"`
	ReportIntervalMs int64  `json:"report_interval_ms"`
	AlertsEnabled    bool   `json:"alerts_enabled"`
	Version          string `json:"version"`
	UpdatedAt        string `json:"updated_at"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	ModeHint         *string `json:"mode_hint"`
	ReportIntervalMs *int64  `json:"report_interval_ms"`
	AlertsEnabled    *bool   `json:"alerts_enabled"`
}

// Holder guards the mutable runtime settings.
type Holder struct {
	mu  sync.RWMutex
	cur Runtime
	now func() time.Time
}

// New seeds a Holder from the server config.
func New(rc config.RuntimeConfig) *Holder {
	h := &Holder{now: time.Now}
	h.cur = Runtime{
		ModeHint:         rc.ModeHint,
		ReportIntervalMs: rc.ReportIntervalMs,
		AlertsEnabled:    rc.AlertsEnabled,
		Version:          rc.Version,
		UpdatedAt:        stamp(h.now()),
	}
	return h
}

// Get returns a copy of the current settings.
func (h *Holder) Get() Runtime {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// AlertsEnabled reports whether alert evaluation is switched on.
func (h *Holder) AlertsEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur.AlertsEnabled
}

// Update applies p and returns the resulting settings. An unknown mode_hint
// fails the whole update; a report_interval_ms at or below
// MinReportIntervalMs is ignored.
func (h *Holder) Update(p Patch) (Runtime, error) {
	if p.ModeHint != nil && !config.ValidModeHint(*p.ModeHint) {
		return h.Get(), fmt.Errorf("%w: %q", ErrInvalidModeHint, *p.ModeHint)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if p.ModeHint != nil {
		h.cur.ModeHint = *p.ModeHint
	}
	if p.ReportIntervalMs != nil && *p.ReportIntervalMs > MinReportIntervalMs {
		h.cur.ReportIntervalMs = *p.ReportIntervalMs
	}
	if p.AlertsEnabled != nil {
		h.cur.AlertsEnabled = *p.AlertsEnabled
	}
	h.cur.UpdatedAt = stamp(h.now())
	return h.cur, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
