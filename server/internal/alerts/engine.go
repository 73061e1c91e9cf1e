package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relojcausal/relojcausal/server/internal/config"
	"github.com/relojcausal/relojcausal/server/internal/summary"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Recorder receives alert counters. *metrics.Metrics satisfies it.
type Recorder interface {
	AlertFired(rule, severity string)
	WebhookError()
}

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
	Network    Snapshot   `json:"network"`
}

// Snapshot is the network state an alert fired or resolved against.
type Snapshot struct {
	AlertLevel  summary.AlertLevel `json:"alert_level"`
	QRatio      float64            `json:"q_ratio"`
	ActiveNodes int                `json:"active_nodes"`
	TotalEvents int                `json:"total_events"`
	Counts      summary.Counts     `json:"counts"`
	DHMean      *float64           `json:"dh_mean"`
	LIMean      *float64           `json:"li_mean"`
}

func snapshotOf(d summary.Dashboard) Snapshot {
	return Snapshot{
		AlertLevel:  d.AlertLevel,
		QRatio:      d.QRatio(),
		ActiveNodes: d.ActiveNodes,
		TotalEvents: d.Stats.TotalEvents,
		Counts:      d.Stats.Counts,
		DHMean:      d.DHMean,
		LIMean:      d.LIMean,
	}
}

// Engine evaluates alert rules against the network dashboard summary and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	rec      Recorder

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates an Engine from the server alert configuration. rec may be nil.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, rec Recorder) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		rec:      rec,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Evaluate tests all configured rules against d.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(d summary.Dashboard) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range e.rules {
		key := rule.Name
		fires, value := evalCondition(rule.Condition, d)

		e.mu.Lock()

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			_, firing := e.active[key]
			if !firing && now.Sub(e.lastFire[key]) > cooldown {
				sev := rule.Severity
				if sev == "" {
					sev = "warning"
				}
				a := &Alert{
					ID:        uuid.NewString(),
					RuleName:  rule.Name,
					Condition: rule.Condition,
					Severity:  sev,
					Value:     value,
					Message: fmt.Sprintf("[%s] %s fired: %s (value %.3f, %d nodes)",
						sev, rule.Name, rule.Condition, value, d.ActiveNodes),
					FiredAt: now,
					State:   "firing",
					Network: snapshotOf(d),
				}
				e.active[key] = a
				e.lastFire[key] = now
				alertCopy := *a
				e.mu.Unlock()

				slog.Warn("alerts: alert fired",
					"rule", rule.Name,
					"value", value,
					"severity", sev,
				)
				if e.rec != nil {
					e.rec.AlertFired(rule.Name, sev)
				}
				e.dispatch(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		} else {
			if a, ok := e.active[key]; ok && a.State == "firing" {
				resolved := now
				a.State = "resolved"
				a.ResolvedAt = &resolved
				a.Network = snapshotOf(d)
				delete(e.active, key)

				e.history = append(e.history, a)
				if len(e.history) > maxHistoryLen {
					e.history = e.history[len(e.history)-maxHistoryLen:]
				}
				alertCopy := *a
				e.mu.Unlock()

				slog.Info("alerts: alert resolved", "rule", rule.Name)
				e.dispatch(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until in-flight webhook deliveries have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(a)
	}()
}
