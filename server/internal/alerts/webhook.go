package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/relojcausal/relojcausal/server/internal/summary"
)

// notification is the body posted to "http" webhooks.
type notification struct {
	Event   string `json:"event"` // "alert.firing" | "alert.resolved"
	Class   string `json:"class"`
	Summary string `json:"summary"`
	Alert   *Alert `json:"alert"`
}

// fact is one labelled value shown in Slack attachments and Teams cards.
type fact struct {
	Name  string
	Value string
}

// deliver sends webhook notifications for a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = httpPayload(a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, body); err != nil {
			if e.rec != nil {
				e.rec.WebhookError()
			}
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"alert_level", a.Network.AlertLevel,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type,
			"rule", a.RuleName,
			"state", a.State,
		)
	}
}

// networkClass names the coherence regime the network was in when a fired
// or resolved.
func networkClass(level summary.AlertLevel) string {
	switch level {
	case summary.AlertWarning:
		return "Coherent Q burst"
	case summary.AlertWatch:
		return "Q share rising"
	default:
		return "Baseline"
	}
}

// headline is the one-line description shared by every payload.
func headline(a *Alert) string {
	n := a.Network
	verb := "fired"
	if a.State == "resolved" {
		verb = "resolved"
	}
	return fmt.Sprintf("%s %s: %s (alert level %s, q_ratio %.2f, %d reports from %d nodes)",
		a.RuleName, verb, a.Condition, n.AlertLevel, n.QRatio, n.TotalEvents, n.ActiveNodes)
}

func facts(a *Alert) []fact {
	n := a.Network
	return []fact{
		{"Condition", a.Condition},
		{"State", a.State},
		{"Value", strconv.FormatFloat(a.Value, 'f', 3, 64)},
		{"Alert level", string(n.AlertLevel)},
		{"Q ratio", strconv.FormatFloat(n.QRatio, 'f', 2, 64)},
		{"Active nodes", strconv.Itoa(n.ActiveNodes)},
		{"Reports (phi/borderline/q)", fmt.Sprintf("%d (%d/%d/%d)",
			n.TotalEvents, n.Counts.Phi, n.Counts.Borderline, n.Counts.Q)},
		{"Mean dH", formatMean(n.DHMean)},
		{"Mean LI", formatMean(n.LIMean)},
	}
}

func formatMean(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}

func slackPayload(a *Alert) []byte {
	fs := facts(a)
	fields := make([]map[string]any, 0, len(fs))
	for _, f := range fs {
		fields = append(fields, map[string]any{"title": f.Name, "value": f.Value, "short": true})
	}
	body, _ := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*%s* %s: %s", severityLabel(a.Severity), networkClass(a.Network.AlertLevel), headline(a)),
		"attachments": []map[string]any{{
			"color":  "#" + severityColor(a.Severity),
			"title":  networkClass(a.Network.AlertLevel),
			"fields": fields,
		}},
	})
	return body
}

func teamsPayload(a *Alert) []byte {
	class := networkClass(a.Network.AlertLevel)
	title := fmt.Sprintf("Reloj Causal: %s", class)
	if a.State == "resolved" {
		title += " (resolved)"
	}
	fs := facts(a)
	cardFacts := make([]map[string]string, 0, len(fs))
	for _, f := range fs {
		cardFacts = append(cardFacts, map[string]string{"name": f.Name, "value": f.Value})
	}
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    class,
		"title":      title,
		"text":       headline(a),
		"sections": []map[string]any{{
			"activityTitle":    a.RuleName,
			"activitySubtitle": severityLabel(a.Severity),
			"facts":            cardFacts,
		}},
	})
	return body
}

func httpPayload(a *Alert) []byte {
	body, _ := json.Marshal(notification{
		Event:   "alert." + a.State,
		Class:   networkClass(a.Network.AlertLevel),
		Summary: headline(a),
		Alert:   a,
	})
	return body
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
