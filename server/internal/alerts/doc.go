// Package alerts implements the rule evaluation engine and webhook delivery
// for network-wide coherence alerts. Rules are evaluated against the
// dashboard summary after every ingested report; webhooks are delivered to
// Teams, Slack, or generic HTTP targets.
package alerts
