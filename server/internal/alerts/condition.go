package alerts

import (
	"strconv"
	"strings"

	"github.com/relojcausal/relojcausal/server/internal/summary"
)

// evalCondition evaluates a rule condition string against the dashboard summary.
//
// Supported expressions (field operator value):
//
//	q_ratio > 0.25
//	dh_mean < -0.5
//	li_mean > 0.9
//	kappa_mean > 1.0
//	active_nodes < 1
//	total_events >= 100
//	alert_level == warning
//
// Means are undefined on an empty buffer; rules over them never fire then.
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, d summary.Dashboard) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "alert_level" {
		switch op {
		case "==":
			return string(d.AlertLevel) == rhs, d.QRatio()
		case "!=":
			return string(d.AlertLevel) != rhs, d.QRatio()
		}
		return false, 0
	}

	v, ok := numericField(field, d)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the summary.
func numericField(field string, d summary.Dashboard) (float64, bool) {
	switch field {
	case "q_ratio":
		return d.QRatio(), true
	case "active_nodes":
		return float64(d.ActiveNodes), true
	case "total_events":
		return float64(d.Stats.TotalEvents), true
	case "dh_mean":
		return deref(d.DHMean)
	case "li_mean":
		return deref(d.LIMean)
	case "kappa_mean":
		return deref(d.Stats.Averages.KappaSigma)
	default:
		return 0, false
	}
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
