package shipper

import (
	"time"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/pkg/types"
)

// TimestampLayout is the ISO-8601 layout stamped on outgoing reports.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Build turns a window Result into the Report sent to the collector, stamped
// with now in UTC.
func Build(res compute.Result, nodeID, region string, now time.Time) types.Report {
	verdict := types.EVetoPhiOrArtefact
	if res.EVeto {
		verdict = types.EVetoQDrivenValid
	}
	return types.Report{
		NodeID:    nodeID,
		Region:    region,
		Metrics:   res.Metrics,
		Label:     res.Label,
		Timestamp: now.UTC().Format(TimestampLayout),
		Meta: types.Meta{
			KappaSigma:  res.Metrics.KappaSigma,
			SampleCount: res.SampleCount,
			EVetoClass:  verdict,
		},
		Derived: res.Derived,
	}
}
