package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/config"
)

// Accelerometer gauge names read from a device exporter.
const (
	promAccelX = "accel_x"
	promAccelY = "accel_y"
	promAccelZ = "accel_z"

	// promAccelMagnitude is used directly when an exporter publishes the norm.
	promAccelMagnitude = "accel_magnitude"
)

// ErrNoAccelerometer is returned when a scrape contains no accelerometer gauges.
var ErrNoAccelerometer = errors.New("sensor: exposition has no accelerometer gauges")

type promSource struct {
	endpoint string
	every    time.Duration
	client   *http.Client
	now      func() time.Time
}

func newPromSource(cfg config.SensorConfig, client *http.Client) *promSource {
	return &promSource{
		endpoint: cfg.Endpoint,
		every:    cfg.PollInterval,
		client:   client,
		now:      time.Now,
	}
}

// Stream polls the exporter every poll interval and emits one sample per
// successful scrape. Failed scrapes are logged and skipped.
func (s *promSource) Stream(ctx context.Context, out chan<- compute.Sample) error {
	clock := sinceStart(s.now)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		mag, err := s.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("sensor: prometheus poll failed", "endpoint", s.endpoint, "err", err)
			continue
		}
		if !send(ctx, out, compute.Sample{Magnitude: mag, Timestamp: clock()}) {
			return nil
		}
	}
}

// poll scrapes the exporter once and returns the acceleration magnitude.
func (s *promSource) poll(ctx context.Context) (float64, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.endpoint)
	if err != nil {
		return 0, err
	}
	return magnitudeFromFamilies(mfs)
}

// magnitudeFromFamilies prefers an explicit magnitude gauge and otherwise
// combines the three axis gauges.
func magnitudeFromFamilies(mfs map[string]*dto.MetricFamily) (float64, error) {
	if mf, ok := mfs[promAccelMagnitude]; ok {
		return sumFamily(mf), nil
	}
	_, hasX := mfs[promAccelX]
	_, hasY := mfs[promAccelY]
	_, hasZ := mfs[promAccelZ]
	if !hasX || !hasY || !hasZ {
		return 0, ErrNoAccelerometer
	}
	return Magnitude(
		sumFamily(mfs[promAccelX]),
		sumFamily(mfs[promAccelY]),
		sumFamily(mfs[promAccelZ]),
	), nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all gauge or untyped values in a MetricFamily.
// Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
