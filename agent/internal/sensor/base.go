package sensor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/config"
)

const defaultFetchTimeout = 10 * time.Second

// ErrIncompleteReading is returned when a reading carries neither a
// magnitude nor all three axes.
var ErrIncompleteReading = errors.New("sensor: reading needs magnitude or x, y and z")

// Source is the common interface implemented by every sample source.
//
// Stream delivers samples on out until ctx is cancelled or the source is
// exhausted. It never closes out. A nil return means the source ended
// cleanly (end of file, ctx cancelled).
type Source interface {
	Stream(ctx context.Context, out chan<- compute.Sample) error
}

// Reading is one accelerometer reading as it appears on the wire.
// Either Mag or all of X, Y and Z must be set. T is milliseconds; TS is an
// ISO-8601 alternative used when T is absent.
type Reading struct {
	X   *float64 `json:"x,omitempty"`
	Y   *float64 `json:"y,omitempty"`
	Z   *float64 `json:"z,omitempty"`
	Mag *float64 `json:"magnitude,omitempty"`
	T   *float64 `json:"t,omitempty"`
	TS  string   `json:"ts,omitempty"`
}

// Magnitude returns the euclidean norm of a 3-axis reading.
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

// Sample converts r into a compute.Sample. now supplies the timestamp when
// the reading carries none.
func (r Reading) Sample(now func() float64) (compute.Sample, error) {
	var s compute.Sample
	switch {
	case r.Mag != nil:
		s.Magnitude = *r.Mag
	case r.X != nil && r.Y != nil && r.Z != nil:
		s.Magnitude = Magnitude(*r.X, *r.Y, *r.Z)
	default:
		return s, ErrIncompleteReading
	}

	switch {
	case r.T != nil:
		s.Timestamp = *r.T
	case r.TS != "":
		ts, err := iso8601.ParseString(r.TS)
		if err != nil {
			return s, fmt.Errorf("sensor: parse ts %q: %w", r.TS, err)
		}
		s.Timestamp = float64(ts.UnixMilli())
	default:
		s.Timestamp = now()
	}
	return s, nil
}

// New returns the appropriate Source for the given sensor configuration.
func New(cfg config.SensorConfig) (Source, error) {
	switch cfg.Type {
	case "jsonl":
		return &jsonlSource{path: cfg.Path}, nil
	case "prometheus":
		client, err := buildHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: build http client: %w", cfg.Endpoint, err)
		}
		return newPromSource(cfg, client), nil
	case "mqtt":
		return newMQTTSource(cfg), nil
	default:
		return nil, fmt.Errorf("sensor: unsupported type %q", cfg.Type)
	}
}

// send delivers s on out unless ctx is cancelled first.
func send(ctx context.Context, out chan<- compute.Sample, s compute.Sample) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

// sinceStart returns a clock in milliseconds elapsed since the first call.
func sinceStart(now func() time.Time) func() float64 {
	var start time.Time
	return func() float64 {
		t := now()
		if start.IsZero() {
			start = t
		}
		return float64(t.Sub(start)) / float64(time.Millisecond)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the sensor's auth and TLS settings.
func buildHTTPClient(cfg config.SensorConfig) (*http.Client, error) {
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	transport := &authRoundTripper{
		base: &http.Transport{TLSClientConfig: tlsCfg},
		auth: cfg.Auth,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultFetchTimeout,
	}, nil
}

// buildTLSConfig loads client certificates for mtls and applies the
// insecure-skip-verify toggle. It is shared by the HTTP and MQTT sources.
func buildTLSConfig(cfg config.SensorConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if cfg.Auth.Mode != "mtls" {
		return tlsCfg, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsCfg.Certificates = []tls.Certificate{cert}

	if cfg.Auth.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.Auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}
