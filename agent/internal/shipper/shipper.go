package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/config"
	"github.com/relojcausal/relojcausal/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// ErrPermanent marks a delivery the collector refused for good (4xx).
// The report is discarded rather than retried.
var ErrPermanent = errors.New("shipper: report rejected")

// Ack is the collector's answer to a delivered report.
type Ack struct {
	OK    bool        `json:"ok"`
	ID    string      `json:"id"`
	Class types.Label `json:"class"`
	TS    string      `json:"ts"`
	Error string      `json:"error,omitempty"`
}

// Sender delivers one report to the collector.
type Sender interface {
	Send(ctx context.Context, r types.Report) (Ack, error)
}

// Shipper buffers reports and delivers them to the collector.
// Ship() is non-blocking; when the buffer is full the oldest report is evicted.
// Run() must be called in a goroutine to drain the buffer and retry failures.
type Shipper struct {
	cfg         config.AgentConfig
	buf         chan types.Report
	sender      Sender // injectable for tests
	now         func() time.Time
	sendTimeout time.Duration
}

// New creates a Shipper posting to cfg.CollectorEndpoint.
func New(cfg config.AgentConfig) *Shipper {
	return NewWithSender(cfg, NewHTTPSender(cfg, &http.Client{}))
}

// NewWithSender creates a Shipper that delivers through sender.
func NewWithSender(cfg config.AgentConfig, sender Sender) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = config.DefaultSendTimeout
	}
	return &Shipper{
		cfg:         cfg,
		buf:         make(chan types.Report, size),
		sender:      sender,
		now:         time.Now,
		sendTimeout: timeout,
	}
}

// Ship builds a report from res and enqueues it.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(res compute.Result) types.Report {
	r := Build(res, s.cfg.NodeID, s.cfg.Region, s.now())
	s.enqueue(r)
	return r
}

func (s *Shipper) enqueue(r types.Report) {
	select {
	case s.buf <- r:
	default:
		// Buffer full: drop the oldest report, keep the newest.
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest report",
				"node", r.NodeID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- r
	}
}

// Pending returns the number of buffered reports.
func (s *Shipper) Pending() int {
	return len(s.buf)
}

// Run drains the buffer, sending reports to the collector.
// Transient failures are retried with exponential backoff; the report being
// retried is kept in hand so delivery order is preserved.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		var r types.Report
		select {
		case <-ctx.Done():
			return
		case r = <-s.buf:
		}

		for {
			err := s.deliver(ctx, r)
			if err == nil {
				bo.reset()
				break
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrPermanent) {
				slog.Error("shipper: permanent send error, discarding report",
					"node", r.NodeID, "class", r.Label, "err", err)
				break
			}

			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.cfg.CollectorEndpoint,
				"err", err,
				"retry_in", wait,
				"pending", len(s.buf))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// Flush makes one delivery attempt for every buffered report. It is used on
// shutdown; failures are logged and the report dropped.
func (s *Shipper) Flush(ctx context.Context) int {
	sent := 0
	for {
		select {
		case r := <-s.buf:
			if err := s.deliver(ctx, r); err != nil {
				slog.Warn("shipper: flush dropped report", "node", r.NodeID, "err", err)
				continue
			}
			sent++
		default:
			return sent
		}
	}
}

// deliver sends one report under the per-send timeout.
func (s *Shipper) deliver(ctx context.Context, r types.Report) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	ack, err := s.sender.Send(sendCtx, r)
	if err != nil {
		return err
	}
	if !ack.OK {
		slog.Warn("shipper: collector did not acknowledge report",
			"node", r.NodeID, "message", ack.Error)
		return nil
	}
	if ack.Class != "" && ack.Class != r.Label {
		slog.Warn("shipper: collector echoed a different class",
			"sent", r.Label, "echoed", ack.Class)
	}
	slog.Debug("shipper: report delivered", "node", r.NodeID, "id", ack.ID, "class", ack.Class)
	return nil
}

// httpSender posts reports as JSON to {collector}/api/reports.
type httpSender struct {
	client *http.Client
	url    string
	auth   config.AuthConfig
}

// NewHTTPSender returns a Sender that posts to cfg.CollectorEndpoint.
func NewHTTPSender(cfg config.AgentConfig, client *http.Client) Sender {
	return &httpSender{
		client: client,
		url:    strings.TrimRight(cfg.CollectorEndpoint, "/") + "/api/reports",
		auth:   cfg.CollectorAuth,
	}
}

func (h *httpSender) Send(ctx context.Context, r types.Report) (Ack, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: encode: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.auth.Mode == "apikey" {
		req.Header.Set(h.auth.EffectiveHeader(), h.auth.Key())
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Ack{}, fmt.Errorf("collector returned HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return Ack{}, fmt.Errorf("%w: HTTP %d: %s", ErrPermanent, resp.StatusCode, bytes.TrimSpace(data))
	}

	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	return ack, nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
