package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/config"
	"github.com/relojcausal/relojcausal/agent/internal/shipper"
	"github.com/relojcausal/relojcausal/pkg/types"
)

// sliceSource streams a fixed list of samples and then stops with err.
type sliceSource struct {
	samples []compute.Sample
	err     error
}

func (s *sliceSource) Stream(ctx context.Context, out chan<- compute.Sample) error {
	for _, smp := range s.samples {
		select {
		case out <- smp:
		case <-ctx.Done():
			return nil
		}
	}
	return s.err
}

// blockingSource sends nothing until ctx is cancelled.
type blockingSource struct{}

func (blockingSource) Stream(ctx context.Context, _ chan<- compute.Sample) error {
	<-ctx.Done()
	return nil
}

// recordingSender keeps every report it is handed and answers with fail.
type recordingSender struct {
	mu      sync.Mutex
	reports []types.Report
	fail    error
}

func (r *recordingSender) Send(_ context.Context, rep types.Report) (shipper.Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	if r.fail != nil {
		return shipper.Ack{}, r.fail
	}
	return shipper.Ack{OK: true, Class: rep.Label}, nil
}

func (r *recordingSender) sampleCounts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.reports))
	for i, rep := range r.reports {
		out[i] = rep.Meta.SampleCount
	}
	return out
}

// windowSamples returns samples every 10ms from t=0 to t=250 with three
// invalid samples mixed in after t=50. With a 100ms interval that makes
// windows of 11 and 10 samples plus a trailing partial window of 5.
func windowSamples() []compute.Sample {
	var out []compute.Sample
	for i := 0; i <= 25; i++ {
		ts := float64(i * 10)
		out = append(out, compute.Sample{Magnitude: 9.8 + 0.5*math.Sin(float64(i)), Timestamp: ts})
		if i == 5 {
			out = append(out,
				compute.Sample{Magnitude: math.NaN(), Timestamp: ts},
				compute.Sample{Magnitude: -1, Timestamp: ts},
				compute.Sample{Magnitude: 9.8, Timestamp: math.Inf(1)},
			)
		}
	}
	return out
}

func newTestPipeline(sender shipper.Sender) *pipeline {
	cfg := config.AgentConfig{NodeID: "bench", BufferSize: 16, SendTimeout: time.Second}
	return &pipeline{
		engine: compute.NewEngine(100, 0, compute.DefaultThresholds()),
		ship:   shipper.NewWithSender(cfg, sender),
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPipeline_WindowsAndTrailingFlush(t *testing.T) {
	sender := &recordingSender{}
	p := newTestPipeline(sender)

	if err := p.run(context.Background(), &sliceSource{samples: windowSamples()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := p.ship.Flush(context.Background()); got != 3 {
		t.Fatalf("flushed %d reports, want 3", got)
	}
	want := []int{11, 10, 5}
	if got := sender.sampleCounts(); !equalInts(got, want) {
		t.Errorf("window sizes: got %v, want %v (invalid samples must be dropped)", got, want)
	}
	for _, r := range sender.reports {
		if r.NodeID != "bench" || !r.Label.Valid() {
			t.Errorf("report: %+v", r)
		}
	}
}

func TestPipeline_SourceErrorStillFlushes(t *testing.T) {
	boom := errors.New("sensor unplugged")
	sender := &recordingSender{}
	p := newTestPipeline(sender)

	err := p.run(context.Background(), &sliceSource{samples: windowSamples()[:4], err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("run: got %v, want %v", err, boom)
	}
	p.ship.Flush(context.Background())
	if got := sender.sampleCounts(); !equalInts(got, []int{4}) {
		t.Errorf("window sizes: got %v, want [4]", got)
	}
}

func TestPipeline_FailingSinkKeepsProducing(t *testing.T) {
	sender := &recordingSender{fail: fmt.Errorf("%w: HTTP 400", shipper.ErrPermanent)}
	p := newTestPipeline(sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.ship.Run(ctx)

	if err := p.run(ctx, &sliceSource{samples: windowSamples()}); err != nil {
		t.Fatalf("run: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.sampleCounts()) == 3 && p.ship.Pending() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := sender.sampleCounts(); !equalInts(got, []int{11, 10, 5}) {
		t.Errorf("delivery attempts: got %v, want [11 10 5]", got)
	}
}

func TestPipeline_CancelReturnsNil(t *testing.T) {
	p := newTestPipeline(&recordingSender{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.run(ctx, blockingSource{}) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run after cancel: got %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
