package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/sensor"
	"github.com/relojcausal/relojcausal/agent/internal/shipper"
)

const sampleQueue = 256

// pipeline moves samples from a sensor source through the engine into the
// shipper. Nothing on this path blocks on the network.
type pipeline struct {
	engine *compute.Engine
	ship   *shipper.Shipper
}

// run streams src until the source stops or ctx is cancelled. When the source
// stops on its own, queued samples are processed and the trailing partial
// window is shipped. It returns the source's error, or nil on cancellation.
func (p *pipeline) run(ctx context.Context, src sensor.Source) error {
	samples := make(chan compute.Sample, sampleQueue)
	srcDone := make(chan error, 1)
	go func() { srcDone <- src.Stream(ctx, samples) }()

	for {
		select {
		case s := <-samples:
			p.process(s)

		case err := <-srcDone:
			if err != nil {
				slog.Error("sensor source stopped", "err", err)
			} else {
				slog.Info("sensor source exhausted")
			}
			p.drain(samples)
			if res, ferr := p.engine.Flush(); ferr == nil {
				p.shipResult(*res)
			}
			return err

		case <-ctx.Done():
			slog.Info("relojcausal-agent shutting down")
			return nil
		}
	}
}

// process runs one sample through the engine and ships any completed window.
func (p *pipeline) process(s compute.Sample) {
	res, err := p.engine.Push(s)
	switch {
	case errors.Is(err, compute.ErrInvalidSample):
		slog.Debug("dropped invalid sample", "magnitude", s.Magnitude, "t", s.Timestamp)
		return
	case err != nil:
		slog.Warn("window skipped", "err", err)
		return
	case res == nil:
		return
	}
	p.shipResult(*res)
}

func (p *pipeline) shipResult(res compute.Result) {
	r := p.ship.Ship(res)
	slog.Info("window classified",
		"class", r.Label,
		"dh", r.Metrics.DH,
		"li", r.Metrics.LI,
		"kappa_sigma", r.Metrics.KappaSigma,
		"n_samples", r.Meta.SampleCount,
	)
}

// drain processes whatever the source queued before it stopped.
func (p *pipeline) drain(samples <-chan compute.Sample) {
	for {
		select {
		case s := <-samples:
			p.process(s)
		default:
			return
		}
	}
}
