package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/config"
	"github.com/relojcausal/relojcausal/agent/internal/sensor"
	"github.com/relojcausal/relojcausal/agent/internal/shipper"
)

var (
	analyzeIntervalMs int64
	analyzeCapacity   int
	analyzeNodeID     string
	analyzeFlush      bool
	analyzeUseConfig  bool
)

// analyzeOptions parameterizes one offline analysis run.
type analyzeOptions struct {
	intervalMs int64
	capacity   int
	thresholds compute.Thresholds
	nodeID     string
	region     string
	flush      bool
	now        func() time.Time
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file.jsonl]",
		Short: "Classify a recorded JSONL sample file and print one report per window",
		Long: "Reads accelerometer readings ({\"x\",\"y\",\"z\",\"t\"} or {\"magnitude\",\"t\"}) " +
			"from a file, or stdin when the file is omitted or \"-\", and prints one JSON report per completed window.",
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyzeCmd,
	}
	cmd.Flags().Int64Var(&analyzeIntervalMs, "interval-ms", config.DefaultIntervalMs, "window length in milliseconds")
	cmd.Flags().IntVar(&analyzeCapacity, "capacity", config.DefaultWindowCapacity, "maximum samples per window")
	cmd.Flags().StringVar(&analyzeNodeID, "node-id", "offline", "node_id stamped on reports")
	cmd.Flags().BoolVar(&analyzeFlush, "flush", false, "emit a report for the trailing partial window")
	cmd.Flags().BoolVar(&analyzeUseConfig, "use-config", false, "take interval, capacity, thresholds and identity from --config")
	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	// Reports go to stdout; keep logs out of the way.
	if err := setupLogger(os.Stderr, logLevel, logFormat); err != nil {
		return err
	}

	opts := analyzeOptions{
		intervalMs: analyzeIntervalMs,
		capacity:   analyzeCapacity,
		thresholds: compute.DefaultThresholds(),
		nodeID:     analyzeNodeID,
		region:     config.DefaultRegion,
		flush:      analyzeFlush,
		now:        time.Now,
	}
	if analyzeUseConfig {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		a := cfg.Agent
		opts.intervalMs, opts.capacity, opts.thresholds = a.IntervalMs, a.WindowCapacity, a.Thresholds
		opts.nodeID, opts.region = a.NodeID, a.Region
	}
	if opts.intervalMs <= 0 {
		return fmt.Errorf("--interval-ms must be positive, got %d", opts.intervalMs)
	}

	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	n, err := analyze(cmd.Context(), in, cmd.OutOrStdout(), opts)
	if err != nil {
		return err
	}
	slog.Info("analysis complete", "reports", n)
	return nil
}

// analyze streams readings from in through a fresh Engine and writes one
// JSON report per completed window to out. It returns the number of reports.
func analyze(ctx context.Context, in io.Reader, out io.Writer, opts analyzeOptions) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine := compute.NewEngine(opts.intervalMs, opts.capacity, opts.thresholds)
	enc := json.NewEncoder(out)

	samples := make(chan compute.Sample, sampleQueue)
	readErr := make(chan error, 1)
	go func() {
		readErr <- sensor.ReadJSONL(ctx, in, samples, opts.now)
		close(samples)
	}()

	written := 0
	emit := func(res *compute.Result) error {
		r := shipper.Build(*res, opts.nodeID, opts.region, opts.now())
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		written++
		return nil
	}

	for s := range samples {
		res, err := engine.Push(s)
		if errors.Is(err, compute.ErrInvalidSample) {
			slog.Debug("dropped invalid sample", "magnitude", s.Magnitude, "t", s.Timestamp)
			continue
		}
		if err != nil {
			slog.Warn("window skipped", "err", err)
			continue
		}
		if res != nil {
			if err := emit(res); err != nil {
				return written, err
			}
		}
	}
	if err := <-readErr; err != nil {
		return written, err
	}

	if opts.flush {
		res, err := engine.Flush()
		switch {
		case errors.Is(err, compute.ErrEmptyWindow):
		case err != nil:
			return written, err
		default:
			if err := emit(res); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}
