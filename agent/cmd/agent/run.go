package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/config"
	"github.com/relojcausal/relojcausal/agent/internal/security"
	"github.com/relojcausal/relojcausal/agent/internal/sensor"
	"github.com/relojcausal/relojcausal/agent/internal/shipper"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Read the configured sensor, classify windows and ship reports",
		Args:  cobra.NoArgs,
		RunE:  runAgentCmd,
	}
}

func runAgentCmd(_ *cobra.Command, _ []string) error {
	if err := setupLogger(os.Stdout, logLevel, logFormat); err != nil {
		return err
	}

	slog.Info("relojcausal-agent starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return err
	}
	a := cfg.Agent
	slog.Info("config loaded",
		"node_id", a.NodeID,
		"collector_endpoint", a.CollectorEndpoint,
		"sensor", a.Sensor.Type,
		"interval_ms", a.IntervalMs,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := sensor.New(a.Sensor)
	if err != nil {
		slog.Error("could not build sensor source", "type", a.Sensor.Type, "err", err)
		return err
	}

	go checkCerts(ctx, a)

	engine := compute.NewEngine(a.IntervalMs, a.WindowCapacity, a.Thresholds)
	intervals := newIntervalResolver(a.IntervalMs, engine.SetInterval)

	ship := shipper.New(a)
	go ship.Run(ctx)

	// Hot reload: interval and thresholds apply from the next sample on.
	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			intervals.fromFile(updated.Agent.IntervalMs)
			engine.SetThresholds(updated.Agent.Thresholds)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	if a.RemoteConfig {
		go config.Poll(ctx, &http.Client{}, config.RemoteURL(a.CollectorEndpoint), a.RemotePollInterval,
			intervals.fromRemote)
	}

	p := &pipeline{engine: engine, ship: ship}
	err = p.run(ctx, src)
	flushShipper(ship, a.SendTimeout)
	return err
}

// certTargets lists the TLS endpoints the agent connects to.
func certTargets(a config.AgentConfig) []certTarget {
	targets := []certTarget{{"collector", a.CollectorEndpoint, false}}
	switch a.Sensor.Type {
	case "prometheus":
		targets = append(targets, certTarget{"sensor", a.Sensor.Endpoint, a.Sensor.TLS.InsecureSkipVerify})
	case "mqtt":
		targets = append(targets, certTarget{"broker", a.Sensor.Broker, a.Sensor.TLS.InsecureSkipVerify})
	}
	return targets
}

type certTarget struct {
	role     string
	endpoint string
	insecure bool
}

// checkCerts logs the certificate state of every TLS endpoint once.
func checkCerts(ctx context.Context, a config.AgentConfig) {
	for _, t := range certTargets(a) {
		cs := security.Check(ctx, t.endpoint, t.insecure)
		if cs == nil {
			continue
		}
		attrs := []any{"role", t.role, "endpoint", t.endpoint, "status", cs.Status}
		switch cs.Status {
		case security.StatusValid:
			slog.Debug("certificate ok", append(attrs, "days_left", cs.DaysLeft)...)
		case security.StatusUnreachable:
			slog.Warn("certificate could not be inspected", append(attrs, "err", cs.Err)...)
		default:
			slog.Warn("certificate needs attention",
				append(attrs, "days_left", cs.DaysLeft, "not_after", cs.NotAfter, "issuer", cs.Issuer)...)
		}
	}
}

// flushShipper gives buffered reports one last delivery attempt.
func flushShipper(ship *shipper.Shipper, sendTimeout time.Duration) {
	if ship.Pending() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*sendTimeout)
	defer cancel()
	pending := ship.Pending()
	sent := ship.Flush(ctx)
	slog.Info("shipper flushed", "pending", pending, "sent", sent)
}
