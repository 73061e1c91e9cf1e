package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relojcausal/relojcausal/agent/internal/compute"
	"github.com/relojcausal/relojcausal/agent/internal/config"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMs      = 250
)

type mqttSource struct {
	cfg       config.SensorConfig
	newClient func(*mqtt.ClientOptions) mqtt.Client
	now       func() time.Time
}

func newMQTTSource(cfg config.SensorConfig) *mqttSource {
	return &mqttSource{cfg: cfg, newClient: mqtt.NewClient, now: time.Now}
}

// options builds the paho client options from the sensor configuration.
func (s *mqttSource) options() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("sensor: mqtt connection lost", "broker", s.cfg.Broker, "err", err)
		})
	if s.cfg.ClientID != "" {
		opts.SetClientID(s.cfg.ClientID)
	}

	switch s.cfg.Auth.Mode {
	case "basic":
		opts.SetUsername(s.cfg.Auth.Username)
		opts.SetPassword(s.cfg.Auth.Password())
	case "bearer":
		opts.SetUsername(s.cfg.Auth.Username)
		opts.SetPassword(s.cfg.Auth.Token())
	}

	tlsCfg, err := buildTLSConfig(s.cfg)
	if err != nil {
		return nil, err
	}
	opts.SetTLSConfig(tlsCfg)
	return opts, nil
}

// Stream connects to the broker, subscribes to the configured topic and
// forwards every decodable reading until ctx is cancelled.
func (s *mqttSource) Stream(ctx context.Context, out chan<- compute.Sample) error {
	opts, err := s.options()
	if err != nil {
		return fmt.Errorf("sensor: mqtt options: %w", err)
	}

	client := s.newClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("sensor: mqtt connect %s: %w", s.cfg.Broker, token.Error())
	}
	defer client.Disconnect(mqttQuiesceMs)

	clock := sinceStart(s.now)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(ctx, out, msg.Payload(), clock)
	}
	if token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("sensor: mqtt subscribe %q: %w", s.cfg.Topic, token.Error())
	}
	slog.Info("sensor: mqtt subscribed", "broker", s.cfg.Broker, "topic", s.cfg.Topic)

	<-ctx.Done()
	client.Unsubscribe(s.cfg.Topic).Wait()
	return nil
}

// handle decodes one message payload and forwards it. Undecodable payloads
// are logged and dropped.
func (s *mqttSource) handle(ctx context.Context, out chan<- compute.Sample, payload []byte, clock func() float64) {
	var rd Reading
	if err := json.Unmarshal(payload, &rd); err != nil {
		slog.Warn("sensor: mqtt payload not JSON", "topic", s.cfg.Topic, "err", err)
		return
	}
	sample, err := rd.Sample(clock)
	if err != nil {
		slog.Warn("sensor: mqtt reading rejected", "topic", s.cfg.Topic, "err", err)
		return
	}
	send(ctx, out, sample)
}
