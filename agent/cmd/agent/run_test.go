package main

import (
	"testing"

	"github.com/relojcausal/relojcausal/agent/internal/config"
)

func TestCertTargets(t *testing.T) {
	tests := []struct {
		name  string
		a     config.AgentConfig
		roles []string
	}{
		{"jsonl", config.AgentConfig{CollectorEndpoint: "https://c", Sensor: config.SensorConfig{Type: "jsonl"}}, []string{"collector"}},
		{"prometheus", config.AgentConfig{CollectorEndpoint: "https://c", Sensor: config.SensorConfig{Type: "prometheus", Endpoint: "https://dev/metrics"}}, []string{"collector", "sensor"}},
		{"mqtt", config.AgentConfig{CollectorEndpoint: "https://c", Sensor: config.SensorConfig{Type: "mqtt", Broker: "ssl://b:8883"}}, []string{"collector", "broker"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := certTargets(tc.a)
			if len(got) != len(tc.roles) {
				t.Fatalf("targets: got %+v, want roles %v", got, tc.roles)
			}
			for i, r := range tc.roles {
				if got[i].role != r {
					t.Errorf("target %d: got role %q, want %q", i, got[i].role, r)
				}
			}
		})
	}
}
