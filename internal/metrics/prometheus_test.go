package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegistersEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ProvisionFailures.WithLabelValues("commit").Inc()
	m.Messages.WithLabelValues("record").Inc()
	m.MessageFailures.WithLabelValues("record").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := make(map[string]bool, len(families))
	for _, f := range families {
		got[f.GetName()] = true
	}
	for _, name := range []string{
		"echotest_sessions_active",
		"echotest_sessions_created_total",
		"echotest_sessions_released_total",
		"echotest_pipelines_provisioned_total",
		"echotest_provision_failures_total",
		"echotest_provision_duration_seconds",
		"echotest_messages_total",
		"echotest_message_failures_total",
		"echotest_candidates_buffered_total",
	} {
		if !got[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestNopMetricsAreIndependent(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("second NewNopMetrics panicked: %v", r)
		}
	}()
	NewNopMetrics()
	NewNopMetrics()
}
