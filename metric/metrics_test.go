package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRegistersCoreMetrics(t *testing.T) {
	reg := NewRegistry()
	require.NotNil(t, reg.Metrics)

	// Touch a couple of vecs so they show up in Gather.
	reg.Metrics.MessagesReceived.WithLabelValues("sensor").Inc()
	reg.Metrics.AlertsRaised.WithLabelValues("cpu", "warning").Inc()

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}

	assert.True(t, names["fleetstream_router_messages_received_total"])
	assert.True(t, names["fleetstream_alerting_alerts_raised_total"])
	assert.True(t, names["go_goroutines"], "runtime collector should be registered")
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.Metrics.MessagesReceived.WithLabelValues("sensor").Inc()

	families, err := b.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "fleetstream_router_messages_received_total" {
			t.Fatal("second registry should not carry first registry's samples")
		}
	}
}
