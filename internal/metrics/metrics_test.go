package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensei/internal/metrics"
	"sensei/internal/optimizer"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestObserveIterationUpdatesGaugesAndCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveIteration(optimizer.IterationLog{
		TotalLoss: 1.5, LogLoss: 1.0, RegLoss: 0.5,
		WeightL1: 3.0, WeightL2: 2.0, NonzeroCount: 7,
	})

	assert.Equal(t, 1.5, gaugeValue(t, reg, "sensei_total_loss"))
	assert.Equal(t, 7.0, gaugeValue(t, reg, "sensei_nonzero_weight_count"))
	assert.Equal(t, 1.0, counterValue(t, reg, "sensei_iterations_total"))
}

func TestNilRegistryMethodsAreNoOps(t *testing.T) {
	var m *metrics.Registry
	assert.NotPanics(t, func() {
		m.ObserveIteration(optimizer.IterationLog{})
		m.ObserveSGDLearningRate(0.1)
		m.AddFeaturesAdded(1)
		m.AddFeaturesPruned(1)
	})
}

func TestAddFeaturesAddedAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.AddFeaturesAdded(2)
	m.AddFeaturesAdded(3)
	assert.Equal(t, 5.0, counterValue(t, reg, "sensei_features_added_total"))
}
