// Package metrics wraps github.com/prometheus/client_golang for the
// optional engine metrics registry (SPEC_FULL.md §4.17), mirroring the
// same fields the text/record log sinks already carry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sensei/internal/optimizer"
)

// Registry holds every gauge/counter the engine updates as it trains.
// A nil *Registry is valid and every method on it is a no-op, so callers
// can hold an optional registry without branching on whether metrics
// are enabled (SPEC_FULL.md §4.17's "registered only when the engine is
// constructed with metrics enabled", default off).
type Registry struct {
	totalLoss       prometheus.Gauge
	logLoss         prometheus.Gauge
	regLoss         prometheus.Gauge
	weightL1        prometheus.Gauge
	weightL2        prometheus.Gauge
	nonzeroCount    prometheus.Gauge
	sgdLearningRate prometheus.Gauge

	iterationsRun  prometheus.Counter
	featuresAdded  prometheus.Counter
	featuresPruned prometheus.Counter
}

// New registers every metric against reg and returns a Registry. Pass
// prometheus.NewRegistry() for an isolated registry (tests), or
// prometheus.DefaultRegisterer to expose metrics on the process-wide
// /metrics endpoint.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		totalLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_total_loss", Help: "Current total loss (log loss + regularization loss).",
		}),
		logLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_log_loss", Help: "Current logistic log loss.",
		}),
		regLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_regularization_loss", Help: "Current regularization loss.",
		}),
		weightL1: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_weight_l1", Help: "Sum of absolute model weights.",
		}),
		weightL2: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_weight_l2", Help: "Sum of squared model weights.",
		}),
		nonzeroCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_nonzero_weight_count", Help: "Number of non-zero model weights.",
		}),
		sgdLearningRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensei_sgd_learning_rate", Help: "Current SGD learning rate.",
		}),
		iterationsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensei_iterations_total", Help: "Total batch iterations run.",
		}),
		featuresAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensei_features_added_total", Help: "Total product features added by exploration.",
		}),
		featuresPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensei_features_pruned_total", Help: "Total features removed by pruning.",
		}),
	}
}

// ObserveIteration records one batch optimizer iteration's log fields
// and increments the iteration counter.
func (r *Registry) ObserveIteration(log optimizer.IterationLog) {
	if r == nil {
		return
	}
	r.totalLoss.Set(log.TotalLoss)
	r.logLoss.Set(log.LogLoss)
	r.regLoss.Set(log.RegLoss)
	r.weightL1.Set(log.WeightL1)
	r.weightL2.Set(log.WeightL2)
	r.nonzeroCount.Set(float64(log.NonzeroCount))
	r.iterationsRun.Inc()
}

// ObserveSGDLearningRate records the SGD optimizer's current learning
// rate after a run.
func (r *Registry) ObserveSGDLearningRate(rate float64) {
	if r == nil {
		return
	}
	r.sgdLearningRate.Set(rate)
}

// AddFeaturesAdded increments the features-added counter by n.
func (r *Registry) AddFeaturesAdded(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.featuresAdded.Add(float64(n))
}

// AddFeaturesPruned increments the features-pruned counter by n.
func (r *Registry) AddFeaturesPruned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.featuresPruned.Add(float64(n))
}
