// Package metrics exposes convergence counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "convergo"

// Recorder holds the collectors of one process. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	nodeRuns     *prometheus.CounterVec
	iterations   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Items that reached a terminal state, by state.",
			},
			[]string{"state"},
		),
		itemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Time spent probing and fixing an item.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		nodeRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_runs_total",
				Help:      "Node convergence runs, by outcome.",
			},
			[]string{"outcome"},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "metadata_iterations",
				Help:      "Reactor passes needed to reach a metadata fixed point.",
				Buckets:   []float64{1, 2, 3, 5, 10, 25, 100, 1000},
			},
		),
	}
	reg.MustRegister(r.items, r.itemDuration, r.nodeRuns, r.iterations)
	return r
}

// ItemFinished records one item outcome.
func (r *Recorder) ItemFinished(itemType, state string, d time.Duration) {
	if r == nil {
		return
	}
	r.items.WithLabelValues(state).Inc()
	if d > 0 {
		r.itemDuration.WithLabelValues(itemType).Observe(d.Seconds())
	}
}

// NodeFinished records the outcome of a node run: "converged", "failed" or
// "error" when the node never reached the apply stage.
func (r *Recorder) NodeFinished(outcome string) {
	if r == nil {
		return
	}
	r.nodeRuns.WithLabelValues(outcome).Inc()
}

// MetadataComputed records how many passes a metadata computation took.
func (r *Recorder) MetadataComputed(iterations int) {
	if r == nil {
		return
	}
	r.iterations.Observe(float64(iterations))
}
