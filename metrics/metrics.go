// Package metrics exports the communicator's runtime counters through
// prometheus/client_golang, the way the cluster code this module grew out
// of surfaces per-target stats on a /metrics-style endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set is one communicator's collectors, registered once by New (the caller
// hands the Set to communicator.Build via Params.Metrics) and updated from
// the main loop and Barrier().
type Set struct {
	QueueDepth   *prometheus.GaugeVec
	BatchSize    prometheus.Histogram
	RPCErrors    *prometheus.CounterVec
	BarrierWaitS prometheus.Histogram
	Iterations   prometheus.Counter
}

// New builds a Set and registers it against reg. Callers typically pass
// prometheus.NewRegistry() per communicator instance so tests never share
// global collector state (the default registry would panic on a second
// Build in the same process).
func New(reg prometheus.Registerer, id string) *Set {
	s := &Set{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "communicator",
			Name:        "queue_depth",
			Help:        "Current length of a per-variable send queue.",
			ConstLabels: prometheus.Labels{"communicator_id": id},
		}, []string{"variable"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "communicator",
			Name:        "batch_size",
			Help:        "BatchesCounter result consumed by each main-loop iteration.",
			ConstLabels: prometheus.Labels{"communicator_id": id},
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "communicator",
			Name:        "rpc_errors_total",
			Help:        "RPC futures that resolved to a non-OK status or transport error, by op.",
			ConstLabels: prometheus.Labels{"communicator_id": id},
		}, []string{"op"}),
		BarrierWaitS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "communicator",
			Name:        "barrier_wait_seconds",
			Help:        "Time a trainer's Barrier() call spent blocked.",
			ConstLabels: prometheus.Labels{"communicator_id": id},
			Buckets:     prometheus.DefBuckets,
		}),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "communicator",
			Name:        "iterations_total",
			Help:        "Main-loop iterations started with a non-zero batch.",
			ConstLabels: prometheus.Labels{"communicator_id": id},
		}),
	}
	reg.MustRegister(s.QueueDepth, s.BatchSize, s.RPCErrors, s.BarrierWaitS, s.Iterations)
	return s
}

// ObserveBatch records one iteration's batch size and bumps Iterations.
func (s *Set) ObserveBatch(n int) {
	if s == nil {
		return
	}
	s.BatchSize.Observe(float64(n))
	s.Iterations.Inc()
}

// RecordRPCError increments the per-op error counter for a failed future.
func (s *Set) RecordRPCError(op string) {
	if s == nil {
		return
	}
	s.RPCErrors.WithLabelValues(op).Inc()
}

// SetQueueDepth updates the gauge for one variable's queue length.
func (s *Set) SetQueueDepth(variable string, n int) {
	if s == nil {
		return
	}
	s.QueueDepth.WithLabelValues(variable).Set(float64(n))
}
