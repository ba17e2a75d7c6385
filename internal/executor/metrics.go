package executor

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the executor's Prometheus collectors. A nil *Metrics is
// valid everywhere in this package: every unexported helper method is a
// no-op on a nil receiver, so instrumentation is opt-in.
type Metrics struct {
	QueueDepthPending    prometheus.Gauge
	QueueDepthInProgress prometheus.Gauge
	RunsRequeuedTotal    prometheus.Counter
	RunsDispatchedTotal  prometheus.Counter
	WorkerDuration       *prometheus.HistogramVec
	RunsFinishedTotal    *prometheus.CounterVec
}

// NewMetrics builds a Metrics and registers its collectors with reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registry; pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepthPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Subsystem: "queue",
			Name:      "pending_depth",
			Help:      "Number of flow runs waiting to be dispatched.",
		}),
		QueueDepthInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Subsystem: "queue",
			Name:      "in_progress_depth",
			Help:      "Number of flow runs currently owned by a worker.",
		}),
		RunsRequeuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "queue",
			Name:      "requeued_total",
			Help:      "Total number of runs moved back to pending after their visibility timeout expired.",
		}),
		RunsDispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "executor",
			Name:      "dispatched_total",
			Help:      "Total number of runs handed to a worker goroutine.",
		}),
		WorkerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowengine",
			Subsystem: "executor",
			Name:      "worker_duration_seconds",
			Help:      "Wall-clock time a worker spent driving one run, by terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		RunsFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "executor",
			Name:      "runs_finished_total",
			Help:      "Total number of runs reaching a terminal status, by flow name and outcome.",
		}, []string{"flow_name", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.QueueDepthPending,
			m.QueueDepthInProgress,
			m.RunsRequeuedTotal,
			m.RunsDispatchedTotal,
			m.WorkerDuration,
			m.RunsFinishedTotal,
		)
	}

	return m
}

func (m *Metrics) setQueueDepths(pending, inProgress int) {
	if m == nil {
		return
	}
	m.QueueDepthPending.Set(float64(pending))
	m.QueueDepthInProgress.Set(float64(inProgress))
}

func (m *Metrics) addRequeued(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RunsRequeuedTotal.Add(float64(n))
}

func (m *Metrics) incDispatched() {
	if m == nil {
		return
	}
	m.RunsDispatchedTotal.Inc()
}

func (m *Metrics) observeWorker(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.WorkerDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) incFinished(flowName, outcome string) {
	if m == nil {
		return
	}
	m.RunsFinishedTotal.WithLabelValues(flowName, outcome).Inc()
}
