package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus-compatible metrics for run monitoring.
//
// Metrics exposed (namespaced "flowgraph_"):
//
//	inflight_dispatches (gauge)      — executor dispatches currently running
//	queue_depth (gauge)              — pending messages awaiting the next superstep
//	dispatch_latency_ms (histogram)  — executor dispatch duration, by executor_id and status
//	supersteps_total (counter)       — completed supersteps, by run terminal status ("" while live)
//	checkpoint_commit_ms (histogram) — checkpoint commit latency
//	yields_total (counter)           — external-input suspensions
//	runs_total (counter)             — finished runs, by terminal status
//
// Wire into an engine with WithMetrics and expose via promhttp:
//
//	registry := prometheus.NewRegistry()
//	metrics, _ := workflow.NewMetrics(registry)
//	run, _ := workflow.Start(ctx, g, input, workflow.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	inflightDispatches prometheus.Gauge
	queueDepth         prometheus.Gauge
	dispatchLatency    *prometheus.HistogramVec
	supersteps         prometheus.Counter
	checkpointCommit   prometheus.Histogram
	yields             prometheus.Counter
	runs               *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set on the given registerer.
// Registering twice on the same registerer returns the underlying
// prometheus.AlreadyRegisteredError.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		inflightDispatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowgraph",
			Name:      "inflight_dispatches",
			Help:      "Number of executor dispatches currently running.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowgraph",
			Name:      "queue_depth",
			Help:      "Pending messages awaiting the next superstep.",
		}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowgraph",
			Name:      "dispatch_latency_ms",
			Help:      "Executor dispatch duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"executor_id", "status"}),
		supersteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Name:      "supersteps_total",
			Help:      "Completed supersteps across all runs.",
		}),
		checkpointCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowgraph",
			Name:      "checkpoint_commit_ms",
			Help:      "Checkpoint commit latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		yields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Name:      "yields_total",
			Help:      "Runs suspended awaiting an external response.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Name:      "runs_total",
			Help:      "Finished runs by terminal status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{
		m.inflightDispatches, m.queueDepth, m.dispatchLatency,
		m.supersteps, m.checkpointCommit, m.yields, m.runs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) dispatchStarted() {
	if m == nil {
		return
	}
	m.inflightDispatches.Inc()
}

func (m *Metrics) dispatchFinished(executorID string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inflightDispatches.Dec()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dispatchLatency.WithLabelValues(executorID, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) superstepCompleted(pending int) {
	if m == nil {
		return
	}
	m.supersteps.Inc()
	m.queueDepth.Set(float64(pending))
}

func (m *Metrics) checkpointCommitted(d time.Duration) {
	if m == nil {
		return
	}
	m.checkpointCommit.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) runYielded() {
	if m == nil {
		return
	}
	m.yields.Inc()
}

func (m *Metrics) runFinished(status RunStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status.String()).Inc()
}
