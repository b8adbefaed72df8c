package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adstudio"

// Callback results.
const (
	CallbackApplied   = "applied"
	CallbackDuplicate = "duplicate"
	CallbackRejected  = "rejected"
)

// JobMetrics counts job lifecycle events. A nil *JobMetrics is a no-op.
type JobMetrics struct {
	created     prometheus.Counter
	dispatches  *prometheus.CounterVec
	dispatchDur *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	callbacks   *prometheus.CounterVec
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Number of generation jobs created.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_dispatches_total",
			Help:      "Engine dispatches partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),
		dispatchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_dispatch_duration_seconds",
			Help:      "Time spent waiting on the engine per dispatch.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"mode"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Applied job status transitions partitioned by target status and source.",
		}, []string{"status", "source"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_callbacks_total",
			Help:      "Engine callbacks partitioned by result.",
		}, []string{"result"}),
	}
}

func (m *JobMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.created, m.dispatches, m.dispatchDur, m.transitions, m.callbacks}
}

func (m *JobMetrics) JobCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *JobMetrics) Dispatched(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(mode, outcome).Inc()
	m.dispatchDur.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *JobMetrics) Transition(status, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status, source).Inc()
}

func (m *JobMetrics) Callback(result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(result).Inc()
}

// NewRegistry builds a registry with the runtime collectors and the given
// application collectors.
func NewRegistry(cs ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(cs...)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
