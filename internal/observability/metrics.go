package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "agentloop"

// Metrics exposes Prometheus collectors that report task and tool activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasksSubmitted  prometheus.Counter
	tasksRejected   *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	taskSteps       prometheus.Histogram
	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	selfCorrections *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	tasksActive     prometheus.Gauge
}

// MustNewMetrics constructs Metrics against reg. Collectors already registered
// under the same name are reused, so repeated construction against one
// registry is safe. Any other registration error panics, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasksSubmitted: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "submitted_total",
			Help:      "Tasks accepted for execution.",
		})),
		tasksRejected: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "rejected_total",
			Help:      "Task submissions refused by admission control.",
		}, []string{"reason"})),
		tasksFinished: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Tasks that reached a terminal state.",
		}, []string{"status"})),
		taskDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Wall time from task start to its terminal event.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"})),
		taskSteps: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "steps",
			Help:      "Steps taken per finished task.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		})),
		toolCalls: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool dispatches by tool and outcome.",
		}, []string{"tool", "outcome"})),
		toolDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "tools",
			Name:      "duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"})),
		selfCorrections: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "agent",
			Name:      "self_corrections_total",
			Help:      "Corrective retries admitted after a failed tool step.",
		}, []string{"tool"})),
		eventsDropped: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Non-terminal events dropped because a subscriber fell behind.",
		})),
		tasksActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "active",
			Help:      "Tasks currently running or awaiting a retry.",
		})),
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// TaskSubmitted counts an admitted task and marks it active.
func (m *Metrics) TaskSubmitted() {
	if m == nil {
		return
	}
	m.tasksSubmitted.Inc()
	m.tasksActive.Inc()
}

// TaskRejected counts a refused submission.
func (m *Metrics) TaskRejected(reason string) {
	if m == nil {
		return
	}
	m.tasksRejected.WithLabelValues(reason).Inc()
}

// TaskFinished records the outcome of a task and releases its active slot.
func (m *Metrics) TaskFinished(status string, steps int, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksActive.Dec()
	m.tasksFinished.WithLabelValues(status).Inc()
	m.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.taskSteps.Observe(float64(steps))
}

// ObserveToolCall records one tool dispatch. Its signature matches the tool
// dispatcher's observer hook.
func (m *Metrics) ObserveToolCall(toolName string, isError bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(toolName, outcome).Inc()
	m.toolDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// SelfCorrection counts an admitted corrective retry.
func (m *Metrics) SelfCorrection(toolName string) {
	if m == nil {
		return
	}
	m.selfCorrections.WithLabelValues(toolName).Inc()
}

// EventDropped counts an event lost to a slow subscriber.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
