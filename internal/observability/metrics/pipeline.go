package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	triggerTotal    *prometheus.CounterVec
	triggerDuration *prometheus.HistogramVec
	triggerInFlight prometheus.Gauge

	completionTotal  *prometheus.CounterVec
	completionEvents *prometheus.HistogramVec
	timeoutAborts    *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	triggerTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "workflow",
			Name:      "triggers_total",
			Help:      "Total processed trigger events by status.",
		},
		[]string{"service", "status"},
	)
	triggerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docpipe",
			Subsystem: "workflow",
			Name:      "trigger_duration_seconds",
			Help:      "Synchronous portion of trigger handling in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	triggerInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docpipe",
			Subsystem: "workflow",
			Name:      "triggers_in_flight",
			Help:      "Number of trigger events currently being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	completionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "workflow",
			Name:      "completion_envelopes_total",
			Help:      "Total processed completion envelopes by status.",
		},
		[]string{"service", "status"},
	)
	completionEvents := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docpipe",
			Subsystem: "workflow",
			Name:      "completion_envelope_events",
			Help:      "Distribution of completion events per envelope.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	timeoutAborts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docpipe",
			Subsystem: "workflow",
			Name:      "timeout_aborts_total",
			Help:      "Total suspended instances force-aborted by the sweeper.",
		},
		[]string{"service"},
	)

	registry.MustRegister(triggerTotal, triggerDuration, triggerInFlight, completionTotal, completionEvents, timeoutAborts)

	return &PipelineMetrics{
		registry:         registry,
		triggerTotal:     triggerTotal,
		triggerDuration:  triggerDuration,
		triggerInFlight:  triggerInFlight,
		completionTotal:  completionTotal,
		completionEvents: completionEvents,
		timeoutAborts:    timeoutAborts,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartTrigger() {
	m.triggerInFlight.Inc()
}

func (m *PipelineMetrics) FinishTrigger(service string, duration time.Duration, err error) {
	m.triggerInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.triggerTotal.WithLabelValues(service, status).Inc()
	m.triggerDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveEnvelope(service string, events int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.completionTotal.WithLabelValues(service, status).Inc()
	m.completionEvents.WithLabelValues(service).Observe(float64(events))
}

func (m *PipelineMetrics) AddTimeoutAborts(service string, count int64) {
	if count <= 0 {
		return
	}
	m.timeoutAborts.WithLabelValues(service).Add(float64(count))
}
