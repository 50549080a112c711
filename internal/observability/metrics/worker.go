package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	payloadBytes    *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sta",
			Subsystem: "worker",
			Name:      "request_total",
			Help:      "Total processed enrichment requests by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sta",
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Enrichment request duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sta",
			Subsystem: "worker",
			Name:      "requests_in_flight",
			Help:      "Number of in-flight enrichment requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	payloadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sta",
			Subsystem: "worker",
			Name:      "request_payload_bytes",
			Help:      "Size of received enrichment request payloads.",
			Buckets:   prometheus.ExponentialBuckets(512, 4, 8),
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, payloadBytes)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		payloadBytes:    payloadBytes,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) StartRequest() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishRequest(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObservePayloadSize(service string, size int) {
	if size < 0 {
		return
	}
	m.payloadBytes.WithLabelValues(service).Observe(float64(size))
}
