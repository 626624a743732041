package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: время обработки HTTP-запросов API
	RequestDuration *prometheus.HistogramVec

	// Upstream: вызовы REST API демонлиста
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram

	// Cache: попадания по слоям (l1, l2, storage)
	CacheLookups *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 0.5 - half-open, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Recorder: заполненность буфера снапшотов (backpressure)
	RecorderBufferFill prometheus.Gauge

	// Projection: сколько строк истории отдано клиентам
	ProjectedRows prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "demonlist_history_request_duration_seconds",
			Help:    "Histogram of API request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "status"}),

		UpstreamRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "demonlist_history_upstream_requests_total",
			Help: "Total number of movement log fetches by outcome.",
		}, []string{"outcome"}), // ok, not_found, throttled, error

		UpstreamDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "demonlist_history_upstream_duration_seconds",
			Help:    "Histogram of upstream fetch latencies including retries.",
			Buckets: prometheus.DefBuckets,
		}),

		CacheLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "demonlist_history_cache_lookups_total",
			Help: "Cache lookups by layer and result.",
		}, []string{"layer", "result"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "demonlist_history_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 0.5=half-open, 1=open).",
		}, []string{"upstream"}),

		RecorderBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "demonlist_history_recorder_buffer_utilization",
			Help: "Current number of snapshots waiting in the recorder buffer.",
		}),

		ProjectedRows: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "demonlist_history_projected_rows_total",
			Help: "Total number of history rows served.",
		}),
	}
}
