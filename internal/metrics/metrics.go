// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service records into.
type Metrics struct {
	Registry *prometheus.Registry

	CoinGeckoRequests    *prometheus.CounterVec
	CoinGeckoRequestTime *prometheus.HistogramVec
	MessariRequests      *prometheus.CounterVec
	MessariRequestTime   prometheus.Histogram

	BatchFailures      *prometheus.CounterVec
	ServiceRequestTime prometheus.Histogram
	CacheWriteRejects  prometheus.Counter

	ChunkSuccess        *prometheus.CounterVec
	ChunkErrors         *prometheus.CounterVec
	AssetsProcessed     prometheus.Gauge
	CacheUpdateDuration prometheus.Gauge
	FailedAssets        prometheus.Gauge
	SchedulerDuration   prometheus.Histogram
	SchedulerSuccess    prometheus.Counter

	Requests        *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	CurrentRequests prometheus.Gauge
}

// New registers all collectors on a fresh registry. Each call is independent,
// so tests can build as many as they need.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		CoinGeckoRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coingecko_requests_total",
			Help: "Total Coingecko API requests",
		}, []string{"status", "type"}),
		CoinGeckoRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "coingecko_request_duration_seconds",
			Help: "Time spent in Coingecko API",
		}, []string{"type"}),
		MessariRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messari_requests_total",
			Help: "Total Messari API requests",
		}, []string{"status"}),
		MessariRequestTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "messari_request_duration_seconds",
			Help: "Time spent in Messari API",
		}),

		BatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_service_complete_batch_failures_total",
			Help: "Number of times all APIs failed for a batch",
		}, []string{"type"}),
		ServiceRequestTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "price_service_request_duration_seconds",
			Help: "Time spent processing complete request",
		}),
		CacheWriteRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_cache_write_rejected_total",
			Help: "Number of price tuples rejected by cache validation",
		}),

		ChunkSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_fetch_success_total",
			Help: "Number of successful price fetches",
		}, []string{"asset_chunk"}),
		ChunkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_fetch_errors_total",
			Help: "Number of failed price fetches",
		}, []string{"asset_chunk", "error_type"}),
		AssetsProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assets_processed_total",
			Help: "Total number of assets processed in the latest run",
		}),
		CacheUpdateDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_update_duration_seconds",
			Help: "Time taken to update the entire price cache",
		}),
		FailedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "failed_assets_total",
			Help: "Number of assets that failed to fetch prices",
		}),
		SchedulerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "scheduler_task_duration_seconds",
			Help: "Duration of scheduled cache update task",
		}),
		SchedulerSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_task_success_total",
			Help: "Number of successful scheduled cache updates",
		}),

		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of requests",
		}, []string{"endpoint", "method", "type"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		}, []string{"endpoint", "error_type"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_latency_seconds",
			Help:    "Request latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"endpoint", "type"}),
		CurrentRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "current_requests",
			Help: "Number of in-progress requests",
		}),
	}

	m.Registry.MustRegister(
		m.CoinGeckoRequests,
		m.CoinGeckoRequestTime,
		m.MessariRequests,
		m.MessariRequestTime,
		m.BatchFailures,
		m.ServiceRequestTime,
		m.CacheWriteRejects,
		m.ChunkSuccess,
		m.ChunkErrors,
		m.AssetsProcessed,
		m.CacheUpdateDuration,
		m.FailedAssets,
		m.SchedulerDuration,
		m.SchedulerSuccess,
		m.Requests,
		m.Errors,
		m.RequestLatency,
		m.CurrentRequests,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveCoinGecko records one CoinGecko call of the given type.
func (m *Metrics) ObserveCoinGecko(callType string, start time.Time, err error) {
	m.CoinGeckoRequestTime.WithLabelValues(callType).Observe(time.Since(start).Seconds())
	m.CoinGeckoRequests.WithLabelValues(status(err), callType).Inc()
}

// ObserveMessari records one Messari call.
func (m *Metrics) ObserveMessari(start time.Time, err error) {
	m.MessariRequestTime.Observe(time.Since(start).Seconds())
	m.MessariRequests.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
