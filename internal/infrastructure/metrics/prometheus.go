package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0}

// PrometheusExporter exports metrics to Prometheus format. It observes store
// queries, association updates, authorization cache lookups and GraphQL operations.
type PrometheusExporter struct {
	collector *Collector

	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheHitRate prometheus.Gauge
	cacheKeys    prometheus.Gauge

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec

	httpRequests *prometheus.CounterVec

	grpcRequests *prometheus.CounterVec
	grpcDuration *prometheus.HistogramVec
	grpcErrors   *prometheus.CounterVec

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	associations *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter on the default registry.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return NewPrometheusExporterWithRegistry(collector, prometheus.DefaultRegisterer)
}

// NewPrometheusExporterWithRegistry creates a new Prometheus exporter on reg.
func NewPrometheusExporterWithRegistry(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "datagraph_auth_cache_evictions_total",
		Help: "Total number of authorization cache evictions due to capacity",
	}, func() float64 {
		return float64(collector.GetCacheMetrics().Evictions)
	})

	return &PrometheusExporter{
		collector: collector,
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "datagraph_auth_cache_hits_total",
			Help: "Total number of cache hits for authorization decisions",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "datagraph_auth_cache_misses_total",
			Help: "Total number of cache misses for authorization decisions",
		}),
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "datagraph_auth_cache_hit_rate",
			Help: "Current cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "datagraph_auth_cache_keys_current",
			Help: "Current number of keys in the authorization cache",
		}),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datagraph_graphql_operations_total",
				Help: "Total number of GraphQL operations",
			},
			[]string{"operation"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datagraph_graphql_operation_duration_seconds",
				Help:    "Duration of GraphQL operations in seconds",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
		operationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datagraph_graphql_errors_total",
				Help: "Total number of errors returned by GraphQL operations",
			},
			[]string{"operation"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datagraph_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		grpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datagraph_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datagraph_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: durationBuckets,
			},
			[]string{"method"},
		),
		grpcErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datagraph_grpc_errors_total",
				Help: "Total number of gRPC errors",
			},
			[]string{"method"},
		),
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datagraph_store_queries_total",
				Help: "Total number of storage queries",
			},
			[]string{"entity", "operation", "status"},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datagraph_store_query_duration_seconds",
				Help:    "Duration of storage queries in seconds",
				Buckets: durationBuckets,
			},
			[]string{"entity", "operation"},
		),
		associations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datagraph_association_updates_total",
				Help: "Total number of association updates",
			},
			[]string{"entity", "relation", "operation", "status"},
		),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated by the observers, so only gauges are set here.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
}

// ObserveOperation implements handlers.OperationObserver.
func (e *PrometheusExporter) ObserveOperation(operation string, duration time.Duration, errors int) {
	e.collector.RecordRequest(operation)
	e.collector.RecordDuration(operation, duration.Seconds())
	e.operations.WithLabelValues(operation).Inc()
	e.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if errors > 0 {
		e.collector.RecordError(operation)
		e.operationErrors.WithLabelValues(operation).Add(float64(errors))
	}
}

// ObserveQuery implements sqlstore.QueryObserver.
func (e *PrometheusExporter) ObserveQuery(entityType, operation string, seconds float64, err error) {
	e.queries.WithLabelValues(entityType, operation, status(err)).Inc()
	e.queryDuration.WithLabelValues(entityType, operation).Observe(seconds)
}

// ObserveAssociation implements association.Observer.
func (e *PrometheusExporter) ObserveAssociation(entityType, relation, operation string, err error) {
	e.associations.WithLabelValues(entityType, relation, operation, status(err)).Inc()
}

// ObserveAuthCache implements authorization.CacheObserver.
func (e *PrometheusExporter) ObserveAuthCache(hit bool) {
	if hit {
		e.cacheHits.Inc()
	} else {
		e.cacheMisses.Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func (e *PrometheusExporter) RecordHTTPRequest(method, route string, status int) {
	e.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

// RecordRequest records a gRPC request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a gRPC duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records a gRPC error in Prometheus.
func (e *PrometheusExporter) RecordError(method string) {
	e.grpcErrors.WithLabelValues(method).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
