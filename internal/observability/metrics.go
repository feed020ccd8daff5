package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Metric status labels.
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the CSE.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Dispatcher (CRUD) metrics
	DispatchOperationsTotal   *prometheus.CounterVec
	DispatchOperationDuration *prometheus.HistogramVec
	DispatchErrorsTotal       *prometheus.CounterVec

	// Subscription/notification metrics
	SubscriptionsTotal      prometheus.Gauge
	SubscriptionEventsTotal *prometheus.CounterVec
	WebhookDeliveryDuration *prometheus.HistogramVec
	WebhookDeliveryTotal    *prometheus.CounterVec

	// Redis (storage) metrics
	RedisOperationsTotal   *prometheus.CounterVec
	RedisOperationDuration *prometheus.HistogramVec
	RedisConnectionsActive prometheus.Gauge
	RedisErrorsTotal       *prometheus.CounterVec

	// Announcement metrics
	AnnounceOperationsTotal   *prometheus.CounterVec
	AnnounceOperationDuration *prometheus.HistogramVec
	AnnounceTargetsTracked    *prometheus.GaugeVec
	AnnounceErrorsTotal       *prometheus.CounterVec

	// Expiration sweep metrics
	SweepOperationsTotal   *prometheus.CounterVec
	SweepOperationDuration *prometheus.HistogramVec
	SweepResourcesExpired  *prometheus.CounterVec
	SweepConcurrentWorkers prometheus.Gauge
}

var (
	// globalMetrics is the singleton metrics instance.
	globalMetrics *Metrics
)

// InitMetrics initializes and registers all Prometheus metrics.
// Returns the existing metrics instance if already initialized (idempotent).
func InitMetrics(namespace string) *Metrics {
	// Return existing instance if already initialized
	if globalMetrics != nil {
		return globalMetrics
	}

	if namespace == "" {
		namespace = "acme_cse"
	}

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		HTTPResponseSizeBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Dispatcher metrics
		DispatchOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_operations_total",
				Help:      "Total number of Dispatcher CRUD operations",
			},
			[]string{"operation", "resource_type", "status"},
		),

		DispatchOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_operation_duration_seconds",
				Help:      "Dispatcher operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "resource_type"},
		),

		DispatchErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_errors_total",
				Help:      "Total number of Dispatcher operation errors, by response status code",
			},
			[]string{"operation", "resource_type", "rsc"},
		),

		// Subscription metrics
		SubscriptionsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscriptions_total",
				Help:      "Current number of active subscriptions",
			},
		),

		SubscriptionEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_events_total",
				Help:      "Total number of subscription events generated",
			},
			[]string{"event_type", "resource_type"},
		),

		WebhookDeliveryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_delivery_duration_seconds",
				Help:      "Webhook delivery latency in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),

		WebhookDeliveryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_delivery_total",
				Help:      "Total number of webhook delivery attempts",
			},
			[]string{"status", "http_status"},
		),

		// Redis metrics
		RedisOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redis_operations_total",
				Help:      "Total number of Redis operations",
			},
			[]string{"operation", "status"},
		),

		RedisOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "redis_operation_duration_seconds",
				Help:      "Redis operation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"operation"},
		),

		RedisConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "redis_connections_active",
				Help:      "Number of active Redis connections",
			},
		),

		RedisErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redis_errors_total",
				Help:      "Total number of Redis errors",
			},
			[]string{"operation", "error_type"},
		),

		// Announcement metrics
		AnnounceOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "announce_operations_total",
				Help:      "Total number of resource announcement operations to remote CSEs",
			},
			[]string{"operation", "target_csi", "status"},
		),

		AnnounceOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "announce_operation_duration_seconds",
				Help:      "Resource announcement operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "target_csi"},
		),

		AnnounceTargetsTracked: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "announce_targets_tracked",
				Help:      "Number of announced-resource mappings currently tracked per target CSE",
			},
			[]string{"target_csi"},
		),

		AnnounceErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "announce_errors_total",
				Help:      "Total number of resource announcement errors",
			},
			[]string{"operation", "target_csi", "error_type"},
		),

		// Expiration sweep metrics
		SweepOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_operations_total",
				Help:      "Total number of expiration sweep runs",
			},
			[]string{"status"},
		),

		SweepOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_operation_duration_seconds",
				Help:      "Expiration sweep run duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		SweepResourcesExpired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_resources_expired_total",
				Help:      "Total number of resources deleted by the expiration sweeper",
			},
			[]string{"resource_type"},
		),

		SweepConcurrentWorkers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sweep_concurrent_workers",
				Help:      "Number of concurrent workers processing the current sweep batch",
			},
		),
	}

	globalMetrics = m
	return m
}

// GetMetrics returns the global metrics instance.
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		panic("metrics not initialized - call InitMetrics first")
	}
	return globalMetrics
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, responseSize int) {
	status := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordDispatchOperation records Dispatcher CRUD operation metrics. rsc
// is the oneM2M response status code as a string, empty on success.
func (m *Metrics) RecordDispatchOperation(operation, resourceType string, duration time.Duration, rsc string) {
	status := statusSuccess
	if rsc != "" {
		status = statusError
		m.DispatchErrorsTotal.WithLabelValues(operation, resourceType, rsc).Inc()
	}
	m.DispatchOperationsTotal.WithLabelValues(operation, resourceType, status).Inc()
	m.DispatchOperationDuration.WithLabelValues(operation, resourceType).Observe(duration.Seconds())
}

// RecordSubscriptionEvent records subscription event metrics.
func (m *Metrics) RecordSubscriptionEvent(eventType, resourceType string) {
	m.SubscriptionEventsTotal.WithLabelValues(eventType, resourceType).Inc()
}

// RecordWebhookDelivery records webhook delivery metrics.
func (m *Metrics) RecordWebhookDelivery(duration time.Duration, httpStatusCode int, err error) {
	status := statusSuccess
	httpStatus := strconv.Itoa(httpStatusCode)

	if err != nil || httpStatusCode >= 400 {
		status = statusError
	}

	m.WebhookDeliveryDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.WebhookDeliveryTotal.WithLabelValues(status, httpStatus).Inc()
}

// RecordRedisOperation records Redis operation metrics.
func (m *Metrics) RecordRedisOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.RedisErrorsTotal.WithLabelValues(operation, "general").Inc()
	}
	m.RedisOperationsTotal.WithLabelValues(operation, status).Inc()
	m.RedisOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAnnounceOperation records a resource announcement operation
// against a remote CSE.
func (m *Metrics) RecordAnnounceOperation(operation, targetCSI string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.AnnounceErrorsTotal.WithLabelValues(operation, targetCSI, "general").Inc()
	}
	m.AnnounceOperationsTotal.WithLabelValues(operation, targetCSI, status).Inc()
	m.AnnounceOperationDuration.WithLabelValues(operation, targetCSI).Observe(duration.Seconds())
}

// SetSubscriptionCount sets the current subscription count.
func (m *Metrics) SetSubscriptionCount(count int) {
	m.SubscriptionsTotal.Set(float64(count))
}

// SetRedisConnectionsActive sets the number of active Redis connections.
func (m *Metrics) SetRedisConnectionsActive(count int) {
	m.RedisConnectionsActive.Set(float64(count))
}

// SetAnnounceTargetsTracked sets the number of announced-resource
// mappings currently tracked for a target CSE.
func (m *Metrics) SetAnnounceTargetsTracked(targetCSI string, count int) {
	m.AnnounceTargetsTracked.WithLabelValues(targetCSI).Set(float64(count))
}

// HTTPInFlightInc increments the in-flight HTTP request counter.
func (m *Metrics) HTTPInFlightInc() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTPInFlightDec decrements the in-flight HTTP request counter.
func (m *Metrics) HTTPInFlightDec() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordSweepOperation records an expiration sweep run: how long it
// took and how many resources of each type it deleted.
func (m *Metrics) RecordSweepOperation(duration time.Duration, expiredByType map[string]int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SweepOperationsTotal.WithLabelValues(status).Inc()
	m.SweepOperationDuration.WithLabelValues(status).Observe(duration.Seconds())
	for resourceType, count := range expiredByType {
		m.SweepResourcesExpired.WithLabelValues(resourceType).Add(float64(count))
	}
}

// SetSweepConcurrentWorkers sets the current number of concurrent
// expiration-sweep workers.
func (m *Metrics) SetSweepConcurrentWorkers(count int) {
	m.SweepConcurrentWorkers.Set(float64(count))
}
