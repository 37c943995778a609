package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once
	registry *prometheus.Registry
	instance *Metrics
)

// Metrics holds the Prometheus collectors exported by the API.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec   // kpcloud_http_requests_total{method,route,status}
	HTTPDuration *prometheus.HistogramVec // kpcloud_http_request_duration_seconds{method,route}

	StoreOpDuration *prometheus.HistogramVec // kpcloud_objectstore_operation_duration_seconds{op}
	StoreOpErrors   *prometheus.CounterVec   // kpcloud_objectstore_operation_errors_total{op}

	BillingTransitions *prometheus.CounterVec // kpcloud_billing_transitions_total{transition}
	QuotaDenials       *prometheus.CounterVec // kpcloud_quota_denials_total{reason}
	PurgedObjects      prometheus.Counter

	NotificationFailures *prometheus.CounterVec // kpcloud_notification_failures_total{kind}

	UsageScanObjects  prometheus.Histogram
	UsageScanDuration prometheus.Histogram
}

// InitMetrics registers every collector on a private registry. Subsequent
// calls return the same instance.
func InitMetrics() *Metrics {
	initOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		factory := promauto.With(registry)

		instance = &Metrics{
			HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "kpcloud_http_requests_total",
				Help: "HTTP requests served, by route and status",
			}, []string{"method", "route", "status"}),
			HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kpcloud_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
			StoreOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kpcloud_objectstore_operation_duration_seconds",
				Help:    "Object store call latency by operation",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			}, []string{"op"}),
			StoreOpErrors: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "kpcloud_objectstore_operation_errors_total",
				Help: "Failed object store calls by operation",
			}, []string{"op"}),
			BillingTransitions: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "kpcloud_billing_transitions_total",
				Help: "Billing state transitions applied by ticks",
			}, []string{"transition"}),
			QuotaDenials: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "kpcloud_quota_denials_total",
				Help: "Operations denied by the quota guard",
			}, []string{"reason"}),
			PurgedObjects: factory.NewCounter(prometheus.CounterOpts{
				Name: "kpcloud_purged_objects_total",
				Help: "Objects deleted by account auto-purge",
			}),
			NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "kpcloud_notification_failures_total",
				Help: "Account notices that could not be delivered",
			}, []string{"kind"}),
			UsageScanObjects: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "kpcloud_usage_scan_objects",
				Help:    "Objects visited per usage scan",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			}),
			UsageScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "kpcloud_usage_scan_duration_seconds",
				Help:    "Wall time of a usage scan",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return instance
}

// Registry exposes the registry used by InitMetrics.
func Registry() *prometheus.Registry {
	InitMetrics()
	return registry
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})))
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	m := InitMetrics()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveStoreOp records one object store call.
func ObserveStoreOp(op string, elapsed time.Duration, err error) {
	m := InitMetrics()
	m.StoreOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.StoreOpErrors.WithLabelValues(op).Inc()
	}
}

// BillingTransition counts an applied billing transition.
func BillingTransition(transition string) {
	InitMetrics().BillingTransitions.WithLabelValues(transition).Inc()
}

// QuotaDenied counts a guard denial.
func QuotaDenied(reason string) {
	InitMetrics().QuotaDenials.WithLabelValues(reason).Inc()
}

// ObjectsPurged adds n purged objects.
func ObjectsPurged(n int) {
	InitMetrics().PurgedObjects.Add(float64(n))
}

// NotificationFailed counts an undelivered notice.
func NotificationFailed(kind string) {
	InitMetrics().NotificationFailures.WithLabelValues(kind).Inc()
}

// UsageScanned records the size and duration of one usage scan.
func UsageScanned(objects int, elapsed time.Duration) {
	m := InitMetrics()
	m.UsageScanObjects.Observe(float64(objects))
	m.UsageScanDuration.Observe(elapsed.Seconds())
}
