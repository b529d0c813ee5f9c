package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Entitlement metrics
	AuthorizeTotal    *prometheus.CounterVec
	CommitTotal       *prometheus.CounterVec
	CommittedAmount   *prometheus.CounterVec
	ReserveTotal      *prometheus.CounterVec
	SubscriptionReads *prometheus.CounterVec
	PlanChangesTotal  *prometheus.CounterVec

	// Billing metrics
	BillingCallsTotal    *prometheus.CounterVec
	BillingCallDuration  *prometheus.HistogramVec
	WebhookEventsTotal   *prometheus.CounterVec
	StoreErrorsTotal     *prometheus.CounterVec
	BackgroundTasksTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfsaas_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthorizeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_authorize_total",
				Help: "Total number of usage authorization checks",
			},
			[]string{"limit", "result"},
		),
		CommitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_commit_total",
				Help: "Total number of usage commits",
			},
			[]string{"kind", "result"},
		),
		CommittedAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_committed_amount_total",
				Help: "Sum of positive usage amounts committed",
			},
			[]string{"kind"},
		),
		ReserveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_reserve_total",
				Help: "Total number of atomic usage reservations",
			},
			[]string{"limit", "result"},
		),
		SubscriptionReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_subscription_reads_total",
				Help: "Subscription reads by source",
			},
			[]string{"source"},
		),
		PlanChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_plan_changes_total",
				Help: "Plan changes by target plan and result",
			},
			[]string{"plan", "result"},
		),
		BillingCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_billing_calls_total",
				Help: "Calls to the billing provider",
			},
			[]string{"operation", "result"},
		),
		BillingCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfsaas_billing_call_duration_seconds",
				Help:    "Billing provider call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_webhook_events_total",
				Help: "Billing webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_store_errors_total",
				Help: "Durable store failures by operation",
			},
			[]string{"operation"},
		),
		BackgroundTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsaas_background_tasks_total",
				Help: "Best-effort background tasks by name and result",
			},
			[]string{"task", "result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthorizeTotal,
		m.CommitTotal,
		m.CommittedAmount,
		m.ReserveTotal,
		m.SubscriptionReads,
		m.PlanChangesTotal,
		m.BillingCallsTotal,
		m.BillingCallDuration,
		m.WebhookEventsTotal,
		m.StoreErrorsTotal,
		m.BackgroundTasksTotal,
	)

	return m
}

// NewTestMetrics registers metrics on a private registry
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveBillingCall records the outcome and latency of a provider call
func (m *Metrics) ObserveBillingCall(operation string, start time.Time, err error) {
	m.BillingCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	m.BillingCallsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

// GinMiddleware records request counts and latency per route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
