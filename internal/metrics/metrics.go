package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warimas_checkout"

// CheckoutMetrics holds every collector the service exports.
type CheckoutMetrics struct {
	Completions   *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Compensations *prometheus.CounterVec
	OutboxPublish *prometheus.CounterVec
	Requests      *prometheus.CounterVec
	Latency       *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *CheckoutMetrics {
	m := &CheckoutMetrics{
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Checkout completion attempts by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Checkout completion latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensation steps by step and result.",
		}, []string{"step", "result"}),
		OutboxPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_total",
			Help:      "Outbox publish attempts by event type and result.",
		}, []string{"event_type", "result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}

	reg.MustRegister(m.Completions, m.Duration, m.Compensations, m.OutboxPublish, m.Requests, m.Latency)
	return m
}

func (m *CheckoutMetrics) ObserveCompletion(outcome string, elapsed time.Duration) {
	m.Completions.WithLabelValues(outcome).Inc()
	m.Duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *CheckoutMetrics) ObserveCompensation(step string, ok bool) {
	m.Compensations.WithLabelValues(step, result(ok)).Inc()
}

// ObserveOutboxPublish has the shape notification.Poller.OnPublish expects.
func (m *CheckoutMetrics) ObserveOutboxPublish(eventType string, err error) {
	m.OutboxPublish.WithLabelValues(eventType, result(err == nil)).Inc()
}

// Middleware counts requests by chi route pattern, so path parameters do not
// explode the label set.
func (m *CheckoutMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := StartTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.Latency.WithLabelValues(route).Observe(timer.Seconds())
	})
}

func (m *CheckoutMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
