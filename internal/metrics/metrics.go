// Package metrics exposes prometheus collectors for checkout, forecast, and HTTP traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCommitted         = "committed"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeNotFound          = "not_found"
	OutcomeInvalid           = "invalid"
	OutcomeFailed            = "failed"
)

// Recorder holds the service collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	forecasts        *prometheus.CounterVec
	cartSessions     prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil registerer yields a no-op recorder.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		return &Recorder{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_checkout_duration_seconds",
		Help:    "Duration of the checkout transaction in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	forecasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_forecasts_total",
		Help: "Forecast requests by result and cache status.",
	}, []string{"result", "cache"})
	cartSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pos_cart_sessions",
		Help: "Open cart sessions.",
	})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(checkouts, checkoutDuration, forecasts, cartSessions, httpRequests, httpDuration)
	return &Recorder{
		checkouts:        checkouts,
		checkoutDuration: checkoutDuration,
		forecasts:        forecasts,
		cartSessions:     cartSessions,
		httpRequests:     httpRequests,
		httpDuration:     httpDuration,
	}
}

func (r *Recorder) ObserveCheckout(outcome string, duration time.Duration) {
	if r == nil || r.checkouts == nil {
		return
	}
	r.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
	r.checkoutDuration.Observe(duration.Seconds())
}

func (r *Recorder) ObserveForecast(result string, cacheHit bool) {
	if r == nil || r.forecasts == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	r.forecasts.WithLabelValues(normalizeLabel(result), cache).Inc()
}

func (r *Recorder) SetCartSessions(n int) {
	if r == nil || r.cartSessions == nil {
		return
	}
	r.cartSessions.Set(float64(n))
}

func (r *Recorder) ObserveHTTP(method string, route string, status int, duration time.Duration) {
	if r == nil || r.httpRequests == nil {
		return
	}
	route = normalizeLabel(route)
	r.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
