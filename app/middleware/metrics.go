// Package middleware holds Fiber middleware shared by the attribution API
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "attribution"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed, by method, route template and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests currently being served",
		},
	)

	// trackedRedirectsTotal counts public /r/:uid visits by whether the uid resolved
	trackedRedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tracked_redirects_total",
			Help:      "Tracked link visits, by outcome",
		},
		[]string{"outcome"},
	)
)

// Metrics records request counters and latencies. Requests whose path starts with one of
// skip (health probes, the scrape endpoint) are not recorded.
func Metrics(skip ...string) fiber.Handler {
	return func(c fiber.Ctx) error {
		for _, prefix := range skip {
			if prefix != "" && strings.HasPrefix(c.Path(), prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(c.Response().StatusCode()),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		if strings.HasPrefix(route, "/r/") {
			outcome := "resolved"
			if c.Locals(TrackedRedirectFallbackKey) == true {
				outcome = "fallback"
			}
			trackedRedirectsTotal.WithLabelValues(outcome).Inc()
		}
		return err
	}
}

// TrackedRedirectFallbackKey is set in Locals by the redirect handler when it served the fallback URL
const TrackedRedirectFallbackKey = "tracked_redirect_fallback"
