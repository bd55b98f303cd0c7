/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label order matters: HTTPRequestMetrics passes values positionally.
var httpRequestDurationLabels = []string{"method", "route_pattern", "status_code"}

// DefaultHTTPRequestDurationBuckets are the default buckets of http_request_duration_seconds.
var DefaultHTTPRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPRequestMetricsCollectorOpts represents options for NewHTTPRequestMetricsCollectorWithOpts.
type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector represents collector of metrics for incoming HTTP requests.
// Requests rejected by the call limiter are counted with their response status (503 by default),
// so the rejection rate per route is visible next to the limiter's own counters.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestMetricsCollector creates a new metrics collector.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts is a more configurable version of creating HTTPRequestMetricsCollector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	durBuckets := opts.DurationBuckets
	if durBuckets == nil {
		durBuckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "A histogram of the HTTP request durations.",
			Buckets:     durBuckets,
			ConstLabels: opts.ConstLabels,
		}, httpRequestDurationLabels),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Current number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}, httpRequestDurationLabels[:1]),
	}
}

// MustRegister registers all metrics of the collector and panics on error.
func (c *HTTPRequestMetricsCollector) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(c.Durations, c.InFlight)
}

// Unregister removes all metrics of the collector from the registerer.
func (c *HTTPRequestMetricsCollector) Unregister(registerer prometheus.Registerer) {
	registerer.Unregister(c.InFlight)
	registerer.Unregister(c.Durations)
}

// HTTPRequestMetrics observes the duration of every request (by method, route pattern and status)
// and tracks requests in flight. A panicking request is observed with 500 unless it is http.ErrAbortHandler.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		getRoutePattern = GetChiRoutePattern
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			startTime := GetRequestStartTimeFromContext(r.Context())
			if startTime.IsZero() {
				startTime = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
			}

			inFlight := collector.InFlight.WithLabelValues(r.Method)
			inFlight.Inc()
			defer inFlight.Dec()

			observe := func(status int) {
				collector.Durations.WithLabelValues(
					r.Method, getRoutePattern(r), strconv.Itoa(status),
				).Observe(time.Since(startTime).Seconds())
			}

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				if p := recover(); p != nil {
					if p != http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
						observe(http.StatusInternalServerError)
					}
					panic(p)
				}
				status := wrw.Status()
				if status == 0 {
					status = http.StatusOK
				}
				observe(status)
			}()

			next.ServeHTTP(wrw, r)
		})
	}
}
