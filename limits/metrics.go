/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zanata/restlimit/internal/buildinfo"
)

// DefaultActiveWaitDurationBuckets is the default buckets for the histogram of time spent waiting for an active permit.
var DefaultActiveWaitDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// MetricsCollector represents a collector of metrics to analyze how the call limiter admits calls.
type MetricsCollector interface {
	// SetMaxConcurrent sets the currently configured cap of concurrently accepted calls.
	SetMaxConcurrent(n int)

	// SetMaxActive sets the currently configured cap of actively executing calls.
	SetMaxActive(n int)

	// IncAdmitted increments the total number of calls which got both permits and were executed.
	IncAdmitted()

	// IncRejected increments the total number of calls denied because there was no free concurrent permit.
	IncRejected()

	// IncCanceled increments the total number of calls which gave up while waiting for an active permit.
	IncCanceled()

	// ObserveActiveWait observes the time a call spent waiting for an active permit.
	ObserveActiveWait(d time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// ActiveWaitDurationBuckets is a list of buckets for the active wait histogram.
	// DefaultActiveWaitDurationBuckets is used if empty.
	ActiveWaitDurationBuckets []float64
}

// PrometheusMetrics represents Prometheus metrics for the call limiter.
type PrometheusMetrics struct {
	MaxConcurrent      prometheus.Gauge
	MaxActive          prometheus.Gauge
	AdmittedTotal      prometheus.Counter
	RejectedTotal      prometheus.Counter
	CanceledTotal      prometheus.Counter
	ActiveWaitDuration prometheus.Histogram
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.ActiveWaitDurationBuckets
	if len(buckets) == 0 {
		buckets = DefaultActiveWaitDurationBuckets
	}
	opts.ConstLabels = buildinfo.AddPrometheusVersionLabel(opts.ConstLabels)
	return &PrometheusMetrics{
		MaxConcurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "call_limiter_max_concurrent",
			Help:        "Configured maximum number of concurrently accepted calls (0 means unlimited).",
			ConstLabels: opts.ConstLabels,
		}),
		MaxActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "call_limiter_max_active",
			Help:        "Configured maximum number of actively executing calls (0 means unlimited).",
			ConstLabels: opts.ConstLabels,
		}),
		AdmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "call_limiter_admitted_total",
			Help:        "Number of calls admitted for execution.",
			ConstLabels: opts.ConstLabels,
		}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "call_limiter_rejected_total",
			Help:        "Number of calls rejected due to concurrent limit exceeded.",
			ConstLabels: opts.ConstLabels,
		}),
		CanceledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "call_limiter_canceled_total",
			Help:        "Number of calls canceled while waiting for an active permit.",
			ConstLabels: opts.ConstLabels,
		}),
		ActiveWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "call_limiter_active_wait_seconds",
			Help:        "Time spent by admitted calls waiting for an active permit.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in the registerer and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		pm.MaxConcurrent,
		pm.MaxActive,
		pm.AdmittedTotal,
		pm.RejectedTotal,
		pm.CanceledTotal,
		pm.ActiveWaitDuration,
	)
}

// Unregister cancels registration of metrics collector in the registerer.
func (pm *PrometheusMetrics) Unregister(registerer prometheus.Registerer) {
	registerer.Unregister(pm.MaxConcurrent)
	registerer.Unregister(pm.MaxActive)
	registerer.Unregister(pm.AdmittedTotal)
	registerer.Unregister(pm.RejectedTotal)
	registerer.Unregister(pm.CanceledTotal)
	registerer.Unregister(pm.ActiveWaitDuration)
}

// SetMaxConcurrent sets the call_limiter_max_concurrent gauge.
func (pm *PrometheusMetrics) SetMaxConcurrent(n int) {
	pm.MaxConcurrent.Set(float64(n))
}

// SetMaxActive sets the call_limiter_max_active gauge.
func (pm *PrometheusMetrics) SetMaxActive(n int) {
	pm.MaxActive.Set(float64(n))
}

// IncAdmitted increments the total number of admitted calls.
func (pm *PrometheusMetrics) IncAdmitted() {
	pm.AdmittedTotal.Inc()
}

// IncRejected increments the total number of rejected calls.
func (pm *PrometheusMetrics) IncRejected() {
	pm.RejectedTotal.Inc()
}

// IncCanceled increments the total number of calls canceled while waiting.
func (pm *PrometheusMetrics) IncCanceled() {
	pm.CanceledTotal.Inc()
}

// ObserveActiveWait observes the time spent waiting for an active permit.
func (pm *PrometheusMetrics) ObserveActiveWait(d time.Duration) {
	pm.ActiveWaitDuration.Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) SetMaxConcurrent(int)            {}
func (disabledMetrics) SetMaxActive(int)                {}
func (disabledMetrics) IncAdmitted()                    {}
func (disabledMetrics) IncRejected()                    {}
func (disabledMetrics) IncCanceled()                    {}
func (disabledMetrics) ObserveActiveWait(time.Duration) {}
