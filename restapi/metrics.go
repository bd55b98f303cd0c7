/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
)

var (
	metricsMu             sync.RWMutex
	metricsResponseErrors *prometheus.CounterVec
)

// MustInitAndRegisterMetrics initializes restapi global metrics and registers them in the registerer.
// Panic will be raised in case of error.
func MustInitAndRegisterMetrics(namespace string, registerer prometheus.Registerer) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: metricsSubsystem,
		Name:      "response_errors_total",
		Help:      "The total number of REST API errors that were responded.",
	}, []string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode})
	registerer.MustRegister(counter)

	metricsMu.Lock()
	metricsResponseErrors = counter
	metricsMu.Unlock()
}

// UnregisterMetrics unregisters restapi global metrics.
func UnregisterMetrics(registerer prometheus.Registerer) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsResponseErrors != nil {
		registerer.Unregister(metricsResponseErrors)
		metricsResponseErrors = nil
	}
}

func collectResponseErrorMetrics(err *Error) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if metricsResponseErrors == nil {
		return
	}
	metricsResponseErrors.With(prometheus.Labels{
		metricsLabelResponseErrorDomain: err.Domain,
		metricsLabelResponseErrorCode:   err.Code,
	}).Inc()
}
