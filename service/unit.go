/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import "github.com/prometheus/client_golang/prometheus"

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation.
	// It may return immediately after initialization or block for the unit's lifetime.
	// If Start succeeds, it must not write anything to the provided error channel.
	Start(fatalErr chan<- error)

	// Stop halts the unit.
	// It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for units that can register their own metrics
// in the Prometheus registry of the service.
type MetricsRegisterer interface {
	MustRegisterMetrics(registerer prometheus.Registerer)
	UnregisterMetrics(registerer prometheus.Registerer)
}
