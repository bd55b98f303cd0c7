/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/zanata/restlimit/httpserver/middleware"
	"github.com/zanata/restlimit/limits"
	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/restapi"
)

// HealthCheckComponentName is a type alias for component names. It's used for better readability.
type HealthCheckComponentName = string

// HealthCheckStatus is a resulting status of the health-check.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult is a type alias for result of health-check operation. It's used for better readability.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck is a type alias for context-aware health-check operation.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

// LimiterStatsProvider provides a snapshot of the call limiter state.
type LimiterStatsProvider interface {
	Stats() limits.Stats
}

type healthCheckResponseData struct {
	Components  map[string]bool `json:"components"`
	CallLimiter *limits.Stats   `json:"callLimiter,omitempty"`
}

// HealthCheckHandler implements http.Handler and does health-check of a service.
// Besides the statuses of components, the response contains the current state of the call limiter.
// A saturated limiter does not make the service unhealthy.
type HealthCheckHandler struct {
	healthCheckFn HealthCheck
	limiter       LimiterStatsProvider
}

// NewHealthCheckHandler creates a new http.Handler for doing health-check.
// Passing function will be called inside handler and should return statuses of service's components.
// Limiter may be nil.
func NewHealthCheckHandler(fn HealthCheck, limiter LimiterStatsProvider) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{healthCheckFn: fn, limiter: limiter}
}

// ServeHTTP serves heath-check HTTP request.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	hcResult, err := h.healthCheckFn(r.Context())
	if err != nil {
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(middleware.StatusClientClosedRequest)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	respStatus := http.StatusOK
	respData := healthCheckResponseData{Components: make(map[string]bool, len(hcResult))}
	for name, status := range hcResult {
		respData.Components[name] = status == HealthCheckStatusOK
		if status == HealthCheckStatusFail {
			respStatus = http.StatusServiceUnavailable
		}
	}
	if h.limiter != nil {
		stats := h.limiter.Stats()
		respData.CallLimiter = &stats
	}

	restapi.RespondCodeAndJSON(rw, respStatus, respData, logger)
}
