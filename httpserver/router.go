/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zanata/restlimit/httpserver/middleware"
	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/restapi"
)

// systemEndpoints are never guarded by the call limiter and are not involved in metrics collecting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// APIVersion is a type alias for API version.
type APIVersion = int

// APIRoute is a type alias for single API route.
type APIRoute = func(router chi.Router)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	ServiceNameInURL string
	APIRoutes        map[APIVersion]APIRoute
	ErrorDomain      string
	HealthCheck      HealthCheck
	MetricsHandler   http.Handler
	Limiter          CallLimiter
	CallLimitOpts    middleware.CallLimitOpts

	// APIMiddlewares are applied to API routes only, before the call limit middleware.
	APIMiddlewares []func(http.Handler) http.Handler
}

// NewRouter creates a new chi.Router and performs its basic configuration.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	var statsProvider LimiterStatsProvider
	if opts.Limiter != nil {
		statsProvider = opts.Limiter
	}
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck, statsProvider))

	router.Route(fmt.Sprintf("/api/%s", opts.ServiceNameInURL), func(apiRouter chi.Router) {
		apiRouter.Use(opts.APIMiddlewares...)
		if opts.Limiter != nil {
			apiRouter.Use(middleware.CallLimitWithOpts(opts.Limiter, opts.ErrorDomain, opts.CallLimitOpts))
		}
		for ver, r := range opts.APIRoutes {
			apiRouter.Route(fmt.Sprintf("/v%d", ver), r)
		}
	})

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, loggerFromRequest(r, logger))
	})

	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, loggerFromRequest(r, logger))
	})
}

func applyDefaultMiddlewaresToRouter(router chi.Router, cfg *Config, logger log.FieldLogger, errDomain string) {
	router.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			handler.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})

	router.Use(middleware.RequestID())

	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
		RequestStart:           cfg.Log.RequestStart,
		ExcludedEndpoints:      cfg.Log.ExcludedEndpoints,
		AddRequestInfoToLogger: cfg.Log.AddRequestInfoToLogger,
	}))

	router.Use(middleware.Recovery(errDomain))
}

func loggerFromRequest(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}
