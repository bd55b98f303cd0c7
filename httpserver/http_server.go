/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides an HTTP server which guards API routes with the call limiter.
// System endpoints (/metrics, /healthz) are always served, even when the limiter is saturated.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/zanata/restlimit/httpserver/middleware"
	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/service"
)

// CallLimiter is the limiter guarding API routes. *limits.CallLimiter implements it.
type CallLimiter interface {
	middleware.CallLimiter
	LimiterStatsProvider
}

// HTTPRequestMetricsOpts represents options for HTTPRequestMetrics middleware that used in HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
	GetRoutePattern middleware.RoutePatternGetterFunc
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// ServiceNameInURL is a prefix for API routes (e.g., "/api/service_name/v1").
	ServiceNameInURL string
	// APIRoutes is a map of API versions to their route configuration functions.
	APIRoutes map[APIVersion]APIRoute
	// ErrorDomain is used for error response formatting.
	ErrorDomain string
	// HealthCheck is a function that performs health check logic.
	HealthCheck HealthCheck
	// MetricsHandler is a custom handler for the /metrics endpoint.
	MetricsHandler http.Handler
	// HTTPRequestMetrics contains options for configuring HTTP request metrics middleware.
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Limiter guards API routes. If nil, API routes are not limited.
	Limiter CallLimiter
	// CallLimitOpts customizes responses of the call limit middleware.
	CallLimitOpts middleware.CallLimitOpts
}

// HTTPServer runs the restlimit HTTP API as a service.Unit.
// Its request metrics are registered through service.MetricsRegisterer.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	port           atomic.Int32
	serveDone      atomic.Pointer[chan struct{}]
	httpReqMetrics *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined logging, metrics collecting,
// recovering after panics, call limiting of API routes and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint // hugeParam: opts is heavy, it's ok in this case.
	httpReqMetrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})

	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts.ErrorDomain)
	configureRouter(router, logger, RouterOpts{
		ServiceNameInURL: opts.ServiceNameInURL,
		APIRoutes:        opts.APIRoutes,
		ErrorDomain:      opts.ErrorDomain,
		HealthCheck:      opts.HealthCheck,
		MetricsHandler:   opts.MetricsHandler,
		Limiter:          opts.Limiter,
		CallLimitOpts:    opts.CallLimitOpts,
		APIMiddlewares: []func(http.Handler) http.Handler{
			middleware.HTTPRequestMetrics(httpReqMetrics, opts.HTTPRequestMetrics.GetRoutePattern),
		},
	})

	return &HTTPServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      cfg.Timeouts.Write,
			ReadTimeout:       cfg.Timeouts.Read,
			ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
			IdleTimeout:       cfg.Timeouts.Idle,
			Handler:           router,
		},
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
		httpReqMetrics:  httpReqMetrics,
	}
}

// Start listens on the configured address and serves until Stop is called. It blocks, so run it in a goroutine.
// Listen and serve errors other than http.ErrServerClosed are sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serveDone.Store(&done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting application HTTP server...")

	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err == nil {
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			s.port.Store(int32(tcpAddr.Port))
		}
		err = s.HTTPServer.Serve(ln)
	}
	switch {
	case errors.Is(err, http.ErrServerClosed):
		logger.Info("application HTTP server closed")
	case err != nil:
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the server and waits until Start returns.
// A graceful stop waits (up to ShutdownTimeout) for in-flight requests, including those waiting for an active permit.
// Otherwise all connections are closed at once.
func (s *HTTPServer) Stop(gracefully bool) error {
	defer s.waitServeDone()

	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	return nil
}

func (s *HTTPServer) waitServeDone() {
	if done := s.serveDone.Load(); done != nil {
		<-*done
	}
}

// MustRegisterMetrics registers HTTP request metrics in the registerer and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics(registerer prometheus.Registerer) {
	s.httpReqMetrics.MustRegister(registerer)
}

// UnregisterMetrics unregisters HTTP request metrics.
func (s *HTTPServer) UnregisterMetrics(registerer prometheus.Registerer) {
	s.httpReqMetrics.Unregister(registerer)
}

// GetPort returns the port the server listens on, or 0 if it hasn't started yet.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
