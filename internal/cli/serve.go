/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cli

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zanata/restlimit/config"
	"github.com/zanata/restlimit/httpserver"
	"github.com/zanata/restlimit/httpserver/middleware"
	"github.com/zanata/restlimit/limits"
	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/restapi"
	"github.com/zanata/restlimit/service"
)

const (
	serviceName      = "restlimit"
	errDomain        = "RestLimit"
	metricsNamespace = "restlimit"

	maxDemoWorkDuration = time.Minute
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var retryAfter time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server with call limiting of API routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, retryAfter)
		},
	}
	cmd.Flags().DurationVar(&retryAfter, "retry-after", 0,
		"value of Retry-After header for rejected calls (0 disables the header)")
	return cmd
}

func runServe(ctx context.Context, flags *rootFlags, retryAfter time.Duration) error {
	loader, appCfg, err := loadAppConfig(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLogger := log.NewLogger(appCfg.Log)
	defer closeLogger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	restapi.MustInitAndRegisterMetrics(metricsNamespace, registry)
	defer restapi.UnregisterMetrics(registry)

	limiterMetrics := limits.NewPrometheusMetricsWithOpts(limits.PrometheusMetricsOpts{Namespace: metricsNamespace})
	limiterMetrics.MustRegister(registry)
	defer limiterMetrics.Unregister(registry)

	limiter, err := limits.NewFromConfig(appCfg.Limits, limits.Opts{Logger: logger, MetricsCollector: limiterMetrics})
	if err != nil {
		return fmt.Errorf("create call limiter: %w", err)
	}

	reloader := &limitsReloader{limiter: limiter, logger: logger, flags: flags}
	if flags.configFile != "" {
		watchedLimits := limits.NewConfig()
		if err = loader.Watch(func(reloadErr error) {
			reloader.apply(watchedLimits, reloadErr)
		}, watchedLimits); err != nil {
			return fmt.Errorf("watch config file: %w", err)
		}
	}

	var callLimitOpts middleware.CallLimitOpts
	if retryAfter > 0 {
		callLimitOpts.GetRetryAfter = func(_ *http.Request) time.Duration { return retryAfter }
	}

	srv := httpserver.New(appCfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: serviceName,
		APIRoutes:        map[httpserver.APIVersion]httpserver.APIRoute{1: demoAPIRoute},
		ErrorDomain:      errDomain,
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
			Namespace: metricsNamespace,
		},
		Limiter:       limiter,
		CallLimitOpts: callLimitOpts,
	})

	svc := service.NewWithOpts(logger, srv, service.Opts{
		MetricsRegisterer: registry,
		OnReload:          reloader.reloadFromFile,
	})
	return svc.StartContext(ctx)
}

// limitsReloader applies reloaded limits to the running call limiter.
// Reloads may come from the file watcher and from SIGHUP concurrently.
type limitsReloader struct {
	mu      sync.Mutex
	limiter *limits.CallLimiter
	logger  log.FieldLogger
	flags   *rootFlags
}

func (r *limitsReloader) apply(cfg *limits.Config, loadErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if loadErr != nil {
		r.logger.Error("failed to reload limits, previous values are kept", log.Error(loadErr))
		return
	}
	if err := r.limiter.ApplyConfig(cfg); err != nil {
		r.logger.Error("failed to apply reloaded limits", log.Error(err))
		return
	}
	r.logger.Info("limits reloaded",
		log.Int(limits.LogFieldMaxConcurrent, r.limiter.MaxConcurrent()),
		log.Int(limits.LogFieldMaxActive, r.limiter.MaxActive()),
	)
}

func (r *limitsReloader) reloadFromFile() {
	cfg := limits.NewConfig()
	err := loadConfig(config.NewDefaultLoader(r.flags.envVarsPrefix), r.flags.configFile, cfg)
	r.apply(cfg, err)
}

type demoResponseData struct {
	Message  string `json:"message"`
	Duration string `json:"duration"`
}

// demoAPIRoute registers GET /work, which simulates a call taking the duration from the "duration" query parameter.
func demoAPIRoute(router chi.Router) {
	router.Get("/work", func(rw http.ResponseWriter, r *http.Request) {
		logger := middleware.GetLoggerFromContext(r.Context())
		dur, err := time.ParseDuration(r.URL.Query().Get("duration"))
		if err != nil || dur < 0 || dur > maxDemoWorkDuration {
			dur = 0
		}
		select {
		case <-time.After(dur):
		case <-r.Context().Done():
			rw.WriteHeader(middleware.StatusClientClosedRequest)
			return
		}
		restapi.RespondJSON(rw, demoResponseData{Message: "done", Duration: dur.String()}, logger)
	})
}
