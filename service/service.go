/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs a single unit (usually the HTTP server guarded by the call limiter)
// until a fatal error occurs, the context is canceled or a shutdown signal is received.
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zanata/restlimit/log"
)

// Opts represents an options for Service.
type Opts struct {
	ShutdownSignals []os.Signal

	// ReloadSignals are handled by calling OnReload without stopping the unit.
	// SIGHUP is used when OnReload is set and no signals are specified.
	ReloadSignals []os.Signal
	OnReload      func()

	// MetricsRegisterer is used for units implementing MetricsRegisterer.
	// prometheus.DefaultRegisterer is used if nil.
	MetricsRegisterer prometheus.Registerer
}

// Service represents a service which registers metrics of its unit,
// starts the unit and stops it in a graceful way by OS signal.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates new Service which will start and stop passing unit.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	if len(opts.ShutdownSignals) == 0 {
		opts.ShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if opts.OnReload != nil && len(opts.ReloadSignals) == 0 {
		opts.ReloadSignals = []os.Signal{syscall.SIGHUP}
	}
	if opts.MetricsRegisterer == nil {
		opts.MetricsRegisterer = prometheus.DefaultRegisterer
	}
	return &Service{
		Signals: make(chan os.Signal, 1),
		Unit:    unit,
		Logger:  logger,
		Opts:    opts,
	}
}

// Start wraps StartContext using the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts service unit in the separate goroutine and
// blocks until fatal error occurs, context is canceled or any of the OS shutting down signals are received.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics(s.Opts.MetricsRegisterer)
		defer mr.UnregisterMetrics(s.Opts.MetricsRegisterer)
	}

	fatalError := make(chan error, 1)

	go s.Unit.Start(fatalError)

	signal.Notify(s.Signals, append(append([]os.Signal{}, s.Opts.ShutdownSignals...), s.Opts.ReloadSignals...)...)
	defer signal.Stop(s.Signals)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("context is canceled, service will be stopped")
			return s.stopUnit()
		case err := <-fatalError:
			s.Logger.Error("service fatal error", log.Error(err))
			return fmt.Errorf("fatal error: %w", err)
		case sig := <-s.Signals:
			if s.isReloadSignal(sig) {
				s.Logger.Info("service got reload signal", log.String("signal", sig.String()))
				s.Opts.OnReload()
				continue
			}
			s.Logger.Info("service got signal", log.String("signal", sig.String()))
			return s.stopUnit()
		}
	}
}

func (s *Service) stopUnit() error {
	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	return nil
}

func (s *Service) isReloadSignal(sig os.Signal) bool {
	if s.Opts.OnReload == nil {
		return false
	}
	for _, rs := range s.Opts.ReloadSignals {
		if rs == sig {
			return true
		}
	}
	return false
}
