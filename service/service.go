// Package service runs the operational HTTP endpoints: a healthz probe and
// the prometheus metrics scrape target.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/testdeck/testdeck/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	healthzAddr string
	metricsAddr string
	log         *slog.Logger
}

// New creates a service. Empty addresses fall back to the package defaults;
// ready is the readiness check served on /readyz and may be nil.
func New(healthzAddr, metricsAddr string, ready func(context.Context) error, log *slog.Logger) *Service {
	if healthzAddr == "" {
		healthzAddr = net.JoinHostPort(HealthzHost, HealthzPort)
	}
	if metricsAddr == "" {
		metricsAddr = net.JoinHostPort(MetricsHost, MetricsPort)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Healthz:     NewHealthzServer(ready, log),
		Metrics:     &MetricsServer{},
		healthzAddr: healthzAddr,
		metricsAddr: metricsAddr,
		log:         log,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	go func() {
		s.log.Info("starting healthz server", "addr", s.healthzAddr)
		if err := s.Healthz.Start(ctx, s.healthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		s.log.Info("starting metrics server", "addr", s.metricsAddr)
		if err := s.Metrics.Start(ctx, s.metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
