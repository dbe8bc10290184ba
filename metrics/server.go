package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	svr    *http.Server
	logger *zap.Logger
}

// Start serves the collectors of registry, plus the Go runtime and process
// collectors, on addr under /metrics.
func Start(addr string, registry *prometheus.Registry, logger *zap.Logger) *Server {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	s := &Server{
		svr: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("address", addr))
		if err := s.svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return s
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.svr.Shutdown(ctx); err != nil {
		s.logger.Error("failed to stop the metrics server", zap.Error(err))
	} else {
		s.logger.Info("metrics server stopped")
	}
}
