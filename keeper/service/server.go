package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/metrics"
	"github.com/fortuna-labs/keeper/version"
)

const metricsShutdownTimeout = 5 * time.Second

// Server runs the keeper app together with the metrics endpoint.
type Server struct {
	started int32

	app    *KeeperApp
	logger *zap.Logger
}

func NewServer(app *KeeperApp, logger *zap.Logger) *Server {
	return &Server{
		app:    app,
		logger: logger,
	}
}

// RunUntilShutdown starts the app and blocks until ctx is done.
func (s *Server) RunUntilShutdown(ctx context.Context) error {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return fmt.Errorf("the keeper server is already running")
	}

	addr, err := s.app.GetConfig().Metrics.Address()
	if err != nil {
		return fmt.Errorf("invalid metrics address: %w", err)
	}
	metricsServer := metrics.Start(addr, s.app.Metrics().Registry(), s.logger)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		metricsServer.Stop(stopCtx)
	}()

	if err := s.app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start the keeper app: %w", err)
	}
	defer func() {
		if err := s.app.Stop(); err != nil {
			s.logger.Error("failed to stop the keeper app", zap.Error(err))
		}
	}()

	info := version.Get()
	s.logger.Info("keeper daemon is fully active",
		zap.String("version", info.Version),
		zap.String("commit", info.Commit))

	<-ctx.Done()

	s.logger.Info("received shutdown signal, stopping the keeper daemon")

	return nil
}
