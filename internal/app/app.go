// Package app собирает сервис из хранилища, транспорта и HTTP/gRPC серверов.
package app

import (
	"context"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/orderms/internal/health"
	"github.com/vladislavdragonenkov/orderms/internal/httpapi"
	"github.com/vladislavdragonenkov/orderms/internal/metrics"
	"github.com/vladislavdragonenkov/orderms/internal/service/orders"
	"github.com/vladislavdragonenkov/orderms/internal/version"
)

// Run запускает сервис и блокируется до отмены ctx или падения gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.WithField("component", "app")
	logger.WithField("build", version.String()).Info("starting orderms")

	orderMetrics := metrics.NewOrderMetrics()

	deps, err := initRuntimeDependencies(ctx, cfg, logger, orderMetrics)
	if err != nil {
		return err
	}
	defer deps.close(context.Background(), logger)

	orderService := orders.NewService(deps.repo, deps.repo,
		orders.WithLogger(logger.WithField("layer", "service")),
		orders.WithMetrics(orderMetrics),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	transport, transportChecker, err := initTransport(cfg, orderService, orderMetrics, logger)
	if err != nil {
		return err
	}
	if transportChecker != nil {
		healthHandler.RegisterChecker("transport", transportChecker)
	}

	router := httpapi.NewRouter(orderService, logger)
	mountOpsRoutes(router, healthHandler)

	grpcServer, grpcHealth := newGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		stopTransport(transport, logger)
		return err
	}

	httpSrv := startHTTPServer(ctx, cfg.HTTPAddr, router, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	if transport != nil {
		if err := transport.Start(ctx); err != nil {
			logger.WithError(err).Error("failed to start transport")
			stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
			shutdownHTTP(httpSrv, logger)
			stopTransport(transport, logger)
			return err
		}
	}

	go watchHealth(ctx, healthHandler, grpcHealth, cfg.HealthInterval)

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		stopTransport(transport, logger)
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(httpSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopTransport(transport, logger)
		shutdownHTTP(httpSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// stopGRPC пытается остановить сервер мягко, по таймауту принудительно.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stoppedCh := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// stopTransport останавливает consumer, если он был создан.
func stopTransport(transport eventConsumer, logger *log.Entry) {
	if transport == nil {
		return
	}
	if err := transport.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop transport")
	} else {
		logger.Info("transport stopped")
	}
}
