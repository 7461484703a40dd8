package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthServiceName     = "hostmon.Collector"
	healthShutdownTimeout = 5 * time.Second
)

// healthServer exposes the standard gRPC health service.
// Params: listener, grpc server, health registry, logger.
// Returns: runnable health endpoint.
type healthServer struct {
	listen string
	ln     net.Listener
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// newHealthServer binds the listen address and registers the health service as NOT_SERVING.
// Params: listen host:port; logger diagnostics.
// Returns: health server or bind error.
func newHealthServer(listen string, logger *slog.Logger) (*healthServer, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", listen, err)
	}

	registry := health.NewServer()
	registry.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	registry.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, registry)

	return &healthServer{
		listen: listen,
		ln:     ln,
		server: server,
		health: registry,
		logger: logger,
	}, nil
}

// setServing flips both the overall and the collector service status.
// Params: serving true while the loop runs.
// Returns: none.
func (h *healthServer) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(healthServiceName, status)
}

// run serves until ctx is canceled; open Watch streams get a bounded grace period.
// Params: ctx lifecycle context.
// Returns: nil on graceful stop; error on early serve failures.
func (h *healthServer) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.Serve(h.ln)
	}()
	h.logger.Info("grpc health server started", slog.String("listen", h.ln.Addr().String()))

	select {
	case <-ctx.Done():
		h.health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			h.server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(healthShutdownTimeout):
			h.server.Stop()
		}
		err := <-errCh
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case err := <-errCh:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		h.logger.Error("grpc health server stopped unexpectedly", slog.String("listen", h.listen), slog.String("error", err.Error()))
		return err
	}
}
