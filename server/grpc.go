// Package server exposes the scraper's status over gRPC health checking.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const Version = "1.0.0"

// RunService is SERVING while a scrape is in progress.
const RunService = "vrs.scraper.run"

// StatusServer reports process and run status to gRPC health clients.
type StatusServer struct {
	logger *slog.Logger
	grpc   *grpc.Server
	health *health.Server
}

// NewStatusServer creates the server with the process SERVING and no run active.
func NewStatusServer(logger *slog.Logger) *StatusServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(RunService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &StatusServer{logger: logger, grpc: s, health: h}
}

// SetRunning flips RunService between SERVING and NOT_SERVING.
func (s *StatusServer) SetRunning(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(RunService, status)
}

// Serve blocks serving lis until Stop is called.
func (s *StatusServer) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// ListenAndServe serves on port until ctx is cancelled.
func (s *StatusServer) ListenAndServe(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	s.logger.Info("gRPC status server listening", slog.String("port", port), slog.String("version", Version))
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop marks everything NOT_SERVING and drains connections.
func (s *StatusServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
