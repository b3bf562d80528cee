package obs

import (
	"errors"
	"fmt"
	"net"

	"gymcore-backend/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServer exposes grpc.health.v1 for the orchestrator's health checks.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

func NewHealthServer(addr string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Register reflection service for grpcurl
	reflection.Register(srv)

	return &HealthServer{srv: srv, health: hs, lis: lis}, nil
}

func (h *HealthServer) Addr() string {
	return h.lis.Addr().String()
}

// SetServing flips the status reported for service ("" is the whole process).
func (h *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
}

// Serve blocks until Stop is called.
func (h *HealthServer) Serve() error {
	logger.Info("Health server listening", "address", h.Addr())
	if err := h.srv.Serve(h.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}
