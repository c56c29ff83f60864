package observability

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the name reported by the health endpoint, next to the overall "" service.
const RelayService = "chat.relay"

// HealthServer exposes the standard gRPC health protocol.
// It reports SERVING while the relay accepts clients.
type HealthServer struct {
	log      *slog.Logger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewHealthServer(log *slog.Logger, addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := grpc.NewServer()
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(RelayService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, server: s, health: h, listener: listener}, nil
}

func (s *HealthServer) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until Stop is called.
func (s *HealthServer) Serve() error {
	s.log.Info("Starting gRPC health server", "address", s.Addr())
	if err := s.server.Serve(s.listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC health server error: %w", err)
	}
	return nil
}

func (s *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayService, status)
}

// Stop flips every status to NOT_SERVING, then stops the server.
func (s *HealthServer) Stop(ctx context.Context) {
	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}
}
