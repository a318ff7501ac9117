// Package health exposes the standard gRPC health service, bound to the
// directory session.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
)

// ServiceName is the health service entry that tracks the directory session.
const ServiceName = "fleetmap.Directory"

// Server wraps a gRPC server that only carries the health service.
type Server struct {
	addr   string
	srv    *grpc.Server
	health *health.Server
	log    zerolog.Logger
}

var _ session.Listener = (*Server)(nil)

// NewServer creates the health server. valid is the session state at startup.
func NewServer(addr string, valid bool) *Server {
	s := &Server{
		addr:   addr,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		log:    logger.WithComponent("health"),
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.setServing(valid)
	return s
}

// Start serves until ctx is cancelled, then stops gracefully.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve runs on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// OnSessionInvalidated implements session.Listener.
func (s *Server) OnSessionInvalidated(_ context.Context, state session.State) {
	s.log.Warn().Str("reason", state.Reason).Msg("Directory session lost, reporting NOT_SERVING")
	s.setServing(false)
}

// OnSessionRenewed implements session.Listener.
func (s *Server) OnSessionRenewed(_ context.Context, _ session.State) {
	s.setServing(true)
}

// HealthServer returns the underlying health implementation.
func (s *Server) HealthServer() healthpb.HealthServer {
	return s.health
}

func (s *Server) setServing(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
