package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"erpsync/internal/config"
	"erpsync/internal/events"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// BackendHealthService is the health service name whose status follows the
// connectivity flag. The empty service name reports the agent itself.
const BackendHealthService = "erpsync.backend"

// GRPCServer serves the standard gRPC health protocol so orchestrators can
// watch whether the backend is reachable.
type GRPCServer struct {
	cfg      *config.APIConfig
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(
	cfg *config.APIConfig,
	bus *events.EventBus,
	online bool,
	limiter *RateLimiter,
	logger *zerolog.Logger,
) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	auth := NewAuthInterceptor(cfg, limiter)
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(LoggingUnaryInterceptor(logger), auth.Unary()),
		grpc.ChainStreamInterceptor(auth.Stream()),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(BackendHealthService, servingStatus(online))
	healthpb.RegisterHealthServer(grpcServer, hs)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	serverLogger := zerolog.Nop()
	if logger != nil {
		serverLogger = logger.With().Str("component", "grpc").Logger()
	}

	s := &GRPCServer{
		cfg:      cfg,
		server:   grpcServer,
		health:   hs,
		listener: lis,
		log:      serverLogger,
	}

	if bus != nil {
		bus.Subscribe(events.EventConnectivityChanged, s.onConnectivityChanged)
	}

	return s, nil
}

func (s *GRPCServer) onConnectivityChanged(event *events.Event) error {
	var p events.ConnectivityPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	s.health.SetServingStatus(BackendHealthService, servingStatus(p.Online))
	return nil
}

func servingStatus(online bool) healthpb.HealthCheckResponse_ServingStatus {
	if online {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC health listening")
	return s.server.Serve(s.listener)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
		return
	case <-time.After(10 * time.Second):
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
		return
	}
}
