package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/grpc/service"
	"github.com/KevoDB/filestats/pkg/telemetry"
)

// ServerOptions configures a GRPCServer.
type ServerOptions struct {
	TLSEnabled bool
	CertFile   string
	KeyFile    string
	CAFile     string

	Logger    log.Logger
	Telemetry telemetry.Telemetry
}

// GRPCServer serves the statistics service over gRPC.
type GRPCServer struct {
	address  string
	options  ServerOptions
	server   *grpc.Server
	listener net.Listener
	logger   log.Logger
	tel      telemetry.Telemetry

	mu      sync.Mutex
	started bool
}

// NewGRPCServer creates a server for srv listening on address.
func NewGRPCServer(address string, srv service.FileStatisticsServer, options ServerOptions) (*GRPCServer, error) {
	s := &GRPCServer{
		address: address,
		options: options,
		logger:  options.Logger,
		tel:     options.Telemetry,
	}
	if s.logger == nil {
		s.logger = log.GetDefaultLogger().WithField("component", "grpc")
	}
	if s.tel == nil {
		s.tel = telemetry.NewNoop()
	}

	var serverOpts []grpc.ServerOption

	if options.TLSEnabled {
		tlsConfig, err := LoadServerTLSConfig(options.CertFile, options.KeyFile, options.CAFile)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	keepaliveParams := keepalive.ServerParameters{
		MaxConnectionIdle:     60 * time.Second,
		MaxConnectionAge:      5 * time.Minute,
		MaxConnectionAgeGrace: 5 * time.Second,
		Time:                  15 * time.Second,
		Timeout:               5 * time.Second,
	}

	keepalivePolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	serverOpts = append(serverOpts,
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
		grpc.ChainUnaryInterceptor(s.observe),
	)

	s.server = grpc.NewServer(serverOpts...)
	service.RegisterFileStatisticsServer(s.server, srv)
	return s, nil
}

// observe records a span, a request counter and a latency histogram per call.
func (s *GRPCServer) observe(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	ctx, span := s.tel.StartSpan(ctx, info.FullMethod,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentGRPC),
	)
	defer span.End()

	resp, err := handler(ctx, req)

	code := status.Code(err)
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentGRPC),
		attribute.String("rpc.method", info.FullMethod),
		attribute.String("rpc.code", code.String()),
	}
	s.tel.RecordCounter(ctx, "filestats.grpc.requests.total", 1, attrs...)
	telemetry.RecordDuration(ctx, s.tel, "filestats.grpc.request.duration", start, attrs...)

	if err != nil {
		span.RecordError(err)
		s.logger.Debug("%s failed: %v", info.FullMethod, err)
	}
	return resp, err
}

// Start listens on the configured address and serves in the background.
func (s *GRPCServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server already started")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener
	s.started = true

	go func() {
		if err := s.server.Serve(listener); err != nil {
			s.logger.Error("gRPC server error: %v", err)
		}
	}()

	s.logger.Info("gRPC server listening on %s", listener.Addr())
	return nil
}

// Serve serves on listener and blocks until the server is stopped.
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.listener = listener
	s.started = true
	s.mu.Unlock()

	return s.server.Serve(listener)
}

// Addr returns the listening address, or nil before Start.
func (s *GRPCServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server gracefully, forcing it down when ctx expires.
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

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

	s.started = false
	return nil
}
