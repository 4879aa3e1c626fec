// Package server hosts the inbound gRPC servers of the instance. Each server
// is a lifecycle component: initialize binds the listener and registers
// services, start begins serving and marks the services healthy, stop drains
// in-flight calls.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/micro-sensor/sitewhere/internal/capability"
	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/micro-sensor/sitewhere/internal/rpc/jsoncodec"
)

// Registration binds a service description to its implementation.
type Registration struct {
	Desc *grpc.ServiceDesc
	Impl any
}

// Option configures a Server.
type Option func(*Server)

// WithReflection registers the gRPC reflection service.
func WithReflection(enabled bool) Option {
	return func(s *Server) { s.reflection = enabled }
}

// WithListener serves on ln instead of binding the configured address.
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.listener = ln }
}

// WithServerOptions appends raw grpc.ServerOptions.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(s *Server) { s.serverOpts = append(s.serverOpts, opts...) }
}

// Server is one inbound gRPC server.
type Server struct {
	*lifecycle.Base

	addr       string
	services   []Registration
	reflection bool
	listener   net.Listener
	serverOpts []grpc.ServerOption

	mu       sync.Mutex
	srv      *grpc.Server
	health   *health.Server
	ln       net.Listener
	serveErr chan error
}

// New creates a server component named name that will listen on addr.
func New(name, addr string, services []Registration, opts ...Option) *Server {
	s := &Server{addr: addr, services: services}
	for _, opt := range opts {
		opt(s)
	}
	s.Base = lifecycle.NewBase(name, lifecycle.Hooks{
		Initialize: s.initialize,
		Start:      s.start,
		Stop:       s.stop,
	})
	return s
}

// Addr returns the bound address once initialized.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) initialize(ctx context.Context, m lifecycle.Monitor) error {
	if len(s.services) == 0 {
		return lifecycle.ConfigurationErrorf("%s: no services to register", s.Name())
	}
	ln := s.listener
	if ln == nil {
		if _, _, err := net.SplitHostPort(s.addr); err != nil {
			return lifecycle.ConfigurationErrorf("%s address %q: %w", s.Name(), s.addr, err)
		}
		var lc net.ListenConfig
		bound, err := lc.Listen(ctx, "tcp", s.addr)
		if err != nil {
			return lifecycle.Wrap(lifecycle.ClassConnectivity, fmt.Errorf("%s listen: %w", s.Name(), err))
		}
		ln = bound
	}

	opts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(errorInterceptor),
	}, s.serverOpts...)
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	for _, reg := range s.services {
		srv.RegisterService(reg.Desc, reg.Impl)
		hs.SetServingStatus(reg.Desc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if s.reflection {
		reflection.Register(srv)
	}

	s.mu.Lock()
	s.srv, s.health, s.ln = srv, hs, ln
	s.mu.Unlock()
	m.Notify(fmt.Sprintf("%s bound on %s", s.Name(), ln.Addr()))
	return nil
}

func (s *Server) start(context.Context, lifecycle.Monitor) error {
	s.mu.Lock()
	srv, hs, ln := s.srv, s.health, s.ln
	s.serveErr = make(chan error, 1)
	serveErr := s.serveErr
	s.mu.Unlock()

	log := slog.With("component", s.Name(), "addr", ln.Addr().String())
	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server stopped serving", "err", err)
		}
		serveErr <- err
	}()

	for _, reg := range s.services {
		hs.SetServingStatus(reg.Desc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	log.Info("grpc server serving")
	return nil
}

func (s *Server) stop(ctx context.Context, _ lifecycle.Monitor) error {
	s.mu.Lock()
	srv, hs, ln, serveErr := s.srv, s.health, s.ln, s.serveErr
	s.srv, s.health, s.ln, s.serveErr = nil, nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	hs.Shutdown()
	if serveErr == nil {
		srv.Stop()
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	}

	drained := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		srv.Stop()
		<-drained
		return lifecycle.ConnectivityErrorf("%s: graceful stop interrupted: %w", s.Name(), ctx.Err())
	}
	<-serveErr
	return nil
}

func errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		slog.Debug("rpc failed", "component", "rpc-server", "method", info.FullMethod, "err", err)
		return nil, capability.ToStatus(err)
	}
	return resp, nil
}
