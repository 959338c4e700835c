// Package server boots the entropy service: the HTTP API plus a gRPC
// health endpoint for probes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/goldenseed/entropy/internal/services/entropy/api"
	"github.com/goldenseed/entropy/internal/services/entropy/app"
	"github.com/goldenseed/entropy/internal/services/entropy/auth"
	"github.com/goldenseed/entropy/internal/services/entropy/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Config holds everything needed to run the service.
type Config struct {
	Addr         string
	GRPCAddr     string
	DatabasePath string
	JWTSecret    []byte
	JWTExpiry    time.Duration
	RateLimit    int
	RateWindow   time.Duration
}

// Server owns the listeners and the application core.
type Server struct {
	application *app.App
	store       *sqlite.Store
	httpServer  *http.Server
	httpLis     net.Listener
	grpcServer  *grpc.Server
	grpcLis     net.Listener
	health      *health.Server
}

// New opens storage and binds both listeners without serving yet.
func New(cfg Config) (*Server, error) {
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	application, err := app.New(app.Config{
		Store: store,
		Tokens: auth.Tokens{
			Secret: cfg.JWTSecret,
			Expiry: cfg.JWTExpiry,
		},
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	httpLis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = application.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		_ = application.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		application: application,
		store:       store,
		httpServer:  &http.Server{Handler: api.New(application)},
		httpLis:     httpLis,
		grpcServer:  grpcServer,
		grpcLis:     grpcLis,
		health:      healthServer,
	}, nil
}

// HTTPAddr returns the bound HTTP listener address.
func (s *Server) HTTPAddr() net.Addr {
	return s.httpLis.Addr()
}

// GRPCAddr returns the bound gRPC listener address.
func (s *Server) GRPCAddr() net.Addr {
	return s.grpcLis.Addr()
}

// Serve runs both listeners and blocks until the context ends or a
// listener fails.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.close()

	log.Printf("entropy API listening at %v", s.httpLis.Addr())
	log.Printf("entropy health listening at %v", s.grpcLis.Addr())

	serveErr := make(chan error, 2)
	go func() {
		err := s.httpServer.Serve(s.httpLis)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()
	go func() {
		err := s.grpcServer.Serve(s.grpcLis)
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
		serveErr <- err
	}()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	select {
	case <-ctx.Done():
		s.shutdown()
		<-serveErr
		<-serveErr
		return nil
	case err := <-serveErr:
		s.shutdown()
		<-serveErr
		return err
	}
}

func (s *Server) shutdown() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

func (s *Server) close() {
	if err := s.application.Close(); err != nil {
		log.Printf("close application: %v", err)
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close storage: %v", err)
	}
}

// Run creates a server from config and serves until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}
