// Package daemon runs promptchain as a long-lived service that drains a
// persisted queue.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Default listen addresses.
const (
	DefaultGRPCAddr = "127.0.0.1:7090"
	DefaultHTTPAddr = "127.0.0.1:7091"
)

// Options configure the daemon runtime.
type Options struct {
	GRPCAddr string
	HTTPAddr string
	Version  string
}

// Daemon serves the HTTP API and the gRPC health service, and runs the
// queue poll loop.
type Daemon struct {
	service *Service
	logger  zerolog.Logger
	opts    Options

	grpcServer *grpc.Server
	httpServer *http.Server
}

// New constructs a daemon around service.
func New(service *Service, limiter *RateLimiter, logger zerolog.Logger, opts Options) (*Daemon, error) {
	if service == nil {
		return nil, errors.New("service is required")
	}
	if opts.GRPCAddr == "" {
		opts.GRPCAddr = DefaultGRPCAddr
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = DefaultHTTPAddr
	}
	if limiter == nil {
		limiter = NewRateLimiter()
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(limiter.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(limiter.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(grpcServer, service.Health())

	return &Daemon{
		service:    service,
		logger:     logger,
		opts:       opts,
		grpcServer: grpcServer,
		httpServer: &http.Server{
			Handler:           service.Handler(limiter),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until ctx is canceled, then shuts everything down.
func (d *Daemon) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	grpcListener, err := net.Listen("tcp", d.opts.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.opts.GRPCAddr, err)
	}
	httpListener, err := net.Listen("tcp", d.opts.HTTPAddr)
	if err != nil {
		grpcListener.Close()
		return fmt.Errorf("failed to listen on %s: %w", d.opts.HTTPAddr, err)
	}

	d.logger.Info().
		Str("grpc", grpcListener.Addr().String()).
		Str("http", httpListener.Addr().String()).
		Str("version", d.opts.Version).
		Msg("promptchain daemon starting")

	errCh := make(chan error, 2)
	go func() {
		if err := d.grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		if err := d.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	pollCtx, stopPoll := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		d.service.pollLoop(pollCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info().Msg("promptchain daemon shutting down...")
	case runErr = <-errCh:
	}

	d.service.Cancel()
	stopPoll()
	d.service.Health().Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	d.grpcServer.GracefulStop()
	<-pollDone

	d.logger.Info().Msg("promptchain daemon shutdown complete")
	return runErr
}
