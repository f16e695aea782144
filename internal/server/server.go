// Package server runs the relay's HTTP listener and its middleware stack.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/RichardoC/relaychat/internal/config"
	"github.com/RichardoC/relaychat/internal/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server wraps an http.Server with the standard middleware chain and the
// resources that must be released when it stops.
type Server struct {
	server  *http.Server
	logger  *zap.Logger
	closers []io.Closer
}

// New builds a server for routes. Streaming responses have no write deadline.
func New(cfg config.ServerConfig, routes http.Handler, logger *zap.Logger, m *metrics.Metrics) *Server {
	var limiter *RateLimiter
	if cfg.RateLimit > 0 {
		limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	handler := Chain(
		WithRequestID(),
		Logging(logger, m),
		Recovery(logger),
		RateLimit(limiter, logger),
	)(routes)

	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ErrorLog:          zap.NewStdLog(logger.Named("http")),
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// OnShutdown registers c to be closed after the listener stops.
func (s *Server) OnShutdown(c io.Closer) {
	s.closers = append(s.closers, c)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting server", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	select {
	case err := <-errc:
		return multierr.Append(err, s.closeAll())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Append(s.Shutdown(shutdownCtx), <-errc)
}

// Shutdown stops accepting connections, waits for in-flight requests and
// closes registered resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return multierr.Append(s.server.Shutdown(ctx), s.closeAll())
}

func (s *Server) closeAll() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i].Close())
	}
	s.closers = nil
	return err
}
