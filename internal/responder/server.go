package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

// Server runs a Handler on its own listener. Each connection is served on its
// own goroutine; MaxConns bounds how many are accepted at once.
type Server struct {
	handler  http.Handler
	maxConns int
	logger   *slog.Logger

	srv      *http.Server
	listener net.Listener
}

func NewServer(handler http.Handler, maxConns int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: handler, maxConns: maxConns, logger: logger}
}

// Listen binds addr. It must be called before Serve.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve blocks until ctx is cancelled or the server fails. Cancellation
// triggers a graceful shutdown bounded by grace.
func (s *Server) Serve(ctx context.Context, grace time.Duration) error {
	if s.srv == nil {
		return errors.New("responder: Serve called before Listen")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()
	s.logger.Info("mock SOAP service listening", "addr", s.listener.Addr().String(), "max_conns", s.maxConns)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("mock SOAP service stopped")
	return nil
}
