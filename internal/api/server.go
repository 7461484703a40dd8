package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverShutdownTimeout   = 5 * time.Second
)

// Server runs the query API tied to a lifecycle context.
// Params: listen address, handler, and logger for diagnostics.
// Returns: runnable HTTP server instance.
type Server struct {
	listen string
	ln     net.Listener
	server *http.Server
	logger *slog.Logger
}

// NewServer creates an HTTP server and binds to the listen address.
// Params: listen address in host:port; handler HTTP handler; logger root logger.
// Returns: server instance or bind error.
func NewServer(listen string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", listen, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}

	return &Server{
		listen: listen,
		ln:     ln,
		server: server,
		logger: logger,
	}, nil
}

// Addr returns the bound listener address.
// Params: none.
// Returns: resolved host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close releases the listener of a server that was never run.
// Params: none.
// Returns: listener close error.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Run starts serving and shuts down on context cancellation.
// Params: ctx lifecycle context.
// Returns: nil on graceful stop; error on early serve failures.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.ln)
	}()
	s.logger.Info("api server started", slog.String("listen", s.Addr()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		err := <-errCh
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("api server stopped unexpectedly", slog.String("listen", s.listen), slog.String("error", err.Error()))
		return err
	}
}
