package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"advisor-matching/internal/common/logger"
)

type Server struct {
	http   *http.Server
	logger logger.Logger
}

func NewServer(address string, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log.WithFields(map[string]interface{}{"component": "http-server"}),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", map[string]interface{}{"address": s.http.Addr})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down", nil)
	return s.http.Shutdown(shutdownCtx)
}
