package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/dropserve/internal/logging"
)

const shutdownTimeout = 10 * time.Second

type HTTPServer struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewHTTPServer(address string, handler http.Handler, logger logging.Logger) *HTTPServer {
	return &HTTPServer{
		address: address,
		handler: handler,
		logger:  logger.With("module", "http_server"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// shutdownTimeout.
func (s *HTTPServer) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
