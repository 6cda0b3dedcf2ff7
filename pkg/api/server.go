package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"vistara-analytics/pkg/defaults"
)

// Serve listens on addr and serves handler until ctx is done, then shuts the
// server down gracefully. ready, if not nil, receives the bound address.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logrus.Entry, ready chan<- string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: defaults.ShutdownTimeout}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(lis)
	}()

	logger.Infof("status server listening on %s", lis.Addr())

	if ready != nil {
		ready <- lis.Addr().String()
	}

	select {
	case err := <-errc:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaults.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("status server stopped")

	return nil
}
