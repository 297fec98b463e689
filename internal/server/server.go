package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"payin-backend/internal/config"
)

// Closer is a dependency released once the HTTP server has drained.
type Closer struct {
	Name  string
	Close func() error
}

// Start serves the API until ctx is cancelled or the listener fails. In-flight captures
// finish first, then closers run in reverse registration order so pending sale
// notifications flush before the store goes away.
func Start(ctx context.Context, cfg config.Config, router http.Handler, log *slog.Logger, closers ...Closer) error {
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	defer Release(closers, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("payin api listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("payin api draining", "timeout", cfg.ShutdownTimeout)
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Release closes in reverse order; a failing closer does not stop the rest.
func Release(closers []Closer, log *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.Close(); err != nil {
			log.Error("release dependency", "name", c.Name, "err", err)
			continue
		}
		log.Info("released dependency", "name", c.Name)
	}
}
