package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/authcore/internal/httpapi"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
)

func serve(ctx context.Context, opts appOptions) error {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	log := opts.logger
	log.Info("security posture", "security", a.engine.SecurityReport())

	if opts.config.Metrics.Enabled {
		// No-op unless the process installs a global MeterProvider.
		exp, err := otelexport.NewExporter(otel.Meter("github.com/MrEthical07/authcore"), a.engine)
		if err != nil {
			return fmt.Errorf("registering otel metrics: %w", err)
		}
		defer func() { _ = exp.Close() }()
	}

	if a.sqlRefresh != nil && opts.config.Database.PruneInterval > 0 {
		go a.pruneLoop(ctx, opts, opts.config.Database.PruneInterval)
	}

	srv := &http.Server{
		Addr: opts.config.Server.Addr,
		Handler: httpapi.New(a.engine, httpapi.Options{
			Logger:     log,
			TrustProxy: opts.config.Server.TrustProxy,
		}),
		ReadTimeout:  opts.config.Server.ReadTimeout,
		WriteTimeout: opts.config.Server.WriteTimeout,
		IdleTimeout:  opts.config.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", opts.config.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// pruneLoop deletes expired SQL refresh records every interval until ctx ends.
func (a *app) pruneLoop(ctx context.Context, opts appOptions, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := a.sqlRefresh.PruneExpired(ctx, now)
			if err != nil {
				opts.logger.Error("refresh prune failed", "error", err)
				continue
			}
			if n > 0 {
				opts.logger.Info("pruned refresh records", "deleted", n)
			}
		}
	}
}
