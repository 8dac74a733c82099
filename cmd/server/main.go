// Package main provides the reference HTTP admission server entry point:
// the thin ingress layer that feeds the pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/httpserver"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/recruiter-pipeline/internal/app"
	"github.com/fairyhunter13/recruiter-pipeline/internal/bus"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	sessions := postgres.NewSessionRepo(pool)

	var b *bus.Bus
	var busPort domain.Bus
	if cfg.BusOptional {
		slog.Warn("BUS_OPTIONAL set, starting in degraded mode with bus disabled")
	} else {
		b, err = app.BuildBus(cfg, "recruiter-admission-producer", 4, cfg.HandlerDeadline)
		if err != nil {
			slog.Error("bus init failed", slog.Any("error", err))
			os.Exit(2)
		}
		defer func() {
			if err := b.Close(); err != nil {
				slog.Error("failed to close bus", slog.Any("error", err))
			}
		}()
		busPort = b
	}

	store, err := app.BuildObjectStore(ctx, cfg)
	if err != nil {
		slog.Error("object store init failed", slog.Any("error", err))
		os.Exit(1)
	}

	var busPinger app.Pinger
	if b != nil {
		busPinger = b
	}
	dbCheck, busCheck := app.BuildReadinessChecks(pool, busPinger)

	srv := httpserver.NewServer(cfg, busPort, store, sessions, dbCheck, busCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admission server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
