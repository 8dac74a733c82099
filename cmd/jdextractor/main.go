// Package main provides the JD Extractor (C3) worker entry point.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/app"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/internal/service/jdextractor"
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
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("jdextractor metrics server error", slog.Any("error", err))
		}
	}()

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

	rdb, err := app.BuildRedis(cfg)
	if err != nil {
		slog.Error("redis client init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	aiClient := app.BuildAIClient(cfg, rdb)

	b, err := app.BuildBus(cfg, "recruiter-jdextractor-producer", 4, cfg.HandlerDeadline)
	if err != nil {
		slog.Error("bus init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("failed to close bus", slog.Any("error", err))
		}
	}()

	svc := jdextractor.New(aiClient, b)

	if err := b.Subscribe(ctx, domain.SubjectJobJDSubmitted, domain.GroupJDExtractors, svc.Handle); err != nil {
		slog.Error("subscribe job.jd.submitted failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("jdextractor started, waiting for shutdown signal")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}
