// Package main provides the Report Generator (C6) worker entry point.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/cache/pairing"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/cache/resumectx"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/recruiter-pipeline/internal/app"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/internal/service/report"
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
			slog.Error("report metrics server error", slog.Any("error", err))
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

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	reportRepo := postgres.NewReportRepo(pool)

	rdb, err := app.BuildRedis(cfg)
	if err != nil {
		slog.Error("redis client init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()
	jdLookup := pairing.New(rdb)
	resumeLookup := resumectx.New(rdb)

	b, err := app.BuildBus(cfg, "recruiter-report-producer", 4, cfg.HandlerDeadline)
	if err != nil {
		slog.Error("bus init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("failed to close bus", slog.Any("error", err))
		}
	}()

	modelVersion := "mock"
	if cfg.LLMConfigured() {
		modelVersion = cfg.LLMModel
	}
	svc := report.New(jdLookup, resumeLookup, reportRepo, b, modelVersion)

	if err := b.Subscribe(ctx, domain.SubjectAnalysisResumeParsed, domain.GroupReportGenerators, svc.HandleResumeParsed); err != nil {
		slog.Error("subscribe analysis.resume.parsed failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := b.Subscribe(ctx, domain.SubjectAnalysisMatchScored, domain.GroupReportGenerators, svc.HandleScored); err != nil {
		slog.Error("subscribe analysis.match.scored failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("report started, waiting for shutdown signal")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}
