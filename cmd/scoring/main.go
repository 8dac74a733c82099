// Package main provides the Scoring Engine (C5) worker entry point.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/cache/pairing"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/app"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/internal/service/scoring"
)

// sweepInterval governs how often expired pending resumes are dead-lettered.
const sweepInterval = 10 * time.Minute

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
			slog.Error("scoring metrics server error", slog.Any("error", err))
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
	pairingCache := pairing.New(rdb)

	b, err := app.BuildBus(cfg, "recruiter-scoring-producer", 4, cfg.HandlerDeadline)
	if err != nil {
		slog.Error("bus init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("failed to close bus", slog.Any("error", err))
		}
	}()

	svc := scoring.New(pairingCache, b, app.PairingTTL(cfg))

	if err := b.Subscribe(ctx, domain.SubjectAnalysisJDExtracted, domain.GroupScoringEngines, svc.HandleJdExtracted); err != nil {
		slog.Error("subscribe analysis.jd.extracted failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := b.Subscribe(ctx, domain.SubjectAnalysisResumeParsed, domain.GroupScoringEngines, svc.HandleResumeParsed); err != nil {
		slog.Error("subscribe analysis.resume.parsed failed", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.SweepExpiredPending(ctx); err != nil {
					slog.Error("sweep expired pending resumes failed", slog.Any("error", err))
				}
			}
		}
	}()

	slog.Info("scoring started, waiting for shutdown signal")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}
