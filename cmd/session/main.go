// Package main provides the Session Coordinator (C7) worker entry point.
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
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/recruiter-pipeline/internal/app"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/internal/service/session"
)

// pipelineSubjects are the six forward-pipeline subjects C7 observes to
// drive the session state machine.
var pipelineSubjects = []string{
	domain.SubjectJobJDSubmitted,
	domain.SubjectJobResumeSubmitted,
	domain.SubjectAnalysisJDExtracted,
	domain.SubjectAnalysisResumeParsed,
	domain.SubjectAnalysisMatchScored,
	domain.SubjectAnalysisReportGenerated,
}

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
			slog.Error("session metrics server error", slog.Any("error", err))
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
	sessionRepo := postgres.NewSessionRepo(pool)

	b, err := app.BuildBus(cfg, "recruiter-session-producer", 4, cfg.HandlerDeadline)
	if err != nil {
		slog.Error("bus init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("failed to close bus", slog.Any("error", err))
		}
	}()

	svc := session.New(sessionRepo)

	forwardHandlers := map[string]domain.HandlerFunc{
		domain.SubjectJobJDSubmitted:          svc.HandleJobSubmitted,
		domain.SubjectJobResumeSubmitted:      svc.HandleResumeSubmitted,
		domain.SubjectAnalysisJDExtracted:     svc.HandleJdExtracted,
		domain.SubjectAnalysisResumeParsed:    svc.HandleResumeParsed,
		domain.SubjectAnalysisMatchScored:     svc.HandleScored,
		domain.SubjectAnalysisReportGenerated: svc.HandleReportGenerated,
	}

	for _, subject := range pipelineSubjects {
		if err := b.Subscribe(ctx, subject, domain.GroupSessionCoordinator, forwardHandlers[subject]); err != nil {
			slog.Error("subscribe failed", slog.String("subject", subject), slog.Any("error", err))
			os.Exit(1)
		}
		dlq := "dlq." + subject
		if err := b.Subscribe(ctx, dlq, domain.GroupSessionCoordinator, svc.HandleDLQ); err != nil {
			slog.Error("subscribe failed", slog.String("subject", dlq), slog.Any("error", err))
			os.Exit(1)
		}
	}

	slog.Info("session started, waiting for shutdown signal")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}
