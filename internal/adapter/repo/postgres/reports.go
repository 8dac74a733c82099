package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// ReportRepo is the Postgres-backed domain.ReportRepository. Upsert is
// keyed on (job_id, resume_id) so a redelivered "resume reported" event
// overwrites the prior report instead of producing a duplicate row.
type ReportRepo struct {
	Pool PgxPool
}

// NewReportRepo constructs a ReportRepo with the given pool.
func NewReportRepo(pool PgxPool) *ReportRepo { return &ReportRepo{Pool: pool} }

var _ domain.ReportRepository = (*ReportRepo)(nil)

// ReportsSchema creates the reports table; called once at service startup.
const ReportsSchema = `
CREATE TABLE IF NOT EXISTS reports (
	job_id        TEXT NOT NULL,
	resume_id     TEXT NOT NULL,
	summary       TEXT NOT NULL,
	strengths     JSONB NOT NULL DEFAULT '[]',
	concerns      JSONB NOT NULL DEFAULT '[]',
	suggestions   JSONB NOT NULL DEFAULT '[]',
	decision      TEXT NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL,
	model_version TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_id, resume_id)
);`

// Upsert stores r, overwriting any prior report for the same (jobId, resumeId).
func (r *ReportRepo) Upsert(ctx domain.Context, rep domain.ReportDto) error {
	tracer := otel.Tracer("repo.postgres.reports")
	ctx, span := tracer.Start(ctx, "ReportRepo.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.job_id", rep.JobID),
		attribute.String("db.resume_id", rep.ResumeID),
	)

	strengths, err := marshalStrings(rep.Strengths)
	if err != nil {
		return err
	}
	concerns, err := marshalStrings(rep.Concerns)
	if err != nil {
		return err
	}
	suggestions, err := marshalStrings(rep.Suggestions)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO reports (job_id, resume_id, summary, strengths, concerns, suggestions, decision, generated_at, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id, resume_id) DO UPDATE SET
			summary=$3, strengths=$4, concerns=$5, suggestions=$6, decision=$7, generated_at=$8, model_version=$9`
	_, err = r.Pool.Exec(ctx, q, rep.JobID, rep.ResumeID, rep.Summary, strengths, concerns, suggestions,
		rep.Decision, rep.GeneratedAt, rep.ModelVersion)
	if err != nil {
		return fmt.Errorf("reports upsert: %w", err)
	}
	return nil
}

// GetByJobAndResume looks up a previously upserted report. The bool return
// is false, nil error when no row exists yet.
func (r *ReportRepo) GetByJobAndResume(ctx domain.Context, jobID, resumeID string) (domain.ReportDto, bool, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT job_id, resume_id, summary, strengths, concerns, suggestions, decision, generated_at, model_version
		FROM reports WHERE job_id = $1 AND resume_id = $2`, jobID, resumeID)

	var rep domain.ReportDto
	var strengths, concerns, suggestions []byte
	err := row.Scan(&rep.JobID, &rep.ResumeID, &rep.Summary, &strengths, &concerns, &suggestions,
		&rep.Decision, &rep.GeneratedAt, &rep.ModelVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReportDto{}, false, nil
	}
	if err != nil {
		return domain.ReportDto{}, false, fmt.Errorf("reports get: %w", err)
	}

	if rep.Strengths, err = unmarshalStrings(strengths); err != nil {
		return domain.ReportDto{}, false, err
	}
	if rep.Concerns, err = unmarshalStrings(concerns); err != nil {
		return domain.ReportDto{}, false, err
	}
	if rep.Suggestions, err = unmarshalStrings(suggestions); err != nil {
		return domain.ReportDto{}, false, err
	}
	return rep, true, nil
}
