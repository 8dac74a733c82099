package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

func TestReportRepo_Upsert_ExecError(t *testing.T) {
	repo := postgres.NewReportRepo(&poolStub{execErr: errors.New("boom")})
	err := repo.Upsert(context.Background(), domain.ReportDto{JobID: "job-1", ResumeID: "resume-1"})
	assert.Error(t, err)
}

func TestReportRepo_Upsert_Success(t *testing.T) {
	repo := postgres.NewReportRepo(&poolStub{})
	err := repo.Upsert(context.Background(), domain.ReportDto{
		JobID:        "job-1",
		ResumeID:     "resume-1",
		Summary:      "strong candidate",
		Strengths:    []string{"Go", "Kafka"},
		Decision:     domain.DecisionInterview,
		GeneratedAt:  time.Now(),
		ModelVersion: "v1",
	})
	assert.NoError(t, err)
}

func TestReportRepo_GetByJobAndResume_NotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewReportRepo(pool)
	_, ok, err := repo.GetByJobAndResume(context.Background(), "job-1", "resume-1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestReportRepo_GetByJobAndResume_Found(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "job-1"
		*(dest[1].(*string)) = "resume-1"
		*(dest[2].(*string)) = "strong candidate"
		*(dest[3].(*[]byte)) = []byte(`["Go","Kafka"]`)
		*(dest[4].(*[]byte)) = []byte(`[]`)
		*(dest[5].(*[]byte)) = []byte(`[]`)
		*(dest[6].(*domain.Decision)) = domain.DecisionInterview
		*(dest[7].(*time.Time)) = ts
		*(dest[8].(*string)) = "v1"
		return nil
	}}}
	repo := postgres.NewReportRepo(pool)
	rep, ok, err := repo.GetByJobAndResume(context.Background(), "job-1", "resume-1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Go", "Kafka"}, rep.Strengths)
	assert.Equal(t, domain.DecisionInterview, rep.Decision)
}
