package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// SessionRepo is the Postgres-backed domain.SessionRepository. Every mutation
// runs in an explicit read-committed transaction: it reads the current row,
// applies the state-machine transition in Go, then writes the row back. This
// makes every Advance* call idempotent under redelivery — applying the same
// event twice leaves the row unchanged the second time.
type SessionRepo struct {
	Pool PgxPool
}

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(pool PgxPool) *SessionRepo { return &SessionRepo{Pool: pool} }

var _ domain.SessionRepository = (*SessionRepo)(nil)

// SessionsSchema creates the sessions table; called once at service startup.
const SessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	job_id          TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	stage           TEXT NOT NULL,
	resumes         JSONB NOT NULL DEFAULT '{}',
	submitted       INT NOT NULL DEFAULT 0,
	parsed          INT NOT NULL DEFAULT 0,
	scored          INT NOT NULL DEFAULT 0,
	reported        INT NOT NULL DEFAULT 0,
	failed          INT NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	terminal_at     TIMESTAMPTZ
);`

func (r *SessionRepo) Create(ctx domain.Context, jobID, organizationID string) error {
	tr := otel.Tracer("repo.postgres.sessions")
	ctx, span := tr.Start(ctx, "SessionRepo.Create")
	defer span.End()
	span.SetAttributes(attribute.String("db.job_id", jobID))

	now := time.Now().UTC()
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO sessions (job_id, organization_id, stage, resumes, created_at, updated_at)
		VALUES ($1, $2, $3, '{}'::jsonb, $4, $4)
		ON CONFLICT (job_id) DO NOTHING`,
		jobID, organizationID, domain.StageSubmitted, now)
	if err != nil {
		slog.Error("sessions: create failed", slog.String("job_id", jobID), slog.Any("error", err))
		return fmt.Errorf("sessions create: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx domain.Context, jobID string) (domain.Session, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT job_id, organization_id, stage, resumes, submitted, parsed, scored, reported, failed,
		       last_error, created_at, updated_at, terminal_at
		FROM sessions WHERE job_id = $1`, jobID)
	return scanSession(row)
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	var resumesRaw []byte
	var terminalAt *time.Time
	err := row.Scan(&s.JobID, &s.OrganizationID, &s.Stage, &resumesRaw, &s.Submitted, &s.Parsed,
		&s.Scored, &s.Reported, &s.Failed, &s.LastError, &s.CreatedAt, &s.UpdatedAt, &terminalAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: session", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("sessions scan: %w", err)
	}
	s.TerminalAt = terminalAt
	s.Resumes = map[string]domain.ResumeState{}
	if len(resumesRaw) > 0 {
		if err := json.Unmarshal(resumesRaw, &s.Resumes); err != nil {
			return domain.Session{}, fmt.Errorf("sessions unmarshal resumes: %w", err)
		}
	}
	return s, nil
}

// withSession runs fn against the current row inside a read-committed
// transaction, then persists whatever fn mutates on s back to the row. fn
// returning an error aborts the transaction.
func (r *SessionRepo) withSession(ctx domain.Context, jobID string, fn func(s *domain.Session) error) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("sessions begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT job_id, organization_id, stage, resumes, submitted, parsed, scored, reported, failed,
		       last_error, created_at, updated_at, terminal_at
		FROM sessions WHERE job_id = $1 FOR UPDATE`, jobID)
	s, err := scanSession(row)
	if err != nil {
		return err
	}

	if err := fn(&s); err != nil {
		return err
	}

	resumesRaw, err := json.Marshal(s.Resumes)
	if err != nil {
		return fmt.Errorf("sessions marshal resumes: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE sessions SET stage=$2, resumes=$3, submitted=$4, parsed=$5, scored=$6, reported=$7,
		       failed=$8, last_error=$9, updated_at=$10, terminal_at=$11
		WHERE job_id=$1`,
		s.JobID, s.Stage, resumesRaw, s.Submitted, s.Parsed, s.Scored, s.Reported, s.Failed,
		s.LastError, s.UpdatedAt, s.TerminalAt)
	if err != nil {
		return fmt.Errorf("sessions update: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *SessionRepo) AdvanceOnJdExtracted(ctx domain.Context, jobID string) error {
	return r.withSession(ctx, jobID, func(s *domain.Session) error {
		if s.Stage == domain.StageSubmitted {
			s.Stage = domain.StageJdExtracted
		}
		return nil
	})
}

func (r *SessionRepo) AdvanceOnResumeSubmitted(ctx domain.Context, jobID, resumeID string) error {
	return r.withSession(ctx, jobID, func(s *domain.Session) error {
		if _, ok := s.Resumes[resumeID]; ok {
			return nil
		}
		s.Resumes[resumeID] = domain.ResumeState{ResumeID: resumeID, Stage: domain.ResumeSubmitted}
		s.Submitted++
		return nil
	})
}

func (r *SessionRepo) AdvanceOnResumeParsed(ctx domain.Context, jobID, resumeID string) error {
	return r.withSession(ctx, jobID, func(s *domain.Session) error {
		rs, ok := s.Resumes[resumeID]
		if !ok || rs.Stage != domain.ResumeSubmitted {
			return nil
		}
		rs.Stage = domain.ResumeParsed
		s.Resumes[resumeID] = rs
		s.Parsed++
		if s.Parsed >= s.Submitted && s.Submitted > 0 &&
			(s.Stage == domain.StageJdExtracted || s.Stage == domain.StageSubmitted) {
			s.Stage = domain.StageResumesParsed
		}
		return nil
	})
}

func (r *SessionRepo) AdvanceOnResumeScored(ctx domain.Context, jobID, resumeID string) error {
	return r.withSession(ctx, jobID, func(s *domain.Session) error {
		rs, ok := s.Resumes[resumeID]
		if !ok || rs.Stage != domain.ResumeParsed {
			return nil
		}
		rs.Stage = domain.ResumeScored
		s.Resumes[resumeID] = rs
		s.Scored++
		if s.Scored >= s.Submitted && s.Submitted > 0 {
			s.Stage = domain.StageScored
		}
		return nil
	})
}

func (r *SessionRepo) AdvanceOnResumeReported(ctx domain.Context, jobID, resumeID string) error {
	return r.withSession(ctx, jobID, func(s *domain.Session) error {
		rs, ok := s.Resumes[resumeID]
		if !ok || rs.Stage != domain.ResumeScored {
			return nil
		}
		rs.Stage = domain.ResumeReported
		s.Resumes[resumeID] = rs
		s.Reported++
		if s.Reported+s.Failed >= s.Submitted && s.Submitted > 0 {
			s.Stage = domain.StageReported
			now := time.Now().UTC()
			s.TerminalAt = &now
		}
		return nil
	})
}

func (r *SessionRepo) AdvanceOnResumeFailed(ctx domain.Context, jobID, resumeID, reason string) error {
	return r.withSession(ctx, jobID, func(s *domain.Session) error {
		rs, ok := s.Resumes[resumeID]
		if ok && rs.Stage == domain.ResumeFailed {
			return nil
		}
		if !ok {
			rs = domain.ResumeState{ResumeID: resumeID}
		}
		rs.Stage = domain.ResumeFailed
		rs.Error = reason
		s.Resumes[resumeID] = rs
		s.Failed++
		if s.Reported+s.Failed >= s.Submitted && s.Submitted > 0 {
			s.Stage = domain.StageReported
			now := time.Now().UTC()
			s.TerminalAt = &now
		}
		return nil
	})
}

func (r *SessionRepo) FailSession(ctx domain.Context, jobID, reason string) error {
	return r.withSession(ctx, jobID, func(s *domain.Session) error {
		if s.Stage == domain.StageFailed || s.Stage == domain.StageReported {
			return nil
		}
		s.Stage = domain.StageFailed
		s.LastError = reason
		now := time.Now().UTC()
		s.TerminalAt = &now
		return nil
	})
}

func (r *SessionRepo) Count(ctx domain.Context) (int64, error) {
	var n int64
	row := r.Pool.QueryRow(ctx, `SELECT count(*) FROM sessions`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("sessions count: %w", err)
	}
	return n, nil
}
