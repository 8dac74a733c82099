// Package session implements the Session Coordinator (C7): it observes
// every pipeline subject (and their DLQ twins) purely to drive the
// SessionRepository state machine. It never publishes.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// Service implements the C7 handlers against domain.Bus.Subscribe.
type Service struct {
	repo domain.SessionRepository
}

// New constructs a Service.
func New(repo domain.SessionRepository) *Service { return &Service{repo: repo} }

// HandleJobSubmitted creates the Session on first sight of job.jd.submitted
// for a jobId; an existing session is never recreated.
func (s *Service) HandleJobSubmitted(ctx domain.Context, env domain.Envelope) error {
	var in domain.JobSubmittedPayload
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		return fmt.Errorf("%w: session: decode job.jd.submitted payload: %v", domain.ErrSchemaInvalid, err)
	}
	if err := s.repo.Create(ctx, in.JobID, in.OrganizationID); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// HandleResumeSubmitted registers a resumeId against the session before any
// parsing/scoring events for it can arrive, so aggregate counts are correct
// regardless of delivery order.
func (s *Service) HandleResumeSubmitted(ctx domain.Context, env domain.Envelope) error {
	var in domain.ResumeSubmittedPayload
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		return fmt.Errorf("%w: session: decode job.resume.submitted payload: %v", domain.ErrSchemaInvalid, err)
	}
	if err := s.repo.AdvanceOnResumeSubmitted(ctx, in.JobID, in.ResumeID); err != nil {
		return fmt.Errorf("session: advance on resume submitted: %w", err)
	}
	return nil
}

// HandleJdExtracted advances Submitted -> JdExtracted.
func (s *Service) HandleJdExtracted(ctx domain.Context, env domain.Envelope) error {
	var jd domain.JdDto
	if err := json.Unmarshal(env.Payload, &jd); err != nil {
		return fmt.Errorf("%w: session: decode analysis.jd.extracted payload: %v", domain.ErrSchemaInvalid, err)
	}
	if err := s.repo.AdvanceOnJdExtracted(ctx, jd.JobID); err != nil {
		return fmt.Errorf("session: advance on jd extracted: %w", err)
	}
	return nil
}

// HandleResumeParsed advances one resume's sub-state and, once every
// submitted resume has parsed, the session to ResumesParsed.
func (s *Service) HandleResumeParsed(ctx domain.Context, env domain.Envelope) error {
	var resume domain.ResumeDto
	if err := json.Unmarshal(env.Payload, &resume); err != nil {
		return fmt.Errorf("%w: session: decode analysis.resume.parsed payload: %v", domain.ErrSchemaInvalid, err)
	}
	if err := s.repo.AdvanceOnResumeParsed(ctx, resume.JobID, resume.ResumeID); err != nil {
		return fmt.Errorf("session: advance on resume parsed: %w", err)
	}
	return nil
}

// HandleScored advances one resume's sub-state once it has been matched.
func (s *Service) HandleScored(ctx domain.Context, env domain.Envelope) error {
	var score domain.ScoreDto
	if err := json.Unmarshal(env.Payload, &score); err != nil {
		return fmt.Errorf("%w: session: decode analysis.match.scored payload: %v", domain.ErrSchemaInvalid, err)
	}
	if err := s.repo.AdvanceOnResumeScored(ctx, score.JobID, score.ResumeID); err != nil {
		return fmt.Errorf("session: advance on resume scored: %w", err)
	}
	return nil
}

// HandleReportGenerated advances one resume's sub-state to Reported and,
// once every resume has reported, the session to Reported (terminal).
func (s *Service) HandleReportGenerated(ctx domain.Context, env domain.Envelope) error {
	var rep domain.ReportDto
	if err := json.Unmarshal(env.Payload, &rep); err != nil {
		return fmt.Errorf("%w: session: decode analysis.report.generated payload: %v", domain.ErrSchemaInvalid, err)
	}
	if err := s.repo.AdvanceOnResumeReported(ctx, rep.JobID, rep.ResumeID); err != nil {
		return fmt.Errorf("session: advance on resume reported: %w", err)
	}
	return nil
}

// HandleDLQ is the domain.HandlerFunc registered against every dlq.<subject>
// twin. A DLQ landing for the JD pipeline fails the whole session; a DLQ
// landing for a resume fails only that resume's sub-state.
func (s *Service) HandleDLQ(ctx domain.Context, env domain.Envelope) error {
	var dlq domain.DLQEnvelope
	if err := json.Unmarshal(env.Payload, &dlq); err != nil {
		return fmt.Errorf("%w: session: decode dlq envelope: %v", domain.ErrSchemaInvalid, err)
	}

	jobID, resumeID, isJDFailure, err := extractJobAndResume(dlq.Envelope.Subject, dlq.Envelope.Payload)
	if err != nil {
		return fmt.Errorf("%w: session: %v", domain.ErrSchemaInvalid, err)
	}

	if isJDFailure {
		if err := s.repo.FailSession(ctx, jobID, dlq.Failure.Reason); err != nil {
			return fmt.Errorf("session: fail session: %w", err)
		}
		return nil
	}
	if err := s.repo.AdvanceOnResumeFailed(ctx, jobID, resumeID, dlq.Failure.Reason); err != nil {
		return fmt.Errorf("session: advance on resume failed: %w", err)
	}
	return nil
}

// extractJobAndResume pulls (jobId, resumeId) out of the original payload
// that landed in a DLQ, and reports whether the failure is JD-scoped
// (fails the whole session) versus resume-scoped.
func extractJobAndResume(subject string, payload []byte) (jobID, resumeID string, isJDFailure bool, err error) {
	switch subject {
	case domain.SubjectJobJDSubmitted:
		var p domain.JobSubmittedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", "", false, err
		}
		return p.JobID, "", true, nil
	case domain.SubjectAnalysisJDExtracted:
		var jd domain.JdDto
		if err := json.Unmarshal(payload, &jd); err != nil {
			return "", "", false, err
		}
		return jd.JobID, "", true, nil
	case domain.SubjectJobResumeSubmitted:
		var p domain.ResumeSubmittedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", "", false, err
		}
		return p.JobID, p.ResumeID, false, nil
	case domain.SubjectAnalysisResumeParsed:
		var r domain.ResumeDto
		if err := json.Unmarshal(payload, &r); err != nil {
			return "", "", false, err
		}
		return r.JobID, r.ResumeID, false, nil
	case domain.SubjectAnalysisMatchScored:
		var sc domain.ScoreDto
		if err := json.Unmarshal(payload, &sc); err != nil {
			return "", "", false, err
		}
		return sc.JobID, sc.ResumeID, false, nil
	case domain.SubjectAnalysisReportGenerated:
		var rep domain.ReportDto
		if err := json.Unmarshal(payload, &rep); err != nil {
			return "", "", false, err
		}
		return rep.JobID, rep.ResumeID, false, nil
	default:
		return "", "", false, fmt.Errorf("session: unrecognized dlq subject %q", subject)
	}
}
