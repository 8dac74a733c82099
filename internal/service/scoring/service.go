package scoring

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// DefaultPairingTTL is the default window a resume waits for its JD before
// being dead-lettered.
const DefaultPairingTTL = 24 * time.Hour

// Service implements the C5 handlers against domain.Bus.Subscribe, pairing
// JdDto and ResumeDto arrivals by jobId via the shared pairing cache.
type Service struct {
	pairing    domain.PairingCache
	bus        domain.Bus
	pairingTTL time.Duration
	drift      *observability.ScoreDriftMonitor
}

// New constructs a Service. pairingTTL defaults to DefaultPairingTTL when <= 0.
func New(pairing domain.PairingCache, bus domain.Bus, pairingTTL time.Duration) *Service {
	if pairingTTL <= 0 {
		pairingTTL = DefaultPairingTTL
	}
	return &Service{
		pairing:    pairing,
		bus:        bus,
		pairingTTL: pairingTTL,
		drift:      observability.NewScoreDriftMonitor("rubric-v1", 50, 15.0),
	}
}

// HandleJdExtracted is the domain.HandlerFunc for analysis.jd.extracted.
// Stores the JdDto, then drains and scores any resumes that arrived first.
func (s *Service) HandleJdExtracted(ctx domain.Context, env domain.Envelope) error {
	var jd domain.JdDto
	if err := json.Unmarshal(env.Payload, &jd); err != nil {
		return fmt.Errorf("%w: scoring: decode analysis.jd.extracted payload: %v", domain.ErrSchemaInvalid, err)
	}

	if err := s.pairing.PutJd(ctx, jd); err != nil {
		return fmt.Errorf("scoring: put jd in pairing cache: %w", err)
	}

	pending, err := s.pairing.DrainPendingResumes(ctx, jd.JobID)
	if err != nil {
		return fmt.Errorf("scoring: drain pending resumes: %w", err)
	}
	for _, p := range pending {
		if err := s.publishScore(ctx, env, Score(jd, p.Resume)); err != nil {
			return err
		}
	}
	return nil
}

// HandleResumeParsed is the domain.HandlerFunc for analysis.resume.parsed.
// Scores immediately if the JD has already arrived, otherwise buffers the
// resume in the pairing cache.
func (s *Service) HandleResumeParsed(ctx domain.Context, env domain.Envelope) error {
	var resume domain.ResumeDto
	if err := json.Unmarshal(env.Payload, &resume); err != nil {
		return fmt.Errorf("%w: scoring: decode analysis.resume.parsed payload: %v", domain.ErrSchemaInvalid, err)
	}

	jd, ok, err := s.pairing.GetJd(ctx, resume.JobID)
	if err != nil {
		return fmt.Errorf("scoring: lookup jd in pairing cache: %w", err)
	}
	if ok {
		return s.publishScore(ctx, env, Score(jd, resume))
	}
	// Buffer the delivering envelope with the resume: if the JD never
	// arrives, the TTL sweep dead-letters under the original messageId.
	if err := s.pairing.EnqueuePendingResume(ctx, domain.PendingResume{Resume: resume, Envelope: env}); err != nil {
		return fmt.Errorf("scoring: enqueue pending resume: %w", err)
	}
	return nil
}

func (s *Service) publishScore(ctx domain.Context, trigger domain.Envelope, score domain.ScoreDto) error {
	payload, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("scoring: marshal ScoreDto: %w", err)
	}
	out := domain.Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: trigger.CorrelationID,
		CausationID:   trigger.MessageID,
		OccurredAt:    time.Now().UTC(),
		Attempt:       1,
		Subject:       domain.SubjectAnalysisMatchScored,
		TenantID:      trigger.TenantID,
		SchemaVersion: domain.SchemaVersion,
		Payload:       payload,
	}
	if err := s.bus.Publish(ctx, domain.SubjectAnalysisMatchScored, out); err != nil {
		return fmt.Errorf("scoring: publish analysis.match.scored: %w", err)
	}
	observability.ObserveMatchScore(string(score.Recommendation), score.Overall)
	s.drift.Record("overall", score.Overall)
	return nil
}

// SweepExpiredPending routes every pending resume older than pairingTTL to
// dlq.analysis.resume.parsed. Intended to run on a periodic ticker
// driven by cmd/scoring, independent of the bus subscriptions above.
func (s *Service) SweepExpiredPending(ctx domain.Context) error {
	expired, err := s.pairing.ExpiredPending(ctx, s.pairingTTL)
	if err != nil {
		return fmt.Errorf("scoring: list expired pending resumes: %w", err)
	}
	for _, p := range expired {
		if err := s.deadLetterExpired(ctx, p); err != nil {
			return err
		}
		if err := s.pairing.RemovePendingResume(ctx, p.Resume.JobID, p.Resume.ResumeID); err != nil {
			return fmt.Errorf("scoring: remove expired pending resume: %w", err)
		}
	}
	return nil
}

// deadLetterExpired dead-letters a pending resume under the ORIGINAL
// analysis.resume.parsed envelope buffered with it, so the DLQ record keeps
// the triggering event's messageId.
func (s *Service) deadLetterExpired(ctx domain.Context, p domain.PendingResume) error {
	orig := p.Envelope
	if orig.Subject == "" {
		// Entries written before the envelope was buffered alongside the
		// resume; reconstruct the subject so the DLQ twin is still correct.
		orig.Subject = domain.SubjectAnalysisResumeParsed
		orig.CorrelationID = p.Resume.JobID
	}
	dlq := domain.DLQEnvelope{
		Envelope: orig,
		Failure: domain.Failure{
			Reason:      fmt.Sprintf("no JD arrived within pairingTtl (%s)", s.pairingTTL),
			LastAttempt: time.Now().UTC(),
		},
	}
	b, err := json.Marshal(dlq)
	if err != nil {
		return fmt.Errorf("scoring: marshal DLQEnvelope: %w", err)
	}
	dlqEnv := orig
	dlqEnv.Payload = b
	if err := s.bus.Publish(ctx, "dlq."+orig.Subject, dlqEnv); err != nil {
		return fmt.Errorf("scoring: publish to dlq.%s: %w", orig.Subject, err)
	}
	return nil
}
