// Package report implements the Report Generator (C6): it renders a
// human-readable ReportDto from a ScoreDto (plus the JD and resume it
// scored) and persists it idempotently by (jobId, resumeId).
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/internal/service/scoring"
)

const maxStrengths = 5
const maxConcerns = 5

// JdLookup is the narrow read port Report needs from the Scoring Engine's
// pairing cache (already retains JdDto indefinitely, see
// internal/adapter/cache/pairing).
type JdLookup interface {
	GetJd(ctx domain.Context, jobID string) (domain.JdDto, bool, error)
}

// ResumeLookup is the narrow read/write port backing the resumectx cache
// this service populates from analysis.resume.parsed.
type ResumeLookup interface {
	Put(ctx domain.Context, r domain.ResumeDto) error
	Get(ctx domain.Context, jobID, resumeID string) (domain.ResumeDto, bool, error)
}

// Service implements the C6 handlers against domain.Bus.Subscribe.
type Service struct {
	jds          JdLookup
	resumes      ResumeLookup
	reports      domain.ReportRepository
	bus          domain.Bus
	modelVersion string
}

// New constructs a Service. modelVersion is stamped on every rendered
// report: the configured vendor model, or "mock" when the pipeline runs
// against the deterministic AI mock.
func New(jds JdLookup, resumes ResumeLookup, reports domain.ReportRepository, bus domain.Bus, modelVersion string) *Service {
	if modelVersion == "" {
		modelVersion = "mock"
	}
	return &Service{jds: jds, resumes: resumes, reports: reports, bus: bus, modelVersion: modelVersion}
}

// HandleResumeParsed caches the ResumeDto this service needs later when its
// score arrives; it never acts on the event beyond caching.
func (s *Service) HandleResumeParsed(ctx domain.Context, env domain.Envelope) error {
	var resume domain.ResumeDto
	if err := json.Unmarshal(env.Payload, &resume); err != nil {
		return fmt.Errorf("%w: report: decode analysis.resume.parsed payload: %v", domain.ErrSchemaInvalid, err)
	}
	if err := s.resumes.Put(ctx, resume); err != nil {
		return fmt.Errorf("report: cache resume: %w", err)
	}
	return nil
}

// HandleScored is the domain.HandlerFunc for analysis.match.scored.
func (s *Service) HandleScored(ctx domain.Context, env domain.Envelope) error {
	var score domain.ScoreDto
	if err := json.Unmarshal(env.Payload, &score); err != nil {
		return fmt.Errorf("%w: report: decode analysis.match.scored payload: %v", domain.ErrSchemaInvalid, err)
	}

	jd, ok, err := s.jds.GetJd(ctx, score.JobID)
	if err != nil {
		return fmt.Errorf("report: lookup jd: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: report: no cached jd for job %s", domain.ErrUpstreamTimeout, score.JobID)
	}
	resume, ok, err := s.resumes.Get(ctx, score.JobID, score.ResumeID)
	if err != nil {
		return fmt.Errorf("report: lookup resume: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: report: no cached resume for job %s resume %s", domain.ErrUpstreamTimeout, score.JobID, score.ResumeID)
	}

	rep := Render(jd, resume, score, s.modelVersion)
	if err := s.reports.Upsert(ctx, rep); err != nil {
		return fmt.Errorf("report: upsert report: %w", err)
	}

	out, err := s.buildEnvelope(env, rep)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, domain.SubjectAnalysisReportGenerated, out); err != nil {
		return fmt.Errorf("report: publish analysis.report.generated: %w", err)
	}
	return nil
}

func (s *Service) buildEnvelope(trigger domain.Envelope, rep domain.ReportDto) (domain.Envelope, error) {
	payload, err := json.Marshal(rep)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("report: marshal ReportDto: %w", err)
	}
	return domain.Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: trigger.CorrelationID,
		CausationID:   trigger.MessageID,
		OccurredAt:    time.Now().UTC(),
		Attempt:       1,
		Subject:       domain.SubjectAnalysisReportGenerated,
		TenantID:      trigger.TenantID,
		SchemaVersion: domain.SchemaVersion,
		Payload:       payload,
	}, nil
}

// Render is a pure function implementing the report rendering rules. It is kept
// separate from Service so it can be unit tested without a bus or cache.
func Render(jd domain.JdDto, resume domain.ResumeDto, score domain.ScoreDto, modelVersion string) domain.ReportDto {
	return domain.ReportDto{
		JobID:        score.JobID,
		ResumeID:     score.ResumeID,
		Summary:      summary(score),
		Strengths:    strengths(jd, score),
		Concerns:     concerns(jd, score),
		Suggestions:  suggestions(jd, resume),
		Decision:     decisionFor(score.Recommendation),
		GeneratedAt:  time.Now().UTC(),
		ModelVersion: modelVersion,
	}
}

func summary(score domain.ScoreDto) string {
	return fmt.Sprintf(
		"Overall match %.2f/100 (%s): skills %.2f, experience %.2f, education %.2f, soft skills %.2f.",
		score.Overall, score.Recommendation, score.Breakdown.Skills, score.Breakdown.Experience,
		score.Breakdown.Education, score.Breakdown.SoftSkills,
	)
}

// strengths lists matchedSkills ranked by requiredSkills weight desc.
func strengths(jd domain.JdDto, score domain.ScoreDto) []string {
	matched := make(map[string]struct{}, len(score.MatchedSkills))
	for _, s := range score.MatchedSkills {
		matched[strings.ToLower(s)] = struct{}{}
	}

	var out []string
	for _, req := range scoring.RankedRequiredSkills(jd) {
		if _, ok := matched[strings.ToLower(req.Name)]; ok {
			out = append(out, req.Name)
		}
	}
	return capStrings(out, maxStrengths)
}

// concerns lists every missing mandatory skill, then non-mandatory gaps
// ranked by weight desc, capped total at 5.
func concerns(jd domain.JdDto, score domain.ScoreDto) []string {
	out := append([]string{}, score.MissingMandatorySkills...)

	matched := make(map[string]struct{}, len(score.MatchedSkills))
	for _, s := range score.MatchedSkills {
		matched[strings.ToLower(s)] = struct{}{}
	}
	missingMandatory := make(map[string]struct{}, len(score.MissingMandatorySkills))
	for _, s := range score.MissingMandatorySkills {
		missingMandatory[strings.ToLower(s)] = struct{}{}
	}

	for _, req := range scoring.RankedRequiredSkills(jd) {
		name := strings.ToLower(req.Name)
		if _, ok := matched[name]; ok {
			continue
		}
		if _, ok := missingMandatory[name]; ok {
			continue
		}
		out = append(out, req.Name)
	}
	return capStrings(out, maxConcerns)
}

// suggestions implements the fixed suggestion rules: an experience shortfall
// suggests bridging the gap, an education gap of two or more levels suggests
// certification paths.
func suggestions(jd domain.JdDto, resume domain.ResumeDto) []string {
	var out []string

	a := jd.ExperienceYears.Min
	if resume.TotalYearsExperience < float64(a) {
		deficit := float64(a) - resume.TotalYearsExperience
		out = append(out, fmt.Sprintf("bridge %.1f years of experience via targeted projects or a senior mentor", deficit))
	}

	r := domain.LevelRank(jd.EducationLevel)
	c := 0
	for _, d := range resume.Education {
		if rank := domain.LevelRank(d.Level); rank > c {
			c = rank
		}
	}
	if r-c >= 2 {
		out = append(out, "pursue a certification or accelerated degree program to close the education gap")
	}

	return out
}

func decisionFor(rec domain.Recommendation) domain.Decision {
	switch rec {
	case domain.RecommendationStrongMatch, domain.RecommendationMatch:
		return domain.DecisionInterview
	case domain.RecommendationWeakMatch:
		return domain.DecisionHold
	default:
		return domain.DecisionReject
	}
}

func capStrings(in []string, max int) []string {
	if len(in) > max {
		return in[:max]
	}
	return in
}
