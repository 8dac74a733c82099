// Package jdextractor implements the JD Extractor (C3): it turns the raw
// text of a job.jd.submitted envelope into a structured JdDto via the LLM
// adapter and publishes analysis.jd.extracted.
package jdextractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

const systemPrompt = "You are an information-extraction engine for job descriptions. " +
	"Given the full text of a job description, return strict JSON with fields " +
	"jobTitle (string), requiredSkills (array of {name, weight 0-1, mandatory bool}), " +
	"experienceYears ({min int, max int}), educationLevel " +
	"(one of highSchool, associate, bachelor, master, doctorate, any), and softSkills " +
	"(array of strings). Return JSON only, no commentary."

const maxResponseTokens = 2048

// Service implements the C3 handler against domain.Bus.Subscribe.
type Service struct {
	ai  domain.AIClient
	bus domain.Bus

	mu    sync.Mutex
	cache map[string]domain.Envelope // messageID -> previously published analysis.jd.extracted
}

// New constructs a Service.
func New(ai domain.AIClient, bus domain.Bus) *Service {
	return &Service{ai: ai, bus: bus, cache: make(map[string]domain.Envelope)}
}

// Handle is the domain.HandlerFunc for job.jd.submitted.
func (s *Service) Handle(ctx domain.Context, env domain.Envelope) error {
	if cached, ok := s.lookupCached(env.MessageID); ok {
		return s.bus.Publish(ctx, domain.SubjectAnalysisJDExtracted, cached)
	}

	var in domain.JobSubmittedPayload
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		return fmt.Errorf("%w: jdextractor: decode job.jd.submitted payload: %v", domain.ErrSchemaInvalid, err)
	}
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("%w: jdextractor: empty job description text", domain.ErrInvalidArgument)
	}

	raw, err := s.ai.ChatJSON(ctx, systemPrompt, in.Text, maxResponseTokens)
	if err != nil {
		return classifyAIError(err)
	}

	jd, err := parseJdDto(raw)
	if err != nil {
		return fmt.Errorf("%w: jdextractor: parse llm response: %v", domain.ErrSchemaInvalid, err)
	}
	jd.JobID = in.JobID

	if err := validateJdDto(jd); err != nil {
		return fmt.Errorf("%w: jdextractor: %v", domain.ErrSchemaInvalid, err)
	}

	out, err := s.buildEnvelope(env, jd)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, domain.SubjectAnalysisJDExtracted, out); err != nil {
		return fmt.Errorf("jdextractor: publish analysis.jd.extracted: %w", err)
	}
	s.storeCached(env.MessageID, out)
	return nil
}

func (s *Service) lookupCached(messageID string) (domain.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.cache[messageID]
	return env, ok
}

func (s *Service) storeCached(messageID string, env domain.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[messageID] = env
}

func (s *Service) buildEnvelope(trigger domain.Envelope, jd domain.JdDto) (domain.Envelope, error) {
	payload, err := json.Marshal(jd)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("jdextractor: marshal JdDto: %w", err)
	}
	return domain.Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: trigger.CorrelationID,
		CausationID:   trigger.MessageID,
		OccurredAt:    time.Now().UTC(),
		Attempt:       1,
		Subject:       domain.SubjectAnalysisJDExtracted,
		TenantID:      trigger.TenantID,
		SchemaVersion: domain.SchemaVersion,
		Payload:       payload,
	}, nil
}

// classifyAIError maps an AIClient failure onto the transient/permanent
// taxonomy. Transient errors keep their sentinel in the %w chain and are not
// tagged ErrInvalidArgument, so errors.Is and the bus runtime's substring
// match against domain.DefaultRetryConfig both see them as transient.
func classifyAIError(err error) error {
	if errors.Is(err, domain.ErrUpstreamTimeout) || errors.Is(err, domain.ErrUpstreamRateLimit) || errors.Is(err, domain.ErrRateLimited) {
		return fmt.Errorf("jdextractor: llm extraction: %w", err)
	}
	return fmt.Errorf("%w: jdextractor: llm extraction: %v", domain.ErrInvalidArgument, err)
}

type jdResponse struct {
	JobTitle       string                    `json:"jobTitle"`
	RequiredSkills []domain.SkillRequirement `json:"requiredSkills"`
	ExperienceYears struct {
		Min int  `json:"min"`
		Max *int `json:"max"`
	} `json:"experienceYears"`
	EducationLevel string   `json:"educationLevel"`
	SoftSkills     []string `json:"softSkills"`
}

// parseJdDto decodes the LLM's JSON response, tolerating a markdown code
// fence around the payload (vendors sometimes wrap JSON in ```json blocks
// despite being asked not to).
func parseJdDto(raw string) (domain.JdDto, error) {
	raw = stripCodeFence(raw)
	var r jdResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return domain.JdDto{}, err
	}
	return domain.JdDto{
		JobTitle:       r.JobTitle,
		RequiredSkills: r.RequiredSkills,
		ExperienceYears: domain.YearsRange{
			Min: r.ExperienceYears.Min,
			Max: r.ExperienceYears.Max,
		},
		EducationLevel: domain.EducationLevel(r.EducationLevel),
		SoftSkills:     r.SoftSkills,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// validateJdDto enforces the JdDto invariants: mandatory skill weights sum
// to at most 1.0 and the experience band is ordered.
func validateJdDto(jd domain.JdDto) error {
	var mandatoryWeight float64
	for _, sk := range jd.RequiredSkills {
		if sk.Mandatory {
			mandatoryWeight += sk.Weight
		}
	}
	if mandatoryWeight > 1.0+1e-9 {
		return fmt.Errorf("mandatory skill weights sum to %.4f, exceeds 1.0", mandatoryWeight)
	}
	if jd.ExperienceYears.Max != nil && jd.ExperienceYears.Min > *jd.ExperienceYears.Max {
		return fmt.Errorf("experienceYears.min (%d) > experienceYears.max (%d)", jd.ExperienceYears.Min, *jd.ExperienceYears.Max)
	}
	return nil
}
