// Package resumeparser implements the Resume Parser (C4): it streams an
// uploaded resume blob from the object store, extracts structured fields
// with the LLM adapter, computes totalYearsExperience and skill
// normalization locally, and publishes analysis.resume.parsed.
package resumeparser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/pkg/textx"
)

const systemPrompt = "You are an information-extraction engine for resumes. " +
	"Given the plain text of a resume, return strict JSON with fields " +
	"contactInfo ({name, email, phone}), skills (array of strings), " +
	"workExperience (array of {company, title, startDate YYYY-MM-DD, endDate YYYY-MM-DD or null " +
	"for present, description}), education (array of {institution, level, field}), and " +
	"softSkills (array of strings inferred from tone and achievements). Return JSON only."

const maxResponseTokens = 3072

// textOnlyMimePrefixes identifies formats handled by direct sanitization
// rather than the Tika adapter.
var textOnlyMimePrefixes = []string{"text/plain"}

// Service implements the C4 handler against domain.Bus.Subscribe.
type Service struct {
	objects      domain.ObjectStore
	extractor    domain.TextExtractor
	ai           domain.AIClient
	bus          domain.Bus
	maxFileBytes int64

	mu    sync.Mutex
	cache map[string]domain.Envelope
}

// New constructs a Service. maxFileBytes defaults to 10 MiB when <= 0.
func New(objects domain.ObjectStore, extractor domain.TextExtractor, ai domain.AIClient, bus domain.Bus, maxFileBytes int64) *Service {
	if maxFileBytes <= 0 {
		maxFileBytes = 10 << 20
	}
	return &Service{
		objects: objects, extractor: extractor, ai: ai, bus: bus,
		maxFileBytes: maxFileBytes, cache: make(map[string]domain.Envelope),
	}
}

// Handle is the domain.HandlerFunc for job.resume.submitted.
func (s *Service) Handle(ctx domain.Context, env domain.Envelope) error {
	if cached, ok := s.lookupCached(env.MessageID); ok {
		return s.bus.Publish(ctx, domain.SubjectAnalysisResumeParsed, cached)
	}

	var in domain.ResumeSubmittedPayload
	if err := json.Unmarshal(env.Payload, &in); err != nil {
		return fmt.Errorf("%w: resumeparser: decode job.resume.submitted payload: %v", domain.ErrSchemaInvalid, err)
	}

	content, err := s.fetchAndVerify(ctx, in)
	if err != nil {
		return err
	}

	text, err := s.extractText(ctx, in, content)
	if err != nil {
		return err
	}

	raw, err := s.ai.ChatJSON(ctx, systemPrompt, text, maxResponseTokens)
	if err != nil {
		return classifyAIError(err)
	}

	resume, err := parseResumeDto(raw)
	if err != nil {
		return fmt.Errorf("%w: resumeparser: parse llm response: %v", domain.ErrSchemaInvalid, err)
	}
	if err := validateExperience(resume.WorkExperience); err != nil {
		return fmt.Errorf("%w: resumeparser: %v", domain.ErrSchemaInvalid, err)
	}

	resume.ResumeID = in.ResumeID
	resume.JobID = in.JobID
	resume.RawFileRef = in.RawFileRef
	resume.Skills = normalizeSkills(resume.Skills)
	resume.TotalYearsExperience = totalYearsExperience(resume.WorkExperience)

	out, err := s.buildEnvelope(env, resume)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, domain.SubjectAnalysisResumeParsed, out); err != nil {
		return fmt.Errorf("resumeparser: publish analysis.resume.parsed: %w", err)
	}
	s.storeCached(env.MessageID, out)
	return nil
}

// fetchAndVerify streams the blob from C2, enforces maxFileBytes, and
// verifies the envelope's checksum against the store's record.
func (s *Service) fetchAndVerify(ctx domain.Context, in domain.ResumeSubmittedPayload) ([]byte, error) {
	stat, err := s.objects.Stat(ctx, in.RawFileRef.FileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: resumeparser: resume blob %s not found", domain.ErrNotFound, in.RawFileRef.FileID)
		}
		return nil, fmt.Errorf("resumeparser: stat blob: %w", err)
	}
	if stat.Checksum != in.RawFileRef.Checksum {
		return nil, fmt.Errorf("%w: resumeparser: checksum %s does not match recorded %s", domain.ErrChecksumMismatch, stat.Checksum, in.RawFileRef.Checksum)
	}
	if stat.Size > s.maxFileBytes {
		return nil, fmt.Errorf("%w: resumeparser: file size %d exceeds maxFileBytes %d", domain.ErrInvalidArgument, stat.Size, s.maxFileBytes)
	}

	rc, err := s.objects.OpenRead(ctx, in.RawFileRef.FileID)
	if err != nil {
		return nil, fmt.Errorf("resumeparser: open blob: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, s.maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("resumeparser: read blob: %w", err)
	}
	if int64(len(content)) > s.maxFileBytes {
		return nil, fmt.Errorf("%w: resumeparser: file exceeds maxFileBytes %d", domain.ErrInvalidArgument, s.maxFileBytes)
	}
	return content, nil
}

// extractText dispatches to a format-specific reader selected by magic
// bytes, not file extension.
func (s *Service) extractText(ctx domain.Context, in domain.ResumeSubmittedPayload, content []byte) (string, error) {
	mime := mimetype.Detect(content)
	for _, prefix := range textOnlyMimePrefixes {
		if strings.HasPrefix(mime.String(), prefix) {
			return textx.SanitizeText(string(content)), nil
		}
	}

	tmp, err := os.CreateTemp("", "resume-*"+mime.Extension())
	if err != nil {
		return "", fmt.Errorf("resumeparser: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("resumeparser: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("resumeparser: close temp file: %w", err)
	}

	text, err := s.extractor.ExtractPath(ctx, in.RawFileRef.FileID+mime.Extension(), tmp.Name())
	if err != nil {
		return "", fmt.Errorf("%w: resumeparser: extract text: %v", domain.ErrUpstreamTimeout, err)
	}
	return textx.SanitizeText(text), nil
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

func (s *Service) buildEnvelope(trigger domain.Envelope, resume domain.ResumeDto) (domain.Envelope, error) {
	payload, err := json.Marshal(resume)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("resumeparser: marshal ResumeDto: %w", err)
	}
	return domain.Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: trigger.CorrelationID,
		CausationID:   trigger.MessageID,
		OccurredAt:    time.Now().UTC(),
		Attempt:       1,
		Subject:       domain.SubjectAnalysisResumeParsed,
		TenantID:      trigger.TenantID,
		SchemaVersion: domain.SchemaVersion,
		Payload:       payload,
	}, nil
}

func classifyAIError(err error) error {
	if errors.Is(err, domain.ErrUpstreamTimeout) || errors.Is(err, domain.ErrUpstreamRateLimit) || errors.Is(err, domain.ErrRateLimited) {
		return fmt.Errorf("resumeparser: llm extraction: %w", err)
	}
	return fmt.Errorf("%w: resumeparser: llm extraction: %v", domain.ErrInvalidArgument, err)
}

type resumeResponse struct {
	ContactInfo    domain.ContactInfo `json:"contactInfo"`
	Skills         []string           `json:"skills"`
	WorkExperience []struct {
		Company     string  `json:"company"`
		Title       string  `json:"title"`
		StartDate   string  `json:"startDate"`
		EndDate     *string `json:"endDate"`
		Description string  `json:"description"`
	} `json:"workExperience"`
	Education []domain.Degree `json:"education"`
	SoftSkills []string       `json:"softSkills"`
}

func parseResumeDto(raw string) (domain.ResumeDto, error) {
	raw = stripCodeFence(raw)
	var r resumeResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return domain.ResumeDto{}, err
	}

	experiences := make([]domain.Experience, 0, len(r.WorkExperience))
	for _, we := range r.WorkExperience {
		start, err := parseDate(we.StartDate)
		if err != nil {
			return domain.ResumeDto{}, fmt.Errorf("work experience %q: invalid startDate: %w", we.Company, err)
		}
		var end *time.Time
		if we.EndDate != nil && strings.TrimSpace(*we.EndDate) != "" {
			t, err := parseDate(*we.EndDate)
			if err != nil {
				return domain.ResumeDto{}, fmt.Errorf("work experience %q: invalid endDate: %w", we.Company, err)
			}
			end = &t
		}
		experiences = append(experiences, domain.Experience{
			Company: we.Company, Title: we.Title, StartDate: start, EndDate: end, Description: we.Description,
		})
	}

	return domain.ResumeDto{
		Contact:        r.ContactInfo,
		Skills:         r.Skills,
		WorkExperience: experiences,
		Education:      r.Education,
		SoftSkills:     r.SoftSkills,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
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

// validateExperience enforces the per-Experience invariant: startDate <= endDate.
func validateExperience(experiences []domain.Experience) error {
	for _, e := range experiences {
		if e.EndDate != nil && e.StartDate.After(*e.EndDate) {
			return fmt.Errorf("experience %q at %q: startDate %s is after endDate %s", e.Title, e.Company, e.StartDate, *e.EndDate)
		}
	}
	return nil
}

// totalYearsExperience computes the non-overlapping union of experience
// intervals and sums the span in days / 365.25. present
// (EndDate == nil) is treated as "now".
func totalYearsExperience(experiences []domain.Experience) float64 {
	if len(experiences) == 0 {
		return 0
	}
	now := time.Now().UTC()

	type interval struct{ start, end time.Time }
	intervals := make([]interval, 0, len(experiences))
	for _, e := range experiences {
		end := now
		if e.EndDate != nil {
			end = *e.EndDate
		}
		if end.Before(e.StartDate) {
			continue
		}
		intervals = append(intervals, interval{start: e.StartDate, end: end})
	}
	if len(intervals) == 0 {
		return 0
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start.Before(intervals[j].start) })

	var totalDays float64
	cur := intervals[0]
	for _, iv := range intervals[1:] {
		if iv.start.After(cur.end) {
			totalDays += cur.end.Sub(cur.start).Hours() / 24
			cur = iv
			continue
		}
		if iv.end.After(cur.end) {
			cur.end = iv.end
		}
	}
	totalDays += cur.end.Sub(cur.start).Hours() / 24

	return totalDays / 365.25
}

// normalizeSkills lower-cases, strips diacritics, collapses whitespace, and
// deduplicates while preserving first-seen order.
func normalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, raw := range skills {
		s := strings.ToLower(strings.TrimSpace(raw))
		s = collapseWhitespace(stripDiacritics(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
