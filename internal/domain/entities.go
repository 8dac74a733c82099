// Package domain defines the core entities, ports, and domain-specific errors
// shared by every service in the pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels). Adapters classify failures against these with
// errors.Is/errors.As; the bus runtime uses the classification to decide
// between redelivery and dead-lettering.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrPublishRejected   = errors.New("publish rejected")
	ErrInternal          = errors.New("internal error")
)

// Context is a type alias to stdlib context.Context for convenience across
// layers without forcing every domain file to import "context".
type Context = context.Context

// EducationLevel enumerates the ordinal education levels used by both job
// descriptions (required level) and resumes (attained level).
type EducationLevel string

// Education level values, ordered low to high (see LevelRank).
const (
	EducationAny        EducationLevel = "any"
	EducationHighSchool EducationLevel = "highSchool"
	EducationAssociate  EducationLevel = "associate"
	EducationBachelor   EducationLevel = "bachelor"
	EducationMaster     EducationLevel = "master"
	EducationDoctorate  EducationLevel = "doctorate"
)

// LevelRank maps an EducationLevel to its ordinal rank, 0 for "any".
func LevelRank(l EducationLevel) int {
	switch l {
	case EducationHighSchool:
		return 1
	case EducationAssociate:
		return 2
	case EducationBachelor:
		return 3
	case EducationMaster:
		return 4
	case EducationDoctorate:
		return 5
	default:
		return 0
	}
}

// Stage enumerates the lifecycle states of a Session. Transitions are
// monotonic; see the SessionRepository AdvanceOn* methods.
type Stage string

const (
	StageSubmitted     Stage = "submitted"
	StageJdExtracted   Stage = "jdExtracted"
	StageResumesParsed Stage = "resumesParsed"
	StageScored        Stage = "scored"
	StageReported      Stage = "reported"
	StageFailed        Stage = "failed"
)

// ResumeSubStage tracks one resume's progress independently of the session's
// overall Stage, so a single failing resume does not fail the whole job.
type ResumeSubStage string

const (
	ResumeSubmitted ResumeSubStage = "submitted"
	ResumeParsed    ResumeSubStage = "parsed"
	ResumeScored    ResumeSubStage = "scored"
	ResumeReported  ResumeSubStage = "reported"
	ResumeFailed    ResumeSubStage = "failed"
)

// SkillRequirement is one entry of a JdDto's required-skills list.
type SkillRequirement struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	Mandatory bool    `json:"mandatory"`
}

// YearsRange is a job description's acceptable experience band. Max is
// nil to represent an open upper bound ("5+ years").
type YearsRange struct {
	Min int  `json:"min"`
	Max *int `json:"max,omitempty"`
}

// JdDto is the structured job description produced by the JD Extractor.
type JdDto struct {
	JobID           string             `json:"jobId"`
	JobTitle        string             `json:"jobTitle"`
	RequiredSkills  []SkillRequirement `json:"requiredSkills"`
	ExperienceYears YearsRange         `json:"experienceYears"`
	EducationLevel  EducationLevel     `json:"educationLevel"`
	SoftSkills      []string           `json:"softSkills"`
}

// Experience is one entry of a resume's work history. End is nil when the
// role is ongoing ("present").
type Experience struct {
	Company     string     `json:"company"`
	Title       string     `json:"title"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Description string     `json:"description"`
}

// Degree is one entry of a resume's education history.
type Degree struct {
	Institution string         `json:"institution"`
	Level       EducationLevel `json:"level"`
	Field       string         `json:"field"`
}

// ContactInfo is a resume's extracted contact block.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// RawFileRef points at an immutable blob in the object store.
type RawFileRef struct {
	FileID   string `json:"fileId"`
	Checksum string `json:"checksum"`
}

// ResumeDto is the structured resume produced by the Resume Parser.
type ResumeDto struct {
	ResumeID              string       `json:"resumeId"`
	JobID                 string       `json:"jobId"`
	Contact               ContactInfo  `json:"contactInfo"`
	Skills                []string     `json:"skills"`
	WorkExperience        []Experience `json:"workExperience"`
	Education             []Degree     `json:"education"`
	TotalYearsExperience  float64      `json:"totalYearsExperience"`
	SoftSkills            []string     `json:"softSkills"`
	RawFileRef            RawFileRef   `json:"rawFileRef"`
}

// ScoreBreakdown is the four weighted sub-scores behind ScoreDto.Overall.
type ScoreBreakdown struct {
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Education  float64 `json:"education"`
	SoftSkills float64 `json:"softSkills"`
}

// ScoreWeights records the weights applied to a ScoreBreakdown so that a
// ScoreDto is reproducible independent of later config changes.
type ScoreWeights struct {
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Education  float64 `json:"education"`
	SoftSkills float64 `json:"softSkills"`
}

// Recommendation is the categorical match band derived from Overall.
type Recommendation string

const (
	RecommendationStrongMatch Recommendation = "strongMatch"
	RecommendationMatch       Recommendation = "match"
	RecommendationWeakMatch   Recommendation = "weakMatch"
	RecommendationNoMatch     Recommendation = "noMatch"
)

// ScoreDto is the match result produced by the Scoring Engine.
type ScoreDto struct {
	JobID                  string         `json:"jobId"`
	ResumeID               string         `json:"resumeId"`
	Overall                float64        `json:"overall"`
	Breakdown              ScoreBreakdown `json:"breakdown"`
	WeightsUsed            ScoreWeights   `json:"weightsUsed"`
	MatchedSkills          []string       `json:"matchedSkills"`
	MissingMandatorySkills []string       `json:"missingMandatorySkills"`
	Recommendation         Recommendation `json:"recommendation"`
}

// Decision is the report's final recommendation to the hiring team.
type Decision string

const (
	DecisionInterview Decision = "interview"
	DecisionHold      Decision = "hold"
	DecisionReject    Decision = "reject"
)

// ReportDto is the human-readable report produced by the Report Generator.
type ReportDto struct {
	JobID        string    `json:"jobId"`
	ResumeID     string    `json:"resumeId"`
	Summary      string    `json:"summary"`
	Strengths    []string  `json:"strengths"`
	Concerns     []string  `json:"concerns"`
	Suggestions  []string  `json:"suggestions"`
	Decision     Decision  `json:"decision"`
	GeneratedAt  time.Time `json:"generatedAt"`
	ModelVersion string    `json:"modelVersion"`
}

// ResumeState is one resume's entry in a Session's sub-map.
type ResumeState struct {
	ResumeID string         `json:"resumeId"`
	Stage    ResumeSubStage `json:"stage"`
	Error    string         `json:"error,omitempty"`
}

// Session is the per-jobId aggregate owned exclusively by the Session
// Coordinator (C7). Other components never mutate it directly.
type Session struct {
	JobID          string                 `json:"jobId"`
	OrganizationID string                 `json:"organizationId"`
	Stage          Stage                  `json:"stage"`
	Resumes        map[string]ResumeState `json:"resumes"`
	Submitted      int                    `json:"submitted"`
	Parsed         int                    `json:"parsed"`
	Scored         int                    `json:"scored"`
	Reported       int                    `json:"reported"`
	Failed         int                    `json:"failed"`
	LastError      string                 `json:"lastError,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
	TerminalAt     *time.Time             `json:"terminalAt,omitempty"`
}

// JobSubmittedPayload is the payload carried by job.jd.submitted, produced
// by the HTTP admission layer's POST /jobs.
type JobSubmittedPayload struct {
	JobID          string    `json:"jobId"`
	OrganizationID string    `json:"organizationId"`
	Text           string    `json:"text"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// ResumeSubmittedPayload is the payload carried by job.resume.submitted,
// produced by the HTTP admission layer's POST /jobs/{jobId}/resumes.
type ResumeSubmittedPayload struct {
	JobID       string     `json:"jobId"`
	ResumeID    string     `json:"resumeId"`
	RawFileRef  RawFileRef `json:"rawFileRef"`
	ContentType string     `json:"contentType"`
	SubmittedAt time.Time  `json:"submittedAt"`
}

// Envelope is the transport wrapper for every bus message.
type Envelope struct {
	MessageID     string    `json:"messageId"`
	CorrelationID string    `json:"correlationId"`
	CausationID   string    `json:"causationId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	Attempt       int       `json:"attempt"`
	Subject       string    `json:"subject"`
	TenantID      string    `json:"tenantId,omitempty"`
	SchemaVersion string    `json:"schemaVersion"`
	Payload       []byte    `json:"payload"`
}

// Failure annotates an Envelope that has been routed to a DLQ subject.
type Failure struct {
	Reason      string    `json:"reason"`
	Stack       string    `json:"stack,omitempty"`
	LastAttempt time.Time `json:"lastAttempt"`
}

// DLQEnvelope is the shape published on dlq.<subject>.
type DLQEnvelope struct {
	Envelope
	Failure Failure `json:"failure"`
}

// Ports

// SessionRepository persists and advances the per-jobId Session aggregate.
type SessionRepository interface {
	Create(ctx Context, jobID, organizationID string) error
	Get(ctx Context, jobID string) (Session, error)
	AdvanceOnJdExtracted(ctx Context, jobID string) error
	AdvanceOnResumeSubmitted(ctx Context, jobID, resumeID string) error
	AdvanceOnResumeParsed(ctx Context, jobID, resumeID string) error
	AdvanceOnResumeScored(ctx Context, jobID, resumeID string) error
	AdvanceOnResumeReported(ctx Context, jobID, resumeID string) error
	AdvanceOnResumeFailed(ctx Context, jobID, resumeID, reason string) error
	FailSession(ctx Context, jobID, reason string) error
	Count(ctx Context) (int64, error)
}

// ReportRepository persists idempotent (jobId, resumeId) report upserts.
type ReportRepository interface {
	Upsert(ctx Context, r ReportDto) error
	GetByJobAndResume(ctx Context, jobID, resumeID string) (ReportDto, bool, error)
}

// PendingResume is a buffered ResumeDto together with the envelope that
// delivered it, so a later TTL dead-letter can preserve the original
// message identity.
type PendingResume struct {
	Resume   ResumeDto `json:"resume"`
	Envelope Envelope  `json:"envelope"`
}

// PairingCache is the Scoring Engine's shared store pairing JdDto against
// ResumeDto arrivals keyed by jobId.
type PairingCache interface {
	PutJd(ctx Context, jd JdDto) error
	GetJd(ctx Context, jobID string) (JdDto, bool, error)
	EnqueuePendingResume(ctx Context, p PendingResume) error
	DrainPendingResumes(ctx Context, jobID string) ([]PendingResume, error)
	ExpiredPending(ctx Context, olderThan time.Duration) ([]PendingResume, error)
	RemovePendingResume(ctx Context, jobID, resumeID string) error
}

// ObjectStore is the content-addressed binary store for uploaded resumes.
type ObjectStore interface {
	Put(ctx Context, r ReadSeekCloser, contentType string) (RawFileRef, error)
	OpenRead(ctx Context, fileID string) (ReadSeekCloser, error)
	Stat(ctx Context, fileID string) (ObjectStat, error)
}

// ObjectStat describes a stored blob.
type ObjectStat struct {
	Size        int64
	ContentType string
	Checksum    string
}

// ReadSeekCloser is the minimal stream contract the object store deals in.
type ReadSeekCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// Bus is the durable subject-addressed publish/subscribe port every service
// depends on; see internal/bus for the Kafka/Redpanda-backed implementation.
type Bus interface {
	Publish(ctx Context, subject string, env Envelope) error
	Subscribe(ctx Context, subject, groupName string, handler HandlerFunc) error
	Close() error
}

// HandlerFunc processes one delivered Envelope. A non-nil error is classified
// by DeliveryInfo.ShouldRetry against the subscription's RetryConfig: errors
// matching a retryable pattern are redelivered up to MaxDeliveries, errors
// matching a permanent pattern route the envelope to the subject's DLQ at
// once, and any other error is redelivered for the first two attempts and
// dead-lettered on the third.
type HandlerFunc func(ctx Context, env Envelope) error

// AIClient abstracts the LLM vendor used for structured field extraction.
// Deterministic in mock mode (see internal/adapter/ai).
type AIClient interface {
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// TextExtractor extracts plain text from a file at path with the given
// original filename. Implementations may call external services (e.g.
// Tika) or use local libraries.
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}
