// Package ai defines the LLM vendor port used for structured field
// extraction (domain.AIClient) plus a deterministic mock implementation
// used whenever no real vendor key is configured.
package ai

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// MockClient implements domain.AIClient deterministically: identical prompts
// always produce identical output, so extraction results are reproducible
// in tests and in local dev without a vendor key.
type MockClient struct{}

// NewMockClient constructs a deterministic mock AI client.
func NewMockClient() domain.AIClient { return &MockClient{} }

// ChatJSON inspects systemPrompt to decide whether this is a job-description
// or a resume extraction call (internal/service/jdextractor and
// internal/service/resumeparser use distinguishable system prompts), then
// returns deterministic JSON matching the DTO fields that caller expects.
func (m *MockClient) ChatJSON(_ domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	var payload any
	if strings.Contains(systemPrompt, "job description") {
		payload = mockJdExtraction(userPrompt)
	} else {
		payload = mockResumeExtraction(userPrompt)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("mock chat json: marshal: %w", err)
	}
	s := string(b)
	if maxTokens > 0 && len(s) > maxTokens*4 {
		s = s[:maxTokens*4]
	}
	return s, nil
}

func mockJdExtraction(text string) map[string]any {
	h := hashToFloat(text)
	skillPool := []string{"go", "kubernetes", "sql", "kafka", "python", "leadership"}
	nSkills := 2 + int(h*300)%3
	skills := make([]map[string]any, 0, nSkills)
	for i := 0; i < nSkills; i++ {
		skills = append(skills, map[string]any{
			"name":      skillPool[i%len(skillPool)],
			"weight":    round2(0.2 + 0.15*float64(i)),
			"mandatory": i == 0,
		})
	}
	minYears := 2 + int(h*500)%4
	return map[string]any{
		"jobTitle": firstLine(text, "Extracted Role"),
		"requiredSkills": skills,
		"experienceYears": map[string]any{
			"min": minYears,
			"max": minYears + 5,
		},
		"educationLevel": []string{"bachelor", "master", "any"}[int(h*1000)%3],
		"softSkills":     []string{"communication", "leadership"},
	}
}

func mockResumeExtraction(text string) map[string]any {
	h := hashToFloat(text)
	skillPool := []string{"go", "kubernetes", "sql", "kafka", "python", "linux"}
	nSkills := 2 + int(h*400)%4
	skills := make([]string, 0, nSkills)
	for i := 0; i < nSkills; i++ {
		skills = append(skills, skillPool[i%len(skillPool)])
	}

	now := time.Now().UTC()
	start := now.AddDate(-(2 + int(h*600)%6), 0, 0)
	return map[string]any{
		"contactInfo": map[string]any{
			"name":  firstLine(text, "Candidate"),
			"email": "",
			"phone": "",
		},
		"skills": skills,
		"workExperience": []map[string]any{
			{
				"company":     "Prior Co",
				"title":       "Engineer",
				"startDate":   start.Format("2006-01-02"),
				"endDate":     nil,
				"description": short(text, 120),
			},
		},
		"education": []map[string]any{
			{"institution": "State University", "level": []string{"bachelor", "master"}[int(h*1000)%2], "field": "Computer Science"},
		},
		"softSkills": []string{"communication", "mentoring"},
	}
}

func firstLine(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

func short(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// hashToFloat deterministically maps s to a float in [0,1) via SHA-1.
func hashToFloat(s string) float64 {
	sum := sha1.Sum([]byte(s))
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(math.MaxUint64)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
