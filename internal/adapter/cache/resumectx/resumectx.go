// Package resumectx is the Report Generator's lookup store for resume
// snapshots: ScoreDto alone lacks the attained-education and matched-skill
// detail the report's ranking rules need, so C6 caches each ResumeDto it observes
// on analysis.resume.parsed, keyed by (jobId, resumeId), and reads it back
// when analysis.match.scored arrives.
package resumectx

import (
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

const keyPrefix = "resumectx:"

// Cache is a thin Redis-backed (jobId, resumeId) -> ResumeDto store.
type Cache struct {
	rdb *redis.Client
}

// New constructs a Cache against rdb.
func New(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

func key(jobID, resumeID string) string { return keyPrefix + jobID + ":" + resumeID }

// Put stores r, overwriting any prior snapshot for the same (jobId, resumeId).
func (c *Cache) Put(ctx domain.Context, r domain.ResumeDto) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("resumectx: marshal resume: %w", err)
	}
	if err := c.rdb.Set(ctx, key(r.JobID, r.ResumeID), b, 0).Err(); err != nil {
		return fmt.Errorf("resumectx: put resume: %w", err)
	}
	return nil
}

// Get looks up the cached ResumeDto for (jobID, resumeID). ok is false, nil
// error when absent.
func (c *Cache) Get(ctx domain.Context, jobID, resumeID string) (domain.ResumeDto, bool, error) {
	raw, err := c.rdb.Get(ctx, key(jobID, resumeID)).Bytes()
	if err == redis.Nil {
		return domain.ResumeDto{}, false, nil
	}
	if err != nil {
		return domain.ResumeDto{}, false, fmt.Errorf("resumectx: get resume: %w", err)
	}
	var r domain.ResumeDto
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.ResumeDto{}, false, fmt.Errorf("resumectx: unmarshal resume: %w", err)
	}
	return r, true, nil
}
