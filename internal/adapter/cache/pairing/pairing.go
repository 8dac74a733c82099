// Package pairing implements the Scoring Engine's shared pairing cache
// (domain.PairingCache): a jobId -> {jd, pendingResumes}
// store backed by Redis so it survives worker restarts. Values are
// idempotent, so concurrent writers racing on the same jobId are safe with
// last-writer-wins — no cross-process locking is needed.
package pairing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

const (
	jdKeyPrefix      = "pairing:jd:"
	pendingKeyPrefix = "pairing:pending:" // hash: resumeId -> pendingEntry JSON
	pendingIndexKey  = "pairing:pending:index" // zset: score=arrivedAt unix, member="jobId|resumeId"
)

// Cache is the Redis-backed domain.PairingCache implementation.
type Cache struct {
	rdb *redis.Client
}

// New constructs a Cache against rdb.
func New(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

var _ domain.PairingCache = (*Cache)(nil)

type pendingEntry struct {
	Resume    domain.ResumeDto `json:"resume"`
	Envelope  domain.Envelope  `json:"envelope"`
	ArrivedAt time.Time        `json:"arrivedAt"`
}

func jdKey(jobID string) string      { return jdKeyPrefix + jobID }
func pendingKey(jobID string) string { return pendingKeyPrefix + jobID }
func indexMember(jobID, resumeID string) string { return jobID + "|" + resumeID }

// PutJd stores jd for jd.JobID, overwriting any prior value. No TTL: a JD
// must remain available indefinitely for resumes that arrive later.
func (c *Cache) PutJd(ctx domain.Context, jd domain.JdDto) error {
	b, err := json.Marshal(jd)
	if err != nil {
		return fmt.Errorf("pairing: marshal jd: %w", err)
	}
	if err := c.rdb.Set(ctx, jdKey(jd.JobID), b, 0).Err(); err != nil {
		return fmt.Errorf("pairing: put jd: %w", err)
	}
	return nil
}

// GetJd looks up the JdDto for jobID. ok is false, nil error when absent.
func (c *Cache) GetJd(ctx domain.Context, jobID string) (domain.JdDto, bool, error) {
	raw, err := c.rdb.Get(ctx, jdKey(jobID)).Bytes()
	if err == redis.Nil {
		return domain.JdDto{}, false, nil
	}
	if err != nil {
		return domain.JdDto{}, false, fmt.Errorf("pairing: get jd: %w", err)
	}
	var jd domain.JdDto
	if err := json.Unmarshal(raw, &jd); err != nil {
		return domain.JdDto{}, false, fmt.Errorf("pairing: unmarshal jd: %w", err)
	}
	return jd, true, nil
}

// EnqueuePendingResume buffers p, keyed by (jobId, resumeId) so a
// redelivered "resume parsed" event overwrites its own entry rather than
// duplicating it in the pending queue. The delivering envelope is stored
// alongside the resume so a TTL dead-letter keeps the original messageId.
func (c *Cache) EnqueuePendingResume(ctx domain.Context, p domain.PendingResume) error {
	entry := pendingEntry{Resume: p.Resume, Envelope: p.Envelope, ArrivedAt: time.Now().UTC()}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("pairing: marshal pending resume: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, pendingKey(p.Resume.JobID), p.Resume.ResumeID, b)
	pipe.ZAdd(ctx, pendingIndexKey, redis.Z{
		Score:  float64(entry.ArrivedAt.Unix()),
		Member: indexMember(p.Resume.JobID, p.Resume.ResumeID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pairing: enqueue pending resume: %w", err)
	}
	return nil
}

// DrainPendingResumes returns and removes every resume buffered for jobID,
// called once a JdDto arrives.
func (c *Cache) DrainPendingResumes(ctx domain.Context, jobID string) ([]domain.PendingResume, error) {
	raw, err := c.rdb.HGetAll(ctx, pendingKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("pairing: drain pending resumes: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	out := make([]domain.PendingResume, 0, len(raw))
	pipe := c.rdb.TxPipeline()
	for resumeID, v := range raw {
		var entry pendingEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue
		}
		out = append(out, domain.PendingResume{Resume: entry.Resume, Envelope: entry.Envelope})
		pipe.ZRem(ctx, pendingIndexKey, indexMember(jobID, resumeID))
	}
	pipe.Del(ctx, pendingKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("pairing: clear drained pending resumes: %w", err)
	}
	return out, nil
}

// ExpiredPending returns every pending resume older than olderThan,
// regardless of jobId, for the caller to route to the DLQ.
func (c *Cache) ExpiredPending(ctx domain.Context, olderThan time.Duration) ([]domain.PendingResume, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Unix()
	members, err := c.rdb.ZRangeByScore(ctx, pendingIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("pairing: scan expired pending: %w", err)
	}

	out := make([]domain.PendingResume, 0, len(members))
	for _, member := range members {
		jobID, resumeID, ok := splitIndexMember(member)
		if !ok {
			continue
		}
		v, err := c.rdb.HGet(ctx, pendingKey(jobID), resumeID).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pairing: read expired pending entry: %w", err)
		}
		var entry pendingEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			continue
		}
		out = append(out, domain.PendingResume{Resume: entry.Resume, Envelope: entry.Envelope})
	}
	return out, nil
}

// RemovePendingResume deletes one buffered resume, e.g. after it has been
// routed to the DLQ for exceeding pairingTtl.
func (c *Cache) RemovePendingResume(ctx domain.Context, jobID, resumeID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.HDel(ctx, pendingKey(jobID), resumeID)
	pipe.ZRem(ctx, pendingIndexKey, indexMember(jobID, resumeID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pairing: remove pending resume: %w", err)
	}
	return nil
}

func splitIndexMember(member string) (jobID, resumeID string, ok bool) {
	for i := 0; i < len(member); i++ {
		if member[i] == '|' {
			return member[:i], member[i+1:], true
		}
	}
	return "", "", false
}
