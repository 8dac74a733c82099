// Package app wires the dependency graph shared by every cmd/ entrypoint:
// the object store, Redis client, AI client and message bus construction
// logic that would otherwise be duplicated across five worker binaries and
// the HTTP admission server.
package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/ai"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/ai/real"
	"github.com/fairyhunter13/recruiter-pipeline/internal/bus"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/internal/objectstore"
	"github.com/fairyhunter13/recruiter-pipeline/internal/service/ratelimiter"
)

// BuildObjectStore selects the S3-compatible or filesystem object store
// backend from cfg.ObjectStoreURL.
func BuildObjectStore(ctx domain.Context, cfg config.Config) (domain.ObjectStore, error) {
	raw := cfg.ObjectStoreURL
	if raw == "" {
		raw = "file://./data/objects"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("app: parse object store url: %w", err)
	}

	switch u.Scheme {
	case "s3", "https":
		bucket := strings.TrimPrefix(u.Path, "/")
		if u.Scheme == "s3" {
			bucket = u.Host
		}
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Endpoint:     endpointFor(u),
			Bucket:       bucket,
			Region:       cfg.ObjectStoreRegion,
			AccessKey:    cfg.ObjectStoreS3Key,
			SecretKey:    cfg.ObjectStoreS3Sec,
			UsePathStyle: u.Scheme == "https",
		})
	default:
		dir := strings.TrimPrefix(raw, "file://")
		if dir == "" {
			dir = "./data/objects"
		}
		return objectstore.NewFileStore(dir)
	}
}

func endpointFor(u *url.URL) string {
	if u.Scheme == "s3" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// BuildRedis constructs the shared Redis client backing the pairing and
// resumectx caches and the LLM vendor rate limiter (cfg.RedisURL).
func BuildRedis(cfg config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// BuildAIClient returns the deterministic mock client when no real vendor
// key is configured (cfg.LLMConfigured), else the real OpenAI-compatible
// client, optionally rate-limited by rdb.
func BuildAIClient(cfg config.Config, rdb *redis.Client) domain.AIClient {
	if !cfg.LLMConfigured() {
		return ai.NewMockClient()
	}
	if rdb == nil {
		return real.New(cfg)
	}
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		"llm:" + cfg.LLMModel: ratelimiter.NewBucketConfigFromPerMinute(60),
	})
	return real.NewWithLimiter(cfg, limiter)
}

// BuildBus constructs the shared message bus with a transactional producer
// ID unique to the calling process (cfg.BusURL). defaultWorkers is the
// caller's per-subject pool default, overridden by WORKER_CONCURRENCY; handlerTimeout is the caller's
// per-subject handler deadline (90s parsing, 30s others).
func BuildBus(cfg config.Config, transactionalID string, defaultWorkers int, handlerTimeout time.Duration) (*bus.Bus, error) {
	return bus.New(bus.Config{
		Brokers:         splitBrokers(cfg.BusURL),
		TransactionalID: transactionalID,
		Retry:           cfg.BusRetryConfig(),
		MaxWorkers:      cfg.WorkerConcurrencyOr(defaultWorkers),
		HandlerTimeout:  handlerTimeout,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	})
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PairingTTL returns cfg.PairingTTLHours as a duration, defaulting to 24h.
func PairingTTL(cfg config.Config) time.Duration {
	if cfg.PairingTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(cfg.PairingTTLHours) * time.Hour
}
