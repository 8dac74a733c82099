// Package real implements domain.AIClient against a real, OpenAI-compatible
// chat-completions vendor. It is intentionally narrow: the pipeline only
// ever needs one structured-extraction call per document, never
// embeddings, streaming, or multi-model fallback, so this client exposes
// exactly ChatJSON.
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/ai"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
	"github.com/fairyhunter13/recruiter-pipeline/internal/service/ratelimiter"
)

// Client calls a single configured OpenAI-compatible chat-completions
// endpoint. Requests are guarded by a circuit breaker keyed by model and an
// optional distributed Limiter (shared across worker processes, see
// internal/service/ratelimiter) to stay under the vendor's rate limit.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	breaker    *ai.CircuitBreaker
	limiter    ratelimiter.Limiter
	tokens     *tokencount.Counter
}

var _ domain.AIClient = (*Client)(nil)

// New constructs a Client with no distributed rate limiter (single-process
// throttling via the circuit breaker only).
func New(cfg config.Config) *Client { return NewWithLimiter(cfg, nil) }

// NewWithLimiter constructs a Client sharing lim across worker processes to
// bound aggregate QPS against the vendor.
func NewWithLimiter(cfg config.Config, lim ratelimiter.Limiter) *Client {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		cfg: cfg,
		// otelhttp wraps the transport so every vendor round trip emits a
		// client span linked to the handler's trace.
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: ai.NewCircuitBreaker(cfg.LLMModel),
		limiter: lim,
		tokens:  tokencount.NewCounter(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ChatJSON sends systemPrompt/userPrompt as a two-message chat completion
// request and returns the assistant's raw content, expected by the caller to
// be parseable JSON. Retried in-process up to cfg.LLMRetries times (2 when
// that is zero or negative) before surfacing a domain.ErrUpstreamTimeout/domain.ErrUpstreamRateLimit
// the caller classifies as transient.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if !c.breaker.ShouldAttempt() {
		return "", fmt.Errorf("%w: circuit open for model %s", domain.ErrUpstreamTimeout, c.cfg.LLMModel)
	}
	if c.limiter != nil {
		allowed, retryAfter, err := c.limiter.Allow(ctx, "llm:"+c.cfg.LLMModel, 1)
		if err != nil {
			slog.Warn("ai real client: rate limiter error, proceeding without throttle", slog.Any("error", err))
		} else if !allowed {
			return "", fmt.Errorf("%w: rate limiter denied, retry after %s", domain.ErrUpstreamRateLimit, retryAfter)
		}
	}

	retries := c.cfg.LLMRetries
	if retries <= 0 {
		retries = 2
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	policy := backoff.WithMaxRetries(expo, uint64(retries))

	var result string
	op := func() error {
		content, permanent, err := c.doChat(ctx, systemPrompt, userPrompt, maxTokens)
		if err != nil {
			if permanent {
				return backoff.Permanent(err)
			}
			return err
		}
		result = content
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		c.breaker.RecordFailure()
		return "", err
	}
	c.breaker.RecordSuccess()
	return result, nil
}

// doChat performs one HTTP attempt. permanent=true tells the retry loop not
// to retry (schema/auth failures); permanent=false lets backoff retry
// (timeouts, 5xx, 429).
func (c *Client) doChat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (content string, permanent bool, err error) {
	reqBody := chatRequest{
		Model: c.cfg.LLMModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: maxTokens,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", true, fmt.Errorf("ai real client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.LLMBaseURL, "/")+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", true, fmt.Errorf("ai real client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("%w: ai real client: request: %v", domain.ErrUpstreamTimeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, fmt.Errorf("%w: ai real client: read response: %v", domain.ErrUpstreamTimeout, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", false, fmt.Errorf("%w: ai vendor rate limited (429)", domain.ErrUpstreamRateLimit)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", true, fmt.Errorf("%w: ai vendor auth failed (%d)", domain.ErrInvalidArgument, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", false, fmt.Errorf("%w: ai vendor server error (%d): %s", domain.ErrUpstreamTimeout, resp.StatusCode, snippet(body))
	case resp.StatusCode >= 400:
		return "", true, fmt.Errorf("%w: ai vendor rejected request (%d): %s", domain.ErrInvalidArgument, resp.StatusCode, snippet(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("%w: ai real client: decode response: %v", domain.ErrUpstreamTimeout, err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", false, fmt.Errorf("%w: ai vendor returned empty content", domain.ErrUpstreamTimeout)
	}

	content = parsed.Choices[0].Message.Content
	usage := tokencount.Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Model:            c.cfg.LLMModel,
	}
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		// Some vendors omit usage; count locally so metrics stay meaningful.
		usage = c.tokens.CalculateUsage(systemPrompt, userPrompt, content, c.cfg.LLMModel)
	}
	c.recordTokenUsage(usage)
	return content, false, nil
}

func snippet(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}

func (c *Client) recordTokenUsage(u tokencount.Usage) {
	observability.RecordAITokenUsage("openai-compatible", "prompt", u.Model, u.PromptTokens)
	observability.RecordAITokenUsage("openai-compatible", "completion", u.Model, u.CompletionTokens)
	slog.Debug("ai real client: token usage", slog.String("model", u.Model),
		slog.Int("prompt_tokens", u.PromptTokens), slog.Int("completion_tokens", u.CompletionTokens))
}

var estimator = tokencount.NewCounter()

// EstimateTokens counts text's tokens with the cl100k_base encoding, used by
// callers to budget maxTokens before issuing a request.
func EstimateTokens(text string) int {
	n, err := estimator.CountTokens(text, "gpt-4")
	if err != nil {
		// Fallback: ~4 chars/token is the commonly cited rule of thumb.
		return len(text) / 4
	}
	return n
}
