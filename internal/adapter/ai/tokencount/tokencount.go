// Package tokencount counts tokens for LLM requests so callers can budget
// maxTokens before issuing a call and attribute usage afterwards.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// Offline BPE loader: avoids downloading encoding files at runtime, which
	// would otherwise fail in network-restricted worker containers.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Usage is the token accounting for one chat completion.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}

// Counter is a thread-safe token counter with a per-model encoding cache.
type Counter struct {
	mu            sync.RWMutex
	encodingCache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a Counter.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		// cl100k_base covers GPT-4, GPT-3.5-turbo and is a fair approximation
		// for everything else this pipeline is pointed at.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName maps vendor model IDs (possibly provider-prefixed, e.g.
// "openai/gpt-4o-mini") to tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// CountTokens counts text's tokens under model's encoding.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts the prompt tokens of a two-message chat request,
// including the per-message framing overhead OpenAI-compatible APIs charge.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.encodingForModel(model)
	if err != nil {
		return 0, err
	}

	// 3 tokens per message plus 1 for the role, plus the 3-token assistant
	// reply priming, per the OpenAI cookbook's counting recipe.
	const tokensPerMessage, tokensPerRole, replyPriming = 3, 1, 3

	n := replyPriming
	for _, m := range []struct{ role, content string }{
		{"system", systemPrompt},
		{"user", userPrompt},
	} {
		n += tokensPerMessage + tokensPerRole
		n += len(enc.Encode(m.role, nil, nil))
		n += len(enc.Encode(m.content, nil, nil))
	}
	return n, nil
}

// CalculateUsage accounts a full request/response pair, falling back to the
// ~4 chars/token estimate when an encoding is unavailable.
func (c *Counter) CalculateUsage(systemPrompt, userPrompt, completion, model string) Usage {
	promptTokens, err := c.CountChatTokens(systemPrompt, userPrompt, model)
	if err != nil {
		slog.Warn("tokencount: prompt count failed, estimating",
			slog.String("model", model), slog.Any("error", err))
		promptTokens = (len(systemPrompt) + len(userPrompt)) / 4
	}
	completionTokens, err := c.CountTokens(completion, model)
	if err != nil {
		completionTokens = len(completion) / 4
	}
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Model:            model,
	}
}
