package real_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/ai/real"
	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

func chatServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func baseCfg(url string) config.Config {
	return config.Config{
		LLMAPIKey:  "test-key",
		LLMBaseURL: url,
		LLMModel:   "test-model",
		LLMTimeout: 2 * time.Second,
		LLMRetries: 1,
	}
}

func TestClient_ChatJSON_Success(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`)
	defer srv.Close()

	c := real.New(baseCfg(srv.URL))
	out, err := c.ChatJSON(context.Background(), "sys", "user", 100)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, true, parsed["ok"])
}

func TestClient_ChatJSON_AuthFailureIsPermanent(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, `{"error":"bad key"}`)
	defer srv.Close()

	c := real.New(baseCfg(srv.URL))
	_, err := c.ChatJSON(context.Background(), "sys", "user", 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestClient_ChatJSON_RateLimited(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, `{}`)
	defer srv.Close()

	cfg := baseCfg(srv.URL)
	cfg.LLMRetries = 0
	c := real.New(cfg)
	_, err := c.ChatJSON(context.Background(), "sys", "user", 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
}

func TestClient_ChatJSON_ServerErrorRetriesThenFails(t *testing.T) {
	srv := chatServer(t, http.StatusInternalServerError, `oops`)
	defer srv.Close()

	cfg := baseCfg(srv.URL)
	cfg.LLMRetries = 1
	c := real.New(cfg)
	_, err := c.ChatJSON(context.Background(), "sys", "user", 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestEstimateTokens(t *testing.T) {
	n := real.EstimateTokens("hello world, this is a test sentence")
	assert.Greater(t, n, 0)
}
