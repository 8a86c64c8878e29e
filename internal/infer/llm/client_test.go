package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/johndauphine/csv2pg/internal/config"
	"github.com/johndauphine/csv2pg/internal/infer"
)

func testInferenceConfig(baseURL string) config.InferenceConfig {
	return config.InferenceConfig{
		Provider:      "gemini",
		Model:         "gemini-1.5-pro",
		APIKey:        "test-key",
		BaseURL:       baseURL,
		TimeoutSecs:   5,
		RetryAttempts: 2,
		// zero delay keeps retry tests fast
		RetryDelaySecs: 0,
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.InferenceConfig)
	}{
		{"missing api key", func(c *config.InferenceConfig) { c.APIKey = "" }},
		{"missing model", func(c *config.InferenceConfig) { c.Model = "" }},
		{"unknown provider", func(c *config.InferenceConfig) { c.Provider = "cohere" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testInferenceConfig("")
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New accepted an invalid config")
			}
		})
	}
}

func TestNewSupportedProviders(t *testing.T) {
	for _, provider := range []string{"gemini", "claude", "openai"} {
		cfg := testInferenceConfig("")
		cfg.Provider = provider
		c, err := New(cfg)
		if err != nil {
			t.Fatalf("New(%s): %v", provider, err)
		}
		if c.ProviderName() != provider {
			t.Errorf("ProviderName() = %q, want %q", c.ProviderName(), provider)
		}
	}
}

func geminiBody(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

const validChunkJSON = `[
	{"column_name": "id", "postgresql_type": "integer", "confidence": "high", "nullable": false},
	{"column_name": "name", "postgresql_type": "text", "confidence": "medium"}
]`

// newGeminiClientFor points the client at a local test server.
func newGeminiClientFor(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(testInferenceConfig(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestInferChunkRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	c := newGeminiClientFor(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
			return
		}
		fmt.Fprint(w, geminiBody(validChunkJSON))
	})

	types, err := c.InferChunk(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("InferChunk: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("len(types) = %d, want 2", len(types))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestInferChunkPermanentErrorNoRetry(t *testing.T) {
	var calls atomic.Int64
	c := newGeminiClientFor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid request"}}`)
	})

	_, err := c.InferChunk(context.Background(), testChunk())
	var provErr *infer.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want *infer.ProviderError", err)
	}
	if provErr.Transient {
		t.Error("4xx client error classified as transient")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", calls.Load())
	}
}

func TestInferChunkInvalidResponseExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	c := newGeminiClientFor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// valid HTTP response, useless payload
		fmt.Fprint(w, geminiBody("the first column looks numeric to me"))
	})

	_, err := c.InferChunk(context.Background(), testChunk())
	var provErr *infer.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want *infer.ProviderError", err)
	}
	if provErr.Transient {
		t.Error("exhausted invalid responses should be permanent")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", got)
	}
}

func TestInferChunkRejectsIncompleteCoverage(t *testing.T) {
	c := newGeminiClientFor(t, func(w http.ResponseWriter, r *http.Request) {
		// only one of the chunk's two columns
		fmt.Fprint(w, geminiBody(`[{"column_name": "id", "postgresql_type": "integer", "confidence": "high"}]`))
	})

	if _, err := c.InferChunk(context.Background(), testChunk()); err == nil {
		t.Fatal("accepted a response missing a column")
	}
}

func TestInferChunkHonorsCancellation(t *testing.T) {
	c := newGeminiClientFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.InferChunk(ctx, testChunk())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStatusCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"openai api error", &openai.APIError{HTTPStatusCode: 503}, 503},
		{"openai request error", &openai.RequestError{HTTPStatusCode: 429}, 429},
		{"anthropic overloaded", &anthropic.APIError{Type: anthropic.ErrTypeOverloaded}, 429},
		{"anthropic rate limit", &anthropic.APIError{Type: anthropic.ErrTypeRateLimit}, 429},
		{"anthropic server error", &anthropic.APIError{Type: anthropic.ErrTypeApi}, 500},
		{"anthropic invalid request", &anthropic.APIError{Type: anthropic.ErrTypeInvalidRequest}, 0},
		{"gemini error", &geminiError{StatusCode: 502}, 502},
		{"wrapped gemini error", fmt.Errorf("chunk 3: %w", &geminiError{StatusCode: 500}), 500},
		{"plain error", errors.New("boom"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusCodeOf(tt.err); got != tt.want {
				t.Errorf("statusCodeOf() = %d, want %d", got, tt.want)
			}
		})
	}
}
