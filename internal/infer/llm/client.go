// Package llm implements the oracle-backed inference provider. It sends a
// chunk's columns and sampled values to an LLM and validates the typed
// response against the chunk and the known type vocabulary. Transient
// failures are retried with exponential backoff; everything else fails the
// chunk permanently so the orchestrator can degrade it to the heuristic.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/johndauphine/csv2pg/internal/config"
	"github.com/johndauphine/csv2pg/internal/infer"
	"github.com/johndauphine/csv2pg/internal/logging"
	"github.com/johndauphine/csv2pg/internal/schema"
)

// Client is an infer.Provider backed by an LLM API.
type Client struct {
	providerName  string
	model         string
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration

	gemini    *geminiClient
	claude    *anthropic.Client
	openaiCli *openai.Client
}

// New builds a client for the configured provider. Cloud providers require
// an API key from the environment.
func New(cfg config.InferenceConfig) (*Client, error) {
	name := strings.ToLower(cfg.Provider)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %q requires an API key", name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("no model specified for provider %q", name)
	}

	c := &Client{
		providerName:  name,
		model:         cfg.Model,
		timeout:       time.Duration(cfg.TimeoutSecs) * time.Second,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    time.Duration(cfg.RetryDelaySecs) * time.Second,
	}

	switch name {
	case "gemini":
		c.gemini = newGeminiClient(cfg.APIKey, cfg.BaseURL, c.timeout)
	case "claude":
		c.claude = anthropic.NewClient(cfg.APIKey)
	case "openai":
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		c.openaiCli = openai.NewClientWithConfig(oc)
	default:
		return nil, fmt.Errorf("unsupported inference provider: %s", name)
	}

	return c, nil
}

// ProviderName returns the configured provider name.
func (c *Client) ProviderName() string { return c.providerName }

// InferChunk asks the LLM for per-column types, retrying transient failures
// with exponential backoff. Invalid responses consume the same retry budget;
// once exhausted the chunk fails permanently.
func (c *Client) InferChunk(ctx context.Context, chunk schema.ColumnChunk) ([]schema.InferredType, error) {
	prompt := buildPrompt(chunk)

	var lastErr error
	lastTransient := false

	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			delay := calculateBackoff(attempt-1, c.retryDelay)
			logging.Debug("chunk %d: retrying in %v (attempt %d/%d)",
				chunk.ID, delay, attempt+1, c.retryAttempts+1)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		raw, err := c.complete(ctx, prompt)
		if err != nil {
			transient := isRetryableError(err, statusCodeOf(err))
			lastErr, lastTransient = err, transient
			if !transient {
				return nil, &infer.ProviderError{
					Provider: c.providerName, ChunkID: chunk.ID, Transient: false, Err: err,
				}
			}
			logging.Debug("chunk %d: transient provider error (attempt %d/%d): %v",
				chunk.ID, attempt+1, c.retryAttempts+1, err)
			continue
		}

		types, err := parseResponse(raw, chunk)
		if err == nil {
			err = infer.ValidateChunkResult(chunk, types)
		}
		if err != nil {
			// The model may produce a valid payload on the next attempt.
			lastErr, lastTransient = fmt.Errorf("invalid response: %w", err), false
			logging.Debug("chunk %d: invalid response (attempt %d/%d): %v",
				chunk.ID, attempt+1, c.retryAttempts+1, err)
			continue
		}

		return types, nil
	}

	return nil, &infer.ProviderError{
		Provider:  c.providerName,
		ChunkID:   chunk.ID,
		Transient: lastTransient,
		Err:       fmt.Errorf("after %d attempts: %w", c.retryAttempts+1, lastErr),
	}
}

// complete performs one completion call against the configured provider.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch c.providerName {
	case "gemini":
		return c.gemini.generate(callCtx, c.model, prompt)
	case "claude":
		return c.completeClaude(callCtx, prompt)
	case "openai":
		return c.completeOpenAI(callCtx, prompt)
	}
	return "", fmt.Errorf("unsupported inference provider: %s", c.providerName)
}

const systemMessage = "You are a PostgreSQL database schema expert. Respond only with the requested JSON, no explanation."

func (c *Client) completeClaude(ctx context.Context, prompt string) (string, error) {
	resp, err := c.claude.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		System:    systemMessage,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from API")
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string) (string, error) {
	resp, err := c.openaiCli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

// statusCodeOf extracts an HTTP status from SDK error types when available.
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var anthErr *anthropic.APIError
	if errors.As(err, &anthErr) {
		switch anthErr.Type {
		case anthropic.ErrTypeOverloaded, anthropic.ErrTypeRateLimit:
			return 429
		case anthropic.ErrTypeApi:
			return 500
		}
	}
	var gemErr *geminiError
	if errors.As(err, &gemErr) {
		return gemErr.StatusCode
	}
	return 0
}
