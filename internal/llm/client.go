// Package llm implements the chat-completion client used to answer
// questions from retrieved context.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/logger"
)

const (
	// DefaultModel is the completion model used when none is configured.
	DefaultModel = "gpt-3.5-turbo"

	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 20 * time.Second

	maxRetries      = 3
	maxRetryBackoff = 5 * time.Second
)

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Config configures the completion client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates a new completion client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the chat completion API.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	Choices []struct {
		FinishReason string      `json:"finish_reason"`
		Message      ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

// Complete implements core.Completer. Transient failures (429, 5xx, network
// errors) are retried with exponential backoff; other failures return
// immediately. All errors wrap core.ErrLLM.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	reqBody := ChatRequest{
		Model:       c.model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", core.ErrLLM, err)
	}

	logger.LLMInfo("Sending completion request to '%s' (max_tokens=%d, temperature=%.2f, prompt=%d chars)",
		c.model, maxTokens, temperature, len(prompt))

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = maxRetryBackoff

	operation := func() (string, error) {
		content, err := c.doRequest(ctx, jsonData)
		if err != nil {
			logger.LLMWarn("Completion request failed: %v", err)
		}
		return content, err
	}
	content, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
	if err != nil {
		return "", err
	}
	return content, nil
}

// doRequest performs one completion call. Non-retryable failures are wrapped
// with backoff.Permanent so the retry loop stops immediately.
func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: failed to create request: %v", core.ErrLLM, err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", core.ErrLLM, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", core.ErrLLM, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: API returned %s", core.ErrLLM, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", backoff.Permanent(fmt.Errorf("%w: API returned %s: %s", core.ErrLLM, resp.Status, string(payload)))
	}

	var out ChatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: failed to decode response: %v", core.ErrLLM, err))
	}
	if out.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: API error: %s", core.ErrLLM, out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("%w: API returned no choices", core.ErrLLM))
	}

	if out.Usage.TotalTokens > 0 {
		logger.LLMInfo("Completion usage - prompt: %d, completion: %d, total: %d tokens. Finish reason: %s",
			out.Usage.PromptTokens, out.Usage.CompletionTokens, out.Usage.TotalTokens, out.Choices[0].FinishReason)
	}
	return out.Choices[0].Message.Content, nil
}
