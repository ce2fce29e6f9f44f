package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
)

// chatMessage is the wire shape of one chat-completions message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("generator: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Config holds settings for the OpenAI-compatible client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxAttempts  int
}

// OpenAIClient is a chat-completions client with a bounded retry
// budget: rate limits and timeouts are retried with exponential
// backoff, any other API failure propagates immediately.
type OpenAIClient struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an OpenAIClient.
type Option func(*OpenAIClient)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenAIClient) {
		c.httpClient = hc
	}
}

// NewOpenAIClient creates a generator client.
func NewOpenAIClient(cfg Config, opts ...Option) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generator: API key must not be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("generator: model must not be empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	c := &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate maps the history onto the chat-completions vocabulary and
// requests a reply, retrying transient failures within the attempt
// budget.
func (c *OpenAIClient) Generate(ctx context.Context, entries []domain.ContextEntry) (string, error) {
	messages := c.buildMessages(entries)

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s...
			wait := time.Duration(1<<(attempt-1)) * time.Second
			slog.Warn("Retrying reply generation", "attempt", attempt+1, "wait", wait, "error", lastErr)
			if err := c.sleep(ctx, wait); err != nil {
				return "", err
			}
		}

		reply, err := c.complete(ctx, messages)
		if err == nil {
			return reply, nil
		}
		if !isTransient(err) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("generator: request failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// buildMessages converts the closed Role set to the generator's
// vocabulary: a leading system message carries the configured prompt,
// knowledge-derived system entries follow it, and user/assistant
// entries map one-to-one.
func (c *OpenAIClient) buildMessages(entries []domain.ContextEntry) []chatMessage {
	messages := make([]chatMessage, 0, len(entries)+1)
	messages = append(messages, chatMessage{Role: "system", Content: c.cfg.SystemPrompt})

	for _, entry := range entries {
		role := "user"
		switch entry.Role {
		case domain.RoleSystem:
			role = "system"
		case domain.RoleAssistant:
			role = "assistant"
		case domain.RoleUser:
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: entry.Message})
	}
	return messages
}

func (c *OpenAIClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("generator: marshal request: %w", err)
	}

	endpoint := chatURL(c.cfg.BaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("generator: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generator: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("generator: read response body: %w", err)
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("generator: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("generator: no choices in response")
	}
	return payload.Choices[0].Message.Content, nil
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// isTransient reports whether the failure is worth another attempt:
// rate limiting and timeouts are, anything else is permanent.
func isTransient(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
