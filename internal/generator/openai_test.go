package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAIClient(Config{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		Model:        "test-model",
		SystemPrompt: "You are a friendly support bot.",
		MaxAttempts:  3,
	})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func completionResponse(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + jsonString(content) + `}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(completionResponse("Happy to help!")))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	reply, err := c.Generate(context.Background(), []domain.ContextEntry{
		{Role: domain.RoleSystem, Message: "Opening hours: 9-5"},
		{Role: domain.RoleUser, Message: "When are you open?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Happy to help!", reply)

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, chatMessage{Role: "system", Content: "You are a friendly support bot."}, captured.Messages[0])
	assert.Equal(t, chatMessage{Role: "system", Content: "Opening hours: 9-5"}, captured.Messages[1])
	assert.Equal(t, chatMessage{Role: "user", Content: "When are you open?"}, captured.Messages[2])
	assert.Equal(t, "test-model", captured.Model)
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		_, _ = w.Write([]byte(completionResponse("Finally.")))
	}))
	defer srv.Close()

	var waits []time.Duration
	c := testClient(t, srv.URL)
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	reply, err := c.Generate(context.Background(), []domain.ContextEntry{
		{Role: domain.RoleUser, Message: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Finally.", reply)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestGenerateExhaustsAttemptBudget(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Generate(context.Background(), []domain.ContextEntry{
		{Role: domain.RoleUser, Message: "hi"},
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestGenerateDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Generate(context.Background(), []domain.ContextEntry{
		{Role: domain.RoleUser, Message: "hi"},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestNewOpenAIClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIClient(Config{Model: "m"})
	assert.Error(t, err)

	_, err = NewOpenAIClient(Config{APIKey: "k"})
	assert.Error(t, err)
}

func TestChatURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", chatURL("https://api.openai.com/v1"))
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", chatURL("https://api.openai.com/v1/"))
	assert.Equal(t, "http://localhost:8080/v1/chat/completions", chatURL("http://localhost:8080"))
}
