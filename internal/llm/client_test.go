package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/backend/pkg/apperrors"
)

func openAIServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOpenAI(srv *httptest.Server) Completer {
	c, _ := NewCompleter(Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		Temperature: 0.7,
		MaxTokens:   1000,
		Timeout:     2 * time.Second,
	})
	return c
}

func TestOpenAI_Complete(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.InDelta(t, 0.7, body["temperature"], 0.001)
		assert.EqualValues(t, 1000, body["max_tokens"])

		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "What is my revenue?", messages[1].(map[string]any)["content"])

		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "I don't have that data yet."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 8, "total_tokens": 128}
		}`))
	})

	resp, err := newOpenAI(srv).Complete(context.Background(), CompletionRequest{
		SystemPrompt: "You are a data analyst.",
		UserPrompt:   "What is my revenue?",
	})
	require.NoError(t, err)
	assert.Equal(t, "I don't have that data yet.", resp.Content)
	assert.Equal(t, 128, resp.Usage.TotalTokens)
}

func TestOpenAI_EmptyChoicesIsExternalError(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Write([]byte(`{"id": "x", "object": "chat.completion", "choices": [], "usage": {}}`))
	})

	_, err := newOpenAI(srv).Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAI_EmptyContentIsExternalError(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Write([]byte(`{
			"id": "x",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": ""}, "finish_reason": "stop"}],
			"usage": {}
		}`))
	})

	_, err := newOpenAI(srv).Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAI_ProviderErrorIsExternalError(t *testing.T) {
	calls := 0
	srv := openAIServer(t, func(w http.ResponseWriter, _ map[string]any) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	})

	_, err := newOpenAI(srv).Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Equal(t, 1, calls, "no automatic retry")
}

func TestOpenAI_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	srv := openAIServer(t, func(w http.ResponseWriter, _ map[string]any) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": {"message": "upstream down"}}`))
	})

	c := newOpenAI(srv)
	for i := 0; i < 8; i++ {
		_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
		assert.ErrorIs(t, err, apperrors.ErrExternalService)
	}
	assert.Equal(t, 5, calls)
}

func TestOpenAI_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewCompleter(Config{Provider: "openai", Model: "m", APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnthropic_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "grounded system prompt", body["system"])
		assert.EqualValues(t, 256, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "  Connect a data source first.  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 50, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	c, err := NewCompleter(Config{
		Provider:  "anthropic",
		Model:     "claude-3-5-haiku-latest",
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1",
		MaxTokens: 1000,
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", c.Model())

	resp, err := c.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "grounded system prompt",
		UserPrompt:   "hello",
		MaxTokens:    256,
	})
	require.NoError(t, err)
	assert.Equal(t, "Connect a data source first.", resp.Content)
	assert.Equal(t, 56, resp.Usage.TotalTokens)
}

func TestNewCompleter_UnknownProvider(t *testing.T) {
	_, err := NewCompleter(Config{Provider: "cohere"})
	assert.Error(t, err)
}
