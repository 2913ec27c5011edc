package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentrelay/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProvider_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"is_multi_step\": false}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := New(providers.Config{APIKey: "sk-test", BaseURL: srv.URL, Temperature: 0.1}, zap.NewNop())
	require.True(t, p.Available())

	out, err := p.Complete(context.Background(), "analyze this", true)
	require.NoError(t, err)
	assert.Equal(t, `{"is_multi_step": false}`, out)

	assert.Equal(t, "gpt-4o", body["model"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	msgs := body["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom"}}`))
	}))
	defer srv.Close()

	p := New(providers.Config{APIKey: "sk-test", BaseURL: srv.URL}, zap.NewNop())
	_, err := p.Complete(context.Background(), "x", false)
	assert.Error(t, err)
}

func TestProvider_Unavailable(t *testing.T) {
	assert.False(t, New(providers.Config{}, nil).Available())
}

func TestSupportsTemperature(t *testing.T) {
	assert.True(t, supportsTemperature("gpt-4o"))
	assert.False(t, supportsTemperature("gpt-5-mini"))
	assert.False(t, supportsTemperature("o3-mini"))
}
