package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "SELECT assists FROM players"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(discardLogger(), "test-key", 256, option.WithBaseURL(srv.URL))
	text, err := c.Generate(context.Background(), Prompt{System: "schema", User: "Saka assists"}, "claude-test")
	require.NoError(t, err)
	assert.Equal(t, "SELECT assists FROM players", text)
	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 0, body["temperature"])
	assert.EqualValues(t, 256, body["max_tokens"])
}

func TestAnthropicClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: ErrRateLimited},
		{name: "overloaded", status: 529, wantKind: ErrProviderUnavailable},
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: ErrProviderUnavailable},
		{name: "bad request", status: http.StatusBadRequest, wantKind: ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
			}))
			defer srv.Close()

			c := NewAnthropicClient(discardLogger(), "test-key", 256, option.WithBaseURL(srv.URL))
			_, err := c.Generate(context.Background(), Prompt{User: "q"}, "claude-test")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantKind), "got %v", err)
			assert.Equal(t, 1, calls, "SDK retries must be disabled")
		})
	}
}

func TestAnthropicClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(discardLogger(), "test-key", 256, option.WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), Prompt{User: "q"}, "m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}
