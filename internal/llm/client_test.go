package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	CompleteFn func(ctx context.Context, system, prompt string) (string, error)
}

func (m *MockClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, system, prompt)
	}
	return "mock completion", nil
}

var _ Client = (*MockClient)(nil)

func TestNewClaudeClient(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		baseURL string
		model   string
		wantErr bool
	}{
		{name: "valid config", apiKey: "sk-ant-test123", baseURL: "https://api.anthropic.com", model: "claude-3-5-sonnet-20241022"},
		{name: "empty API key", apiKey: "", wantErr: true},
		{name: "default baseURL and model", apiKey: "sk-ant-test123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClaudeClient(tt.apiKey, tt.baseURL, tt.model, 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, client.baseURL)
			assert.NotEmpty(t, client.model)
			assert.Equal(t, 4096, client.maxTokens)
		})
	}
}

func TestCompleteSuccess(t *testing.T) {
	var gotReq claudeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := map[string]any{
			"id":      "msg_1",
			"content": []map[string]string{{"type": "text", "text": "restart the node pool"}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client, err := NewClaudeClient("test-key", server.URL, "test-model", 128)
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "you are an infra agent", "what next?")
	require.NoError(t, err)
	assert.Equal(t, "restart the node pool", text)
	assert.Equal(t, "you are an infra agent", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, 128, gotReq.MaxTokens)
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`))
	}))
	defer server.Close()

	client, err := NewClaudeClient("test-key", server.URL, "", 0)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[]}`))
	}))
	defer server.Close()

	client, err := NewClaudeClient("test-key", server.URL, "", 0)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "", "hi")
	assert.Error(t, err)
}
