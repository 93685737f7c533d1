package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StacklokLabs/mkc/pkg/config"
	"github.com/StacklokLabs/mkc/pkg/llm"
)

func testBackend(baseURL, apiKey string) *Backend {
	return New(&config.Config{
		BaseURL:        baseURL,
		Model:          "gpt-4o-mini",
		APIKey:         apiKey,
		RequestTimeout: 5 * time.Second,
	})
}

func textResponse(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	var response chatResponse
	response.Choices = []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}{
		{Message: chatMessage{Role: "assistant", Content: content}, FinishReason: "stop"},
	}
	require.NoError(t, json.NewEncoder(w).Encode(response))
}

func TestCompleteText(t *testing.T) {
	var gotRequest chatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		textResponse(t, w, "Hello!")
	}))
	defer server.Close()

	b := testBackend(server.URL+"/v1", "sk-test")
	completion, err := b.Complete(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		[]llm.ToolSpec{{Name: "get_resource", Description: "Get a resource", Parameters: map[string]any{"type": "object"}}},
	)
	require.NoError(t, err)

	assert.Equal(t, "Hello!", completion.Text)
	assert.Equal(t, "Bearer sk-test", gotAuth, "API key should be sent as a bearer token")
	assert.Equal(t, "gpt-4o-mini", gotRequest.Model)
	require.Len(t, gotRequest.Tools, 1)
	assert.Equal(t, "function", gotRequest.Tools[0].Type)
}

func TestCompleteNoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		textResponse(t, w, "ok")
	}))
	defer server.Close()

	b := testBackend(server.URL, "")
	_, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, gotAuth, "No Authorization header should be sent without an API key")
}

func TestCompleteToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var response chatResponse
		response.Choices = []struct {
			Message      chatMessage `json:"message"`
			FinishReason string      `json:"finish_reason"`
		}{
			{
				Message: chatMessage{
					Role: "assistant",
					ToolCalls: []toolCall{
						{
							ID:       "call_abc123",
							Type:     "function",
							Function: functionCall{Name: "list_resources", Arguments: `{"version":"v1","resource":"pods"}`},
						},
					},
				},
				FinishReason: "tool_calls",
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	b := testBackend(server.URL, "sk-test")
	completion, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "list pods"}}, nil)
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 1)
	call := completion.ToolCalls[0]
	assert.Equal(t, "call_abc123", call.ID)
	assert.Equal(t, "list_resources", call.Name)
	assert.Equal(t, "pods", call.Arguments["resource"], "Arguments should be decoded from the JSON string form")
}

func TestCompleteToolResultMessage(t *testing.T) {
	var gotRequest chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		textResponse(t, w, "done")
	}))
	defer server.Close()

	b := testBackend(server.URL, "sk-test")
	_, err := b.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "list pods"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "call_abc123", Name: "list_resources", Arguments: map[string]any{"resource": "pods"}},
		}},
		{Role: llm.RoleTool, ToolCallID: "call_abc123", Name: "list_resources", Content: "pod-a, pod-b"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, gotRequest.Messages, 3)
	assistant := gotRequest.Messages[1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_abc123", assistant.ToolCalls[0].ID)
	assert.JSONEq(t, `{"resource":"pods"}`, assistant.ToolCalls[0].Function.Arguments,
		"Arguments should be re-encoded as a JSON string")

	toolMsg := gotRequest.Messages[2]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call_abc123", toolMsg.ToolCallID)
	assert.Equal(t, "pod-a, pod-b", toolMsg.Content)
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		var errResp errorResponse
		errResp.Error.Message = "Incorrect API key provided"
		require.NoError(t, json.NewEncoder(w).Encode(errResp))
	}))
	defer server.Close()

	b := testBackend(server.URL, "sk-bad")
	_, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)

	var backendErr *llm.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, http.StatusUnauthorized, backendErr.Status)
	assert.Contains(t, backendErr.Message, "Incorrect API key")
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(chatResponse{}))
	}))
	defer server.Close()

	b := testBackend(server.URL, "sk-test")
	_, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)

	var backendErr *llm.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Contains(t, backendErr.Message, "no choices")
}

func TestCompleteUnreachableBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	b := testBackend(server.URL, "sk-test")
	_, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)

	var backendErr *llm.BackendError
	require.True(t, errors.As(err, &backendErr), "Unreachable base URL should surface as a BackendError")
}

func TestName(t *testing.T) {
	assert.Equal(t, "openai", testBackend("http://localhost", "").Name())
}
