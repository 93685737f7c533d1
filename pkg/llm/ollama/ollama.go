// Package ollama implements the LLM backend for a local Ollama instance
// using the native /api/chat endpoint with tool calling
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/StacklokLabs/mkc/pkg/config"
	"github.com/StacklokLabs/mkc/pkg/llm"
	"github.com/StacklokLabs/mkc/pkg/types"
)

// Backend talks to an Ollama server. No authentication is used.
type Backend struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates an Ollama backend from the configuration
func New(cfg *config.Config) *Backend {
	return &Backend{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Name returns the backend name
func (b *Backend) Name() string {
	return types.BackendOllama
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []toolDef     `json:"tools,omitempty"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

type toolCall struct {
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type toolDef struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Complete sends the conversation to /api/chat and returns the model's reply
func (b *Backend) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (*llm.Completion, error) {
	request := chatRequest{
		Model:    b.model,
		Messages: toWireMessages(messages),
		Stream:   false,
		Tools:    toWireTools(tools),
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	url := b.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		return nil, &llm.BackendError{Backend: b.Name(), Status: resp.StatusCode, Message: errResp.Error}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	completion := &llm.Completion{Text: chatResp.Message.Content}
	for i, call := range chatResp.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, llm.ToolCall{
			// Ollama does not assign call IDs; synthesize stable ones
			ID:        fmt.Sprintf("call_%d", i),
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	return completion, nil
}

func toWireMessages(messages []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wire := chatMessage{
			Role:    m.Role,
			Content: m.Content,
		}
		if m.Role == llm.RoleTool {
			wire.ToolName = m.Name
		}
		for _, call := range m.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, toolCall{
				Function: functionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, wire)
	}
	return out
}

func toWireTools(tools []llm.ToolSpec) []toolDef {
	out := make([]toolDef, 0, len(tools))
	for _, tool := range tools {
		out = append(out, toolDef{
			Type: "function",
			Function: functionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}
