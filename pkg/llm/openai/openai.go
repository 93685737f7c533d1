// Package openai implements the LLM backend for OpenAI-compatible chat
// completion APIs, authenticated with a bearer API key
package openai

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

// Backend talks to an OpenAI-compatible /chat/completions endpoint
type Backend struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// New creates an OpenAI-compatible backend from the configuration
func New(cfg *config.Config) *Backend {
	return &Backend{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Name returns the backend name
func (b *Backend) Name() string {
	return types.BackendOpenAI
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolDef     `json:"tools,omitempty"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name string `json:"name"`
	// Arguments is a JSON-encoded object, per the OpenAI wire format
	Arguments string `json:"arguments"`
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
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the conversation to /chat/completions and returns the
// model's reply
func (b *Backend) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (*llm.Completion, error) {
	wireMessages, err := toWireMessages(messages)
	if err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: err}
	}

	request := chatRequest{
		Model:    b.model,
		Messages: wireMessages,
		Tools:    toWireTools(tools),
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	url := b.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

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
		return nil, &llm.BackendError{Backend: b.Name(), Status: resp.StatusCode, Message: errResp.Error.Message}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &llm.BackendError{Backend: b.Name(), Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &llm.BackendError{Backend: b.Name(), Message: "response contained no choices"}
	}

	message := chatResp.Choices[0].Message
	completion := &llm.Completion{Text: message.Content}
	for _, call := range message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, &llm.BackendError{
					Backend: b.Name(),
					Err:     fmt.Errorf("failed to decode tool call arguments for %q: %w", call.Function.Name, err),
				}
			}
		}
		completion.ToolCalls = append(completion.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	return completion, nil
}

func toWireMessages(messages []llm.Message) ([]chatMessage, error) {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wire := chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == llm.RoleTool {
			wire.Name = m.Name
		}
		for _, call := range m.ToolCalls {
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				return nil, fmt.Errorf("failed to encode tool call arguments for %q: %w", call.Name, err)
			}
			wire.ToolCalls = append(wire.ToolCalls, toolCall{
				ID:   call.ID,
				Type: "function",
				Function: functionCall{
					Name:      call.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, wire)
	}
	return out, nil
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
