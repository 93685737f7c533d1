// Package llm defines the backend abstraction for LLM completion providers
// and the conversation message types shared by all backends
package llm

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Conversation roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of the conversation
type Message struct {
	Role    string
	Content string
	// ToolCalls are set on assistant messages that request tool invocations
	ToolCalls []ToolCall
	// ToolCallID and Name are set on tool result messages
	ToolCallID string
	Name       string
}

// ToolCall is a structured request from the backend to invoke an MCP tool
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Completion is the backend's response: plain text, tool-call requests, or both
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolSpec describes a tool in the form backends advertise to the model
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Backend is a completion provider. Implementations must be safe for
// sequential reuse across turns; concurrent use is not required.
type Backend interface {
	// Name returns the backend name for logs and error messages
	Name() string
	// Complete sends the conversation and available tools to the model and
	// returns its completion. Failures are returned as *BackendError.
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Completion, error)
}

// BackendError indicates an LLM request failed. It is reported inline in the
// conversation; the session stays open.
type BackendError struct {
	Backend string
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("backend %s returned status %d: %s", e.Backend, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("backend %s returned status %d", e.Backend, e.Status)
	case e.Message != "":
		return fmt.Sprintf("backend %s failed: %s", e.Backend, e.Message)
	default:
		return fmt.Sprintf("backend %s failed: %v", e.Backend, e.Err)
	}
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// SpecsFromMCPTools converts MCP tool descriptors into the generic tool
// specs advertised to the model
func SpecsFromMCPTools(tools []mcp.Tool) []ToolSpec {
	specs := make([]ToolSpec, 0, len(tools))
	for _, tool := range tools {
		specs = append(specs, ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaToParameters(tool.InputSchema),
		})
	}
	return specs
}

// schemaToParameters renders an MCP tool input schema as a JSON-schema object
func schemaToParameters(schema mcp.ToolInputSchema) map[string]any {
	params := map[string]any{
		"type": "object",
	}
	if schema.Type != "" {
		params["type"] = schema.Type
	}
	if len(schema.Properties) > 0 {
		params["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}
	return params
}
