// Package session owns the lifecycle of the MCP server subprocess and the
// client connection to it: launch, handshake, discovery, tool invocation,
// and shutdown
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/StacklokLabs/mkc/pkg/config"
)

const (
	clientName    = "mkc"
	clientVersion = "0.1.0"
)

// ToolInvoker invokes a named MCP tool and returns its flattened text result
type ToolInvoker func(ctx context.Context, name string, args map[string]any) (string, error)

// ToolMiddleware wraps a ToolInvoker, e.g. for tracing or rate limiting
type ToolMiddleware func(next ToolInvoker) ToolInvoker

// mcpClient is the subset of the mcp-go client used by the session.
// *client.Client satisfies it; tests substitute a fake.
type mcpClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ReadResource(ctx context.Context, request mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	Close() error
}

// newStdioClient is replaceable in tests
var newStdioClient = func(command string, env []string, args ...string) (mcpClient, error) {
	return client.NewStdioMCPClient(command, env, args...)
}

// Session represents one connection to an MCP server
type Session struct {
	command     string
	args        []string
	env         []string
	toolTimeout time.Duration
	middlewares []ToolMiddleware

	client mcpClient
	invoke ToolInvoker

	serverName string
	tools      []mcp.Tool
	toolIndex  map[string]mcp.Tool
	resources  []mcp.Resource
	prompts    []mcp.Prompt

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session
type Option func(*Session)

// WithToolMiddleware adds middleware around tool invocations.
// The first middleware given is the outermost.
func WithToolMiddleware(mws ...ToolMiddleware) Option {
	return func(s *Session) {
		s.middlewares = append(s.middlewares, mws...)
	}
}

// New creates a session for the MCP server described by the configuration.
// The server subprocess is not launched until Start is called.
func New(cfg *config.Config, opts ...Option) *Session {
	s := &Session{
		command:     cfg.ServerCommand,
		args:        cfg.ServerArgs,
		env:         cfg.EnvSlice(),
		toolTimeout: cfg.ToolTimeout,
		toolIndex:   make(map[string]mcp.Tool),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Build the invocation chain with the first middleware outermost
	s.invoke = s.callTool
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		s.invoke = s.middlewares[i](s.invoke)
	}

	return s
}

// Start launches the MCP server subprocess, performs the initialize
// handshake, and discovers the server's tools, resources, and prompts.
// On any failure the subprocess is shut down before returning.
func (s *Session) Start(ctx context.Context) error {
	c, err := newStdioClient(s.command, s.env, s.args...)
	if err != nil {
		return &ConnectionError{Stage: "launch", Err: err}
	}
	s.client = c

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	initResult, err := s.client.Initialize(ctx, initRequest)
	if err != nil {
		s.Close()
		return &ConnectionError{Stage: "handshake", Err: err}
	}
	s.serverName = initResult.ServerInfo.Name

	if err := s.discover(ctx); err != nil {
		s.Close()
		return err
	}

	return nil
}

// discover loads the tool, resource, and prompt lists from the server.
// A failing tool listing is fatal; resource and prompt listings are
// optional capabilities and failures there are only logged.
func (s *Session) discover(ctx context.Context) error {
	toolsResult, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return &ConnectionError{Stage: "tool discovery", Err: err}
	}
	s.tools = toolsResult.Tools
	for _, tool := range s.tools {
		s.toolIndex[tool.Name] = tool
	}

	resourcesResult, err := s.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		log.Printf("Server does not list resources: %v", err)
	} else {
		s.resources = resourcesResult.Resources
	}

	promptsResult, err := s.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		log.Printf("Server does not list prompts: %v", err)
	} else {
		s.prompts = promptsResult.Prompts
	}

	return nil
}

// ServerName returns the name the server reported during the handshake
func (s *Session) ServerName() string {
	return s.serverName
}

// Tools returns the discovered tool descriptors
func (s *Session) Tools() []mcp.Tool {
	return s.tools
}

// Resources returns the discovered resource descriptors
func (s *Session) Resources() []mcp.Resource {
	return s.resources
}

// Prompts returns the discovered prompt descriptors
func (s *Session) Prompts() []mcp.Prompt {
	return s.prompts
}

// CallTool invokes the named tool through the configured middleware chain.
// Failures are returned as ToolError and never terminate the session.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if _, ok := s.toolIndex[name]; !ok {
		return "", &ToolError{Tool: name, Reason: "unknown tool"}
	}
	return s.invoke(ctx, name, args)
}

// callTool is the innermost invoker performing the actual MCP round trip
func (s *Session) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args

	result, err := s.client.CallTool(callCtx, request)
	if err != nil {
		return "", &ToolError{Tool: name, Reason: "invocation failed", Err: err}
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", &ToolError{Tool: name, Reason: text}
	}

	return text, nil
}

// ReadResource reads the resource at the given URI and returns its text contents
func (s *Session) ReadResource(ctx context.Context, uri string) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	request := mcp.ReadResourceRequest{}
	request.Params.URI = uri

	result, err := s.client.ReadResource(readCtx, request)
	if err != nil {
		return "", fmt.Errorf("failed to read resource %q: %w", uri, err)
	}

	var parts []string
	for _, contents := range result.Contents {
		if text, ok := contents.(mcp.TextResourceContents); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Close shuts down the MCP server subprocess. It is idempotent and safe to
// call on every exit path.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.client != nil {
			s.closeErr = s.client.Close()
		}
	})
	return s.closeErr
}

// flattenContent joins the text parts of a tool result into a single string
func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if text, ok := c.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
