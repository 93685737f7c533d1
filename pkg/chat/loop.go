// Package chat implements the interactive conversation loop: reading user
// input, invoking the LLM backend, dispatching tool calls through the MCP
// session, and folding results back into the conversation history
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/StacklokLabs/mkc/pkg/config"
	"github.com/StacklokLabs/mkc/pkg/llm"
	"github.com/StacklokLabs/mkc/pkg/session"
	"github.com/StacklokLabs/mkc/pkg/types"
)

// Session is the subset of the MCP session used by the loop
type Session interface {
	ServerName() string
	Tools() []mcp.Tool
	Resources() []mcp.Resource
	Prompts() []mcp.Prompt
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// ContextLister lists kubeconfig contexts for the contexts command
type ContextLister func() ([]string, error)

// Loop holds the state of one interactive conversation
type Loop struct {
	session      Session
	backend      llm.Backend
	in           io.Reader
	out          io.Writer
	systemPrompt string
	maxToolCalls int
	listContexts ContextLister

	history []llm.Message
}

// New creates a conversation loop reading user input from in and writing
// chat output to out
func New(sess Session, backend llm.Backend, cfg *config.Config, in io.Reader, out io.Writer) *Loop {
	l := &Loop{
		session:      sess,
		backend:      backend,
		in:           in,
		out:          out,
		systemPrompt: cfg.SystemPrompt,
		maxToolCalls: cfg.MaxToolCalls,
	}
	l.seedHistory()
	return l
}

// SetContextLister wires the contexts command to a kubeconfig
func (l *Loop) SetContextLister(lister ContextLister) {
	l.listContexts = lister
}

// History returns the current conversation history
func (l *Loop) History() []llm.Message {
	return l.history
}

func (l *Loop) seedHistory() {
	l.history = nil
	if l.systemPrompt != "" {
		l.history = append(l.history, llm.Message{Role: llm.RoleSystem, Content: l.systemPrompt})
	}
}

// Run processes user input until quit, EOF, or a connection failure.
// A nil return means a normal exit.
func (l *Loop) Run(ctx context.Context) error {
	l.printWelcome()

	scanner := bufio.NewScanner(l.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(l.out, "> ")
		if !scanner.Scan() {
			// EOF behaves as quit
			fmt.Fprintln(l.out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		done, handled := l.handleCommand(input)
		if done {
			return nil
		}
		if handled {
			continue
		}

		if err := l.handleTurn(ctx, input); err != nil {
			return err
		}
	}
}

func (l *Loop) printWelcome() {
	fmt.Fprintf(l.out, "Connected to MCP server %q with %d tools. Backend: %s.\n",
		l.session.ServerName(), len(l.session.Tools()), l.backend.Name())
	fmt.Fprintln(l.out, "Commands: tools, resources, prompts, contexts, history, clear, quit")
}

// handleTurn resolves one user turn, including any chained tool calls.
// Backend and tool errors are reported inline and leave the session open;
// only connection loss is returned as an error.
func (l *Loop) handleTurn(ctx context.Context, input string) error {
	l.history = append(l.history, llm.Message{Role: llm.RoleUser, Content: input})

	toolSpecs := llm.SpecsFromMCPTools(l.session.Tools())
	toolCalls := 0

	for {
		completion, err := l.backend.Complete(ctx, l.history, toolSpecs)
		if err != nil {
			var backendErr *llm.BackendError
			if errors.As(err, &backendErr) {
				fmt.Fprintf(l.out, "Error: %v\n", backendErr)
				return nil
			}
			return err
		}

		l.history = append(l.history, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		if completion.Text != "" {
			fmt.Fprintln(l.out, completion.Text)
		}

		if len(completion.ToolCalls) == 0 {
			return nil
		}

		capReached := false
		for _, call := range completion.ToolCalls {
			var content string
			if toolCalls >= l.maxToolCalls {
				capReached = true
				content = fmt.Sprintf("tool call limit of %d per turn reached", l.maxToolCalls)
			} else {
				toolCalls++
				fmt.Fprintf(l.out, "[calling tool %s]\n", call.Name)

				result, err := l.session.CallTool(ctx, call.Name, call.Arguments)
				if err != nil {
					var connErr *session.ConnectionError
					if errors.As(err, &connErr) {
						return err
					}
					fmt.Fprintf(l.out, "Error: %v\n", err)
					content = err.Error()
				} else {
					content = result
				}
			}

			// The result must land in history before the backend runs again
			l.history = append(l.history, llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}

		if capReached {
			fmt.Fprintf(l.out, "Tool call limit of %d per turn reached, returning to input.\n", l.maxToolCalls)
			return nil
		}
	}
}

// handleCommand intercepts built-in commands. It returns (done, handled):
// done terminates the loop, handled means the input was a command.
func (l *Loop) handleCommand(input string) (bool, bool) {
	switch strings.ToLower(input) {
	case types.CmdQuit, types.CmdExit, types.CmdBye:
		fmt.Fprintln(l.out, "Goodbye!")
		return true, true
	case types.CmdTools:
		l.printTools()
	case types.CmdResources:
		l.printResources()
	case types.CmdPrompts:
		l.printPrompts()
	case types.CmdContexts:
		l.printContexts()
	case types.CmdHistory:
		l.printHistory()
	case types.CmdClear:
		l.seedHistory()
		fmt.Fprintln(l.out, "Conversation history cleared.")
	default:
		return false, false
	}
	return false, true
}

func (l *Loop) printTools() {
	tools := l.session.Tools()
	if len(tools) == 0 {
		fmt.Fprintln(l.out, "No tools available.")
		return
	}
	fmt.Fprintf(l.out, "Available tools (%d):\n", len(tools))
	for _, tool := range tools {
		fmt.Fprintf(l.out, "  - %s: %s\n", tool.Name, tool.Description)
	}
}

func (l *Loop) printResources() {
	resources := l.session.Resources()
	if len(resources) == 0 {
		fmt.Fprintln(l.out, "No resources available.")
		return
	}
	fmt.Fprintf(l.out, "Available resources (%d):\n", len(resources))
	for _, resource := range resources {
		fmt.Fprintf(l.out, "  - %s (%s)\n", resource.URI, resource.Name)
	}
}

func (l *Loop) printPrompts() {
	prompts := l.session.Prompts()
	if len(prompts) == 0 {
		fmt.Fprintln(l.out, "No prompts available.")
		return
	}
	fmt.Fprintf(l.out, "Available prompts (%d):\n", len(prompts))
	for _, prompt := range prompts {
		fmt.Fprintf(l.out, "  - %s: %s\n", prompt.Name, prompt.Description)
	}
}

func (l *Loop) printContexts() {
	if l.listContexts == nil {
		fmt.Fprintln(l.out, "No kubeconfig configured.")
		return
	}
	contexts, err := l.listContexts()
	if err != nil {
		fmt.Fprintf(l.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(l.out, "Kubeconfig contexts (%d):\n", len(contexts))
	for _, name := range contexts {
		fmt.Fprintf(l.out, "  - %s\n", name)
	}
}

func (l *Loop) printHistory() {
	if len(l.history) == 0 {
		fmt.Fprintln(l.out, "No conversation history.")
		return
	}
	for _, msg := range l.history {
		switch {
		case len(msg.ToolCalls) > 0:
			names := make([]string, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				names = append(names, call.Name)
			}
			fmt.Fprintf(l.out, "[%s] %s (tool calls: %s)\n", msg.Role, msg.Content, strings.Join(names, ", "))
		case msg.Role == llm.RoleTool:
			fmt.Fprintf(l.out, "[%s:%s] %s\n", msg.Role, msg.Name, msg.Content)
		default:
			fmt.Fprintf(l.out, "[%s] %s\n", msg.Role, msg.Content)
		}
	}
}
