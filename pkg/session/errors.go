package session

import "fmt"

// ConnectionError indicates the MCP server could not be launched or the
// handshake failed. It is fatal at startup and terminates the session when
// it occurs mid-conversation.
type ConnectionError struct {
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ToolError indicates a tool invocation failed. It is reported to the
// conversation and never terminates the session.
type ToolError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %q failed: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Reason)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
