// Package types contains common type definitions and constants used across the MCP client
package types

// Constants for LLM backend selection
const (
	// BackendOllama is the name of the local Ollama backend
	BackendOllama = "ollama"

	// BackendOpenAI is the name of the OpenAI-compatible backend
	BackendOpenAI = "openai"
)

// Default endpoints and models per backend
const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3.1:8b"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// Built-in chat commands, intercepted before the backend is invoked
const (
	CmdQuit      = "quit"
	CmdExit      = "exit"
	CmdBye       = "bye"
	CmdTools     = "tools"
	CmdResources = "resources"
	CmdPrompts   = "prompts"
	CmdContexts  = "contexts"
	CmdHistory   = "history"
	CmdClear     = "clear"
)
