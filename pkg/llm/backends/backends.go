// Package backends selects a concrete LLM backend from the configuration
package backends

import (
	"fmt"

	"github.com/StacklokLabs/mkc/pkg/config"
	"github.com/StacklokLabs/mkc/pkg/llm"
	"github.com/StacklokLabs/mkc/pkg/llm/ollama"
	"github.com/StacklokLabs/mkc/pkg/llm/openai"
	"github.com/StacklokLabs/mkc/pkg/types"
)

// New returns the backend named by the configuration
func New(cfg *config.Config) (llm.Backend, error) {
	switch cfg.Backend {
	case types.BackendOllama:
		return ollama.New(cfg), nil
	case types.BackendOpenAI:
		return openai.New(cfg), nil
	default:
		return nil, &config.Error{Reason: fmt.Sprintf("unsupported backend %q", cfg.Backend)}
	}
}
