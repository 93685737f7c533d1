// Package config loads and validates the client configuration from CLI flags,
// an optional .env file, and the inherited process environment
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/StacklokLabs/mkc/pkg/kube"
	"github.com/StacklokLabs/mkc/pkg/types"
)

// Default timeouts and limits for a session
const (
	DefaultToolTimeout    = 60 * time.Second
	DefaultRequestTimeout = 120 * time.Second
	DefaultMaxToolCalls   = 10
)

// Error represents a configuration failure. It is fatal at startup.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds the immutable client configuration for one session
type Config struct {
	// ServerCommand is the command used to launch the MCP server
	ServerCommand string
	// ServerArgs are the arguments passed to the MCP server command
	ServerArgs []string
	// Kubeconfig is the resolved kubeconfig path, empty if none was found
	Kubeconfig string
	// Env is the merged environment passed to the MCP server subprocess
	Env map[string]string

	// Backend selects the LLM backend ("ollama" or "openai")
	Backend string
	// Model is the model name passed to the backend
	Model string
	// BaseURL is the backend endpoint
	BaseURL string
	// APIKey is the bearer token for OpenAI-compatible backends
	APIKey string

	// SystemPrompt is seeded as the first message of the conversation when set
	SystemPrompt string
	// ToolTimeout bounds a single MCP tool invocation
	ToolTimeout time.Duration
	// RequestTimeout bounds a single backend HTTP request
	RequestTimeout time.Duration
	// MaxToolCalls caps the number of chained tool calls per user turn
	MaxToolCalls int
}

// envFlags collects repeatable --env KEY=VALUE flags
type envFlags []string

func (e *envFlags) String() string {
	return strings.Join(*e, ",")
}

func (e *envFlags) Set(value string) error {
	*e = append(*e, value)
	return nil
}

// Load parses the given command line arguments (without the program name)
// into a Config. The environment map is merged with the following precedence,
// highest first: explicit --env entries, the --kubeconfig path, the --env-file
// contents, the inherited process environment.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mkc", flag.ContinueOnError)

	server := fs.String("server", "", "Command used to launch the MCP server (required)")
	serverArgs := fs.String("server-args", "", "Space-separated arguments for the MCP server command")
	kubeconfig := fs.String("kubeconfig", "", "Path to kubeconfig file to inject as KUBECONFIG. "+
		"If not provided, KUBECONFIG or ~/.kube/config is used when present")
	envFile := fs.String("env-file", "", "Path to a .env file with environment variables for the MCP server")
	backend := fs.String("llm", types.BackendOllama, "LLM backend to use: 'ollama' or 'openai'")
	model := fs.String("model", "", "Model name. Defaults depend on the selected backend")
	baseURL := fs.String("base-url", "", "Base URL of the LLM backend endpoint")
	apiKey := fs.String("api-key", "", "API key for OpenAI-compatible backends. Falls back to OPENAI_API_KEY")
	systemPrompt := fs.String("system-prompt", "", "System prompt seeded at the start of the conversation")
	toolTimeout := fs.Duration("tool-timeout", DefaultToolTimeout, "Timeout for a single MCP tool invocation")
	requestTimeout := fs.Duration("request-timeout", DefaultRequestTimeout, "Timeout for a single LLM request")
	maxToolCalls := fs.Int("max-tool-calls", DefaultMaxToolCalls, "Maximum number of chained tool calls per user turn")

	var envPairs envFlags
	fs.Var(&envPairs, "env", "Environment variable for the MCP server as KEY=VALUE. May be repeated")

	if err := fs.Parse(args); err != nil {
		return nil, &Error{Reason: "failed to parse flags", Err: err}
	}

	if *server == "" {
		return nil, &Error{Reason: "--server is required"}
	}

	env, err := mergeEnv(*envFile, *kubeconfig, envPairs)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerCommand:  *server,
		ServerArgs:     strings.Fields(*serverArgs),
		Kubeconfig:     env["KUBECONFIG"],
		Env:            env,
		Backend:        strings.ToLower(strings.TrimSpace(*backend)),
		Model:          *model,
		BaseURL:        *baseURL,
		APIKey:         *apiKey,
		SystemPrompt:   *systemPrompt,
		ToolTimeout:    *toolTimeout,
		RequestTimeout: *requestTimeout,
		MaxToolCalls:   *maxToolCalls,
	}

	if err := applyBackendDefaults(cfg); err != nil {
		return nil, err
	}

	if cfg.ToolTimeout <= 0 {
		return nil, &Error{Reason: "--tool-timeout must be positive"}
	}
	if cfg.RequestTimeout <= 0 {
		return nil, &Error{Reason: "--request-timeout must be positive"}
	}
	if cfg.MaxToolCalls < 1 {
		return nil, &Error{Reason: "--max-tool-calls must be at least 1"}
	}

	// Validate an explicitly provided kubeconfig; an implicitly resolved one
	// may legitimately be absent or meant for a non-Kubernetes server.
	if *kubeconfig != "" {
		if _, err := kube.Validate(*kubeconfig); err != nil {
			return nil, &Error{Reason: "invalid kubeconfig", Err: err}
		}
	}

	return cfg, nil
}

// mergeEnv builds the environment map for the MCP server subprocess
func mergeEnv(envFile, kubeconfig string, pairs envFlags) (map[string]string, error) {
	env := make(map[string]string)

	// Inherited process environment is the lowest precedence layer
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}

	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil {
			return nil, &Error{Reason: fmt.Sprintf("failed to read env file %q", envFile), Err: err}
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}

	// An explicit --kubeconfig overrides the file layer. Otherwise a
	// KUBECONFIG already present in the merged map (from the .env file or
	// the process environment) is kept, and the ~/.kube/config fallback is
	// only injected when the key is not set at all.
	if kubeconfig != "" {
		env["KUBECONFIG"] = kubeconfig
	} else if _, ok := env["KUBECONFIG"]; !ok {
		if path := kube.ResolvePath(""); path != "" {
			env["KUBECONFIG"] = path
		}
	}

	// Explicit --env entries win over everything else
	for _, pair := range pairs {
		idx := strings.IndexByte(pair, '=')
		if idx <= 0 {
			return nil, &Error{Reason: fmt.Sprintf("invalid --env value %q, expected KEY=VALUE", pair)}
		}
		env[pair[:idx]] = pair[idx+1:]
	}

	return env, nil
}

// applyBackendDefaults validates the backend selection and fills in
// backend-specific defaults for model, base URL, and API key
func applyBackendDefaults(cfg *Config) error {
	switch cfg.Backend {
	case types.BackendOllama:
		if cfg.Model == "" {
			cfg.Model = types.DefaultOllamaModel
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = types.DefaultOllamaBaseURL
		}
	case types.BackendOpenAI:
		if cfg.Model == "" {
			cfg.Model = types.DefaultOpenAIModel
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = types.DefaultOpenAIBaseURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = cfg.Env["OPENAI_API_KEY"]
		}
	default:
		return &Error{Reason: fmt.Sprintf("unsupported backend %q, must be '%s' or '%s'",
			cfg.Backend, types.BackendOllama, types.BackendOpenAI)}
	}
	return nil
}

// EnvSlice returns the merged environment as sorted KEY=VALUE pairs,
// in the form expected by the MCP stdio transport
func (c *Config) EnvSlice() []string {
	out := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
