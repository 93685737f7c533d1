package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StacklokLabs/mkc/pkg/types"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load([]string{"--server", "node", "--server-args", "server.js --verbose"})
	require.NoError(t, err, "Load should succeed with a server command")

	assert.Equal(t, "node", cfg.ServerCommand)
	assert.Equal(t, []string{"server.js", "--verbose"}, cfg.ServerArgs)
	assert.Equal(t, types.BackendOllama, cfg.Backend, "Default backend should be ollama")
	assert.Equal(t, types.DefaultOllamaModel, cfg.Model)
	assert.Equal(t, types.DefaultOllamaBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultToolTimeout, cfg.ToolTimeout)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultMaxToolCalls, cfg.MaxToolCalls)
}

func TestLoadMissingServer(t *testing.T) {
	_, err := Load([]string{"--llm", "ollama"})
	require.Error(t, err, "Load should fail without --server")

	var cfgErr *Error
	assert.True(t, errors.As(err, &cfgErr), "Error should be a configuration error")
}

func TestLoadUnsupportedBackend(t *testing.T) {
	_, err := Load([]string{"--server", "node", "--llm", "bedrock"})
	require.Error(t, err, "Load should fail for an unsupported backend")

	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "bedrock")
}

func TestLoadOpenAIDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load([]string{"--server", "node", "--llm", "openai"})
	require.NoError(t, err)

	assert.Equal(t, types.DefaultOpenAIModel, cfg.Model)
	assert.Equal(t, types.DefaultOpenAIBaseURL, cfg.BaseURL)
	assert.Equal(t, "sk-from-env", cfg.APIKey, "API key should fall back to OPENAI_API_KEY")
}

func TestLoadAPIKeyFlagWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load([]string{"--server", "node", "--llm", "openai", "--api-key", "sk-from-flag"})
	require.NoError(t, err)
	assert.Equal(t, "sk-from-flag", cfg.APIKey, "--api-key should win over OPENAI_API_KEY")
}

func TestMergeEnvPrecedence(t *testing.T) {
	t.Setenv("SHARED", "from-process")
	t.Setenv("PROCESS_ONLY", "inherited")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SHARED=from-file\nFILE_ONLY=file\n"), 0o600))

	cfg, err := Load([]string{
		"--server", "node",
		"--env-file", envFile,
		"--env", "SHARED=from-flag",
		"--env", "FLAG_ONLY=flag",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Env["SHARED"], "Explicit --env should override the .env file")
	assert.Equal(t, "file", cfg.Env["FILE_ONLY"], "The .env file should override the process environment")
	assert.Equal(t, "inherited", cfg.Env["PROCESS_ONLY"], "Inherited environment should survive the merge")
	assert.Equal(t, "flag", cfg.Env["FLAG_ONLY"])
}

func TestMergeEnvFileOverridesProcess(t *testing.T) {
	t.Setenv("SHARED", "from-process")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SHARED=from-file\n"), 0o600))

	cfg, err := Load([]string{"--server", "node", "--env-file", envFile})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Env["SHARED"])
}

func TestLoadInvalidEnvPair(t *testing.T) {
	_, err := Load([]string{"--server", "node", "--env", "MISSING_EQUALS"})
	require.Error(t, err)

	var cfgErr *Error
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load([]string{"--server", "node", "--env-file", filepath.Join(t.TempDir(), "nope.env")})
	require.Error(t, err, "Load should fail when the env file cannot be read")
}

func TestKubeconfigInjection(t *testing.T) {
	t.Setenv("KUBECONFIG", "")

	path := writeKubeconfig(t)
	cfg, err := Load([]string{"--server", "node", "--kubeconfig", path})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Env["KUBECONFIG"], "Kubeconfig path should be injected into the server environment")
	assert.Equal(t, path, cfg.Kubeconfig)
}

func TestKubeconfigExplicitEnvWins(t *testing.T) {
	path := writeKubeconfig(t)
	cfg, err := Load([]string{
		"--server", "node",
		"--kubeconfig", path,
		"--env", "KUBECONFIG=/explicit/override",
	})
	require.NoError(t, err)
	assert.Equal(t, "/explicit/override", cfg.Env["KUBECONFIG"], "Explicit --env KUBECONFIG should win over --kubeconfig")
}

func TestKubeconfigEnvFileOverridesProcess(t *testing.T) {
	t.Setenv("KUBECONFIG", "/from/process")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("KUBECONFIG=/from/file\n"), 0o600))

	cfg, err := Load([]string{"--server", "node", "--env-file", envFile})
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.Env["KUBECONFIG"], "A KUBECONFIG from the .env file must override the process environment")
	assert.Equal(t, "/from/file", cfg.Kubeconfig)
}

func TestKubeconfigInheritedFromProcess(t *testing.T) {
	t.Setenv("KUBECONFIG", "/from/process")

	cfg, err := Load([]string{"--server", "node"})
	require.NoError(t, err)
	assert.Equal(t, "/from/process", cfg.Env["KUBECONFIG"], "Without a flag or .env entry the process KUBECONFIG is kept")
}

func TestLoadInvalidKubeconfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

	_, err := Load([]string{"--server", "node", "--kubeconfig", path})
	require.Error(t, err, "An explicitly provided kubeconfig must parse")
}

func TestLoadInvalidTimeouts(t *testing.T) {
	_, err := Load([]string{"--server", "node", "--tool-timeout", "0s"})
	assert.Error(t, err)

	_, err = Load([]string{"--server", "node", "--max-tool-calls", "0"})
	assert.Error(t, err)
}

func TestLoadCustomTimeouts(t *testing.T) {
	cfg, err := Load([]string{"--server", "node", "--tool-timeout", "10s", "--request-timeout", "30s"})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestEnvSlice(t *testing.T) {
	cfg := &Config{Env: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, []string{"A=1", "B=2"}, cfg.EnvSlice(), "EnvSlice should be sorted KEY=VALUE pairs")
}

func writeKubeconfig(t *testing.T) string {
	t.Helper()
	content := `apiVersion: v1
kind: Config
current-context: dev
clusters:
- name: c
  cluster:
    server: https://example.com
contexts:
- name: dev
  context:
    cluster: c
    user: u
users:
- name: u
  user: {}
`
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
