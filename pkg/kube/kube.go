// Package kube resolves and validates kubeconfig files that are injected into
// the environment of MCP servers which talk to Kubernetes clusters
package kube

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
	"k8s.io/client-go/util/homedir"
)

// loadConfig is replaceable in tests
var loadConfig = clientcmd.LoadFromFile

// ResolvePath returns the kubeconfig path to use.
// Precedence: the explicit path, then the KUBECONFIG environment variable,
// then the default ~/.kube/config if it exists.
// Returns an empty string when no kubeconfig can be found.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}

	// Fall back to default kubeconfig path
	if home := homedir.HomeDir(); home != "" {
		path := filepath.Join(home, ".kube", "config")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Info describes a loaded kubeconfig
type Info struct {
	Path           string
	CurrentContext string
	Contexts       []string
}

// Validate loads the kubeconfig at path and returns its context information.
// The file is only parsed; no connection to a cluster is made.
func Validate(path string) (*Info, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig %q: %w", path, err)
	}

	return &Info{
		Path:           path,
		CurrentContext: cfg.CurrentContext,
		Contexts:       contextNames(cfg),
	}, nil
}

// Contexts returns the sorted context names defined in the kubeconfig at path
func Contexts(path string) ([]string, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig %q: %w", path, err)
	}
	return contextNames(cfg), nil
}

func contextNames(cfg *clientcmdapi.Config) []string {
	names := make([]string, 0, len(cfg.Contexts))
	for name := range cfg.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
