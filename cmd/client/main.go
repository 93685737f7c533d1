// Package main provides the entry point for the mkc chat client
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/StacklokLabs/mkc/pkg/chat"
	"github.com/StacklokLabs/mkc/pkg/config"
	"github.com/StacklokLabs/mkc/pkg/kube"
	"github.com/StacklokLabs/mkc/pkg/llm/backends"
	"github.com/StacklokLabs/mkc/pkg/otel"
	"github.com/StacklokLabs/mkc/pkg/ratelimit"
	"github.com/StacklokLabs/mkc/pkg/session"
)

// Exit codes
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Printf("%v", err)
		return exitConfig
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up OpenTelemetry if enabled
	otelConfig := otel.DefaultConfig()
	var otelProvider *otel.Provider
	if otelConfig.Enabled {
		otelProvider, err = otel.NewProvider(ctx, otelConfig)
		if err != nil {
			log.Printf("Failed to initialize OpenTelemetry: %v", err)
			return exitError
		}
		defer func() {
			if err := otelProvider.Shutdown(context.Background()); err != nil {
				log.Printf("Error shutting down OpenTelemetry provider: %v", err)
			}
		}()
	}

	// Report the kubeconfig that will be injected into the server environment
	if cfg.Kubeconfig != "" {
		if info, err := kube.Validate(cfg.Kubeconfig); err != nil {
			log.Printf("Warning: kubeconfig %s could not be parsed: %v", cfg.Kubeconfig, err)
		} else {
			log.Printf("Using kubeconfig %s (current context: %s, %d contexts)",
				info.Path, info.CurrentContext, len(info.Contexts))
		}
	}

	// Rate limiting guards against runaway tool-call loops
	limiter := ratelimit.New()
	defer limiter.Stop()

	sessionOpts := []session.Option{}
	if otelConfig.Enabled {
		sessionOpts = append(sessionOpts, session.WithToolMiddleware(otel.ToolMiddleware()))
	}
	sessionOpts = append(sessionOpts, session.WithToolMiddleware(limiter.Middleware()))

	mcpSession := session.New(cfg, sessionOpts...)

	// Set up signal handling so Ctrl-C shuts the subprocess down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Received shutdown signal")
		cancel()
		if err := mcpSession.Close(); err != nil {
			log.Printf("Error closing MCP session: %v", err)
		}
		if otelProvider != nil {
			if err := otelProvider.Shutdown(context.Background()); err != nil {
				log.Printf("Error shutting down OpenTelemetry provider: %v", err)
			}
		}
		os.Exit(exitError)
	}()

	log.Printf("Starting MCP server: %s %v", cfg.ServerCommand, cfg.ServerArgs)
	if err := mcpSession.Start(ctx); err != nil {
		log.Printf("Failed to start MCP session: %v", err)
		return exitError
	}
	defer func() {
		if err := mcpSession.Close(); err != nil {
			log.Printf("Error closing MCP session: %v", err)
		}
	}()

	backend, err := backends.New(cfg)
	if err != nil {
		log.Printf("%v", err)
		return exitConfig
	}
	if otelConfig.Enabled {
		backend = otel.InstrumentBackend(backend, cfg.Model)
	}

	loop := chat.New(mcpSession, backend, cfg, os.Stdin, os.Stdout)
	if kubeconfig := cfg.Kubeconfig; kubeconfig != "" {
		loop.SetContextLister(func() ([]string, error) {
			return kube.Contexts(kubeconfig)
		})
	}

	if err := loop.Run(ctx); err != nil {
		var connErr *session.ConnectionError
		if errors.As(err, &connErr) {
			log.Printf("MCP connection lost: %v", connErr)
		} else {
			log.Printf("Session ended with error: %v", err)
		}
		return exitError
	}

	return exitOK
}
