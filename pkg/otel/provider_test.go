package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderWithStdoutExporter(t *testing.T) {
	config := &Config{
		ServiceName:    "mkc-test",
		ServiceVersion: "0.0.1",
	}

	provider, err := NewProvider(context.Background(), config)
	require.NoError(t, err, "Provider creation with the stdout exporter should not fail")
	require.NotNil(t, provider)

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestShutdownWithoutTracerProvider(t *testing.T) {
	provider := &Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()), "Shutdown on an empty provider should be a no-op")
}
