package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/config"
)

func TestOpenConfiguredEmbedder_RejectsEmptyProvider(t *testing.T) {
	// Given: a config with no embedding provider set
	cfg := config.NewConfig()

	// When: opening the configured embedder
	_, err := openConfiguredEmbedder(context.Background(), cfg)

	// Then: it should fail rather than silently return a nil embedder
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedder configured")
}

func TestOpenConfiguredEmbedder_OpensStaticProvider(t *testing.T) {
	// Given: a config requesting the static (hash-based) provider
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "static"

	// When: opening the configured embedder
	embedder, err := openConfiguredEmbedder(context.Background(), cfg)

	// Then: it should succeed and produce a vector.Embedder-compatible adapter
	require.NoError(t, err)
	v, err := embedder.EmbedText("title", "hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestEngineEmbedderAdapter_EmbedBytes_NotSupported(t *testing.T) {
	// Given: an adapter around any embedder
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "static"
	embedder, err := openConfiguredEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	// When: embedding raw bytes
	_, err = embedder.EmbedBytes("attachment", []byte{0x01, 0x02}, "application/octet-stream")

	// Then: it should report the unsupported operation rather than panic
	require.Error(t, err)
}
