package embedding

import (
	"context"
	"errors"
	"testing"

	"document-index/internal/config"
	"document-index/internal/embedding/embeddingtest"
	"document-index/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedChunksSkipsBlankAndKeepsPositions(t *testing.T) {
	embedder, client := embeddingtest.New(8)
	chunks := []models.Chunk{
		{Text: "alpha beta"},
		{Text: "   "},
		{Text: "gamma"},
	}

	n, err := EmbedChunks(context.Background(), embedder, chunks)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, client.Calls, "one batched call per document")
	assert.Equal(t, embeddingtest.Vector("alpha beta", 8), chunks[0].Embedding)
	assert.Nil(t, chunks[1].Embedding)
	assert.Equal(t, embeddingtest.Vector("gamma", 8), chunks[2].Embedding)
}

func TestEmbedChunksNothingToEmbed(t *testing.T) {
	embedder, client := embeddingtest.New(8)
	n, err := EmbedChunks(context.Background(), embedder, []models.Chunk{{Text: "\n"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, client.Calls)
}

func TestEmbedChunksFailure(t *testing.T) {
	embedder, client := embeddingtest.New(8)
	client.Err = errors.New("connection refused")
	_, err := EmbedChunks(context.Background(), embedder, []models.Chunk{{Text: "x"}})
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestDimension(t *testing.T) {
	embedder, client := embeddingtest.New(12)

	dim, err := Dimension(context.Background(), embedder, 384)
	require.NoError(t, err)
	assert.Equal(t, 384, dim)
	assert.Zero(t, client.Calls)

	dim, err = Dimension(context.Background(), embedder, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, dim)
}

func TestCheckQueryDimension(t *testing.T) {
	query, _ := embeddingtest.New(16)
	assert.NoError(t, CheckQueryDimension(context.Background(), query, 0, 16))
	assert.ErrorIs(t, CheckQueryDimension(context.Background(), query, 0, 32), models.ErrDimensionMismatch)
}

func TestNewEmbedderProviders(t *testing.T) {
	_, err := NewEmbedder(config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "mxbai-embed-large"})
	assert.NoError(t, err)

	_, err = NewEmbedder(config.LLMConfig{Provider: "openai", BaseURL: "http://localhost:8080/v1", Key: "Bearer sk-test", Model: "text-embedding-3-small"})
	assert.NoError(t, err)

	_, err = NewEmbedder(config.LLMConfig{Provider: "unknown"})
	assert.Error(t, err)
}
