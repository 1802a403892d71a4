package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"document-index/internal/config"
	"document-index/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultBatchSize = 64
	sampleText       = "dimension check"
)

// NewEmbedder creates the embedding capability for llmConfig.
func NewEmbedder(llmConfig config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch llmConfig.Provider {
	case "openai":
		llm, err := openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		client = llm
	case "ollama", "":
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", llmConfig.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(defaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// Dimension returns the configured dimension, or measures it from a sample embedding when it is zero.
func Dimension(ctx context.Context, embedder embeddings.Embedder, configured int) (int, error) {
	if configured > 0 {
		return configured, nil
	}
	v, err := embedder.EmbedQuery(ctx, sampleText)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to measure dimension: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: model returned an empty vector", models.ErrEmbeddingUnavailable)
	}
	return len(v), nil
}

// CheckQueryDimension verifies the query model produces vectors of the document
// dimension. A mismatch is a configuration error.
func CheckQueryDimension(ctx context.Context, query embeddings.Embedder, configured, docDim int) error {
	queryDim, err := Dimension(ctx, query, configured)
	if err != nil {
		return err
	}
	if queryDim != docDim {
		return fmt.Errorf("%w: query model produces %d dimensions, documents use %d", models.ErrDimensionMismatch, queryDim, docDim)
	}
	return nil
}

// EmbedChunks embeds every chunk with non-blank text in one batch and assigns
// the vectors back by position. Blank chunks keep a nil embedding.
// It returns the number of embedded chunks.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) (int, error) {
	var (
		texts     []string
		positions []int
	)
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		texts = append(texts, c.Text)
		positions = append(positions, i)
	}
	if len(texts) == 0 {
		log.Info().Msg("No chunks with text to embed")
		return 0, nil
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	for j, pos := range positions {
		chunks[pos].Embedding = vectors[j]
	}
	log.Debug().Int("chunks", len(texts)).Msg("Embedded chunks")
	return len(texts), nil
}

// EmbedQuery embeds one search query.
func EmbedQuery(ctx context.Context, embedder embeddings.Embedder, query string) ([]float32, error) {
	v, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	return v, nil
}
