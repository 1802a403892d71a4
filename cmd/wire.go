package main

import (
	"context"
	"errors"
	"fmt"

	"document-index/internal/chromemdb"
	"document-index/internal/db"
	"document-index/internal/embedding"
	"document-index/internal/graphstore"
	"document-index/internal/llmservice"
	"document-index/internal/metrics"
	"document-index/internal/models"
	"document-index/internal/nlp"
	"document-index/internal/ocr"
	"document-index/internal/pipeline"
	"document-index/internal/qdrantdb"
	"document-index/internal/vectorstore"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

type closer func() error

// startMetrics serves /metrics in the background when metrics.addr is set.
func startMetrics(ctx context.Context) *metrics.Metrics {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	m := metrics.New()
	go func() {
		if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	return m
}

func openBackend(ctx context.Context) (vectorstore.Backend, closer, error) {
	switch cfg.Vector.Backend {
	case "chromem":
		m, err := chromemdb.NewVectorDBManager(cfg.Vector.Chromem, cfg.RAG.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		return m, func() error { return nil }, nil
	case "qdrant":
		s, err := qdrantdb.New(cfg.Vector.Qdrant)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "pgvector":
		s, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", models.ErrUnsupportedBackend, cfg.Vector.Backend)
	}
}

// openVectors builds the vector store service. The collection dimension
// comes from the document model; the query model is checked against it.
func openVectors(ctx context.Context, docEmbedder embeddings.Embedder, m *metrics.Metrics) (*vectorstore.Service, closer, error) {
	dim, err := embedding.Dimension(ctx, docEmbedder, cfg.EmbedLLM.Dimension)
	if err != nil {
		return nil, nil, err
	}
	queryEmbedder, err := embedding.NewEmbedder(cfg.QueryLLM)
	if err != nil {
		return nil, nil, err
	}
	backend, closeBackend, err := openBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := vectorstore.New(ctx, backend, queryEmbedder, vectorstore.Options{
		Collection:     cfg.RAG.Collection,
		Dimension:      dim,
		QueryDimension: cfg.QueryLLM.Dimension,
		SearchK:        cfg.RAG.SearchK,
		MinScore:       cfg.RAG.MinRelevanceScore,
		Metrics:        m,
	})
	if err != nil {
		return nil, nil, errors.Join(err, closeBackend())
	}
	log.Info().Str("backend", backend.Name()).Str("collection", svc.Collection()).Int("dimension", svc.Dimension()).Msg("Vector store ready")
	return svc, closeBackend, nil
}

func newNLP() (nlp.Pipeline, error) {
	var lemmatizer nlp.Lemmatizer
	if cfg.NLP.Lemmatize {
		a, err := nlp.NewAnalyzer()
		if err != nil {
			return nlp.Pipeline{}, err
		}
		lemmatizer = a
	}
	var recognizer nlp.EntityRecognizer
	if cfg.NLP.NER {
		llm, err := llmservice.NewModel(cfg.ChatLLM)
		if err != nil {
			return nlp.Pipeline{}, err
		}
		if llm != nil {
			recognizer = nlp.NewLLMRecognizer(llm)
		} else {
			log.Warn().Msg("No chat model configured, named entities are disabled")
		}
	}
	return nlp.New(lemmatizer, recognizer), nil
}

// ingestion bundles what a document run needs: the pipeline and its sink.
type ingestion struct {
	pipeline *pipeline.Pipeline
	vectors  *vectorstore.Service
	close    closer
}

func openIngestion(ctx context.Context, m *metrics.Metrics) (*ingestion, error) {
	docEmbedder, err := embedding.NewEmbedder(cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	lang, err := newNLP()
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(cfg, pipeline.Provider{
		Embedder: docEmbedder,
		NLP:      lang,
		OCR:      ocr.NewEngine(cfg.OCR),
	}, pipeline.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	vectors, closeVectors, err := openVectors(ctx, docEmbedder, m)
	if err != nil {
		return nil, err
	}
	return &ingestion{pipeline: p, vectors: vectors, close: closeVectors}, nil
}

// openStore opens only the vector store, for commands that do not ingest.
func openStore(ctx context.Context, m *metrics.Metrics) (*vectorstore.Service, closer, error) {
	docEmbedder, err := embedding.NewEmbedder(cfg.EmbedLLM)
	if err != nil {
		return nil, nil, err
	}
	return openVectors(ctx, docEmbedder, m)
}

func openGraph(m *metrics.Metrics) (*graphstore.Service, error) {
	return graphstore.Open(cfg.Graph, m)
}

func newRedis(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Worker.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to reach redis at %s: %v", models.ErrStoreUnavailable, cfg.Worker.RedisAddr, err)
	}
	return client, nil
}
