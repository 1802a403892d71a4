// Package pipeline runs one document from extraction to embedded chunks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"document-index/internal/chunker"
	"document-index/internal/config"
	"document-index/internal/embedding"
	"document-index/internal/metadata"
	"document-index/internal/metrics"
	"document-index/internal/models"
	"document-index/internal/nlp"
	"document-index/internal/normalize"
	"document-index/internal/ocr"
	"document-index/internal/parser"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// Provider carries the external capabilities, built once at startup.
// A nil OCR engine means OCR is not available.
type Provider struct {
	Embedder embeddings.Embedder
	NLP      nlp.Pipeline
	OCR      ocr.Engine
}

type Status string

const (
	StatusIndexed Status = "indexed"
	StatusEmpty   Status = "empty"
)

// Result is the output of one ingestion run.
type Result struct {
	Status Status
	// Chunks carry embeddings and are ready for the vector store.
	Chunks []models.Chunk
	// RawText is the reconstructed text the chunks were cut from.
	RawText string
	// GraphChunks are copies of Chunks without embeddings, for graph derivation.
	GraphChunks []models.Chunk
	Metadata    models.DocumentMetadata
}

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline sequences extraction, OCR, normalisation, layout, metadata,
// chunking and embedding. It holds no per-document state.
type Pipeline struct {
	provider      Provider
	parser        *parser.Parser
	normalizer    *normalize.Normalizer
	metadata      *metadata.Extractor
	chunker       *chunker.Chunker
	charsPerImage int
	metrics       *metrics.Metrics
}

func New(cfg *config.Config, provider Provider, opts ...Option) (*Pipeline, error) {
	if provider.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", models.ErrEmbeddingUnavailable)
	}
	charsPerImage := cfg.Scan.OCRCharsPerImage
	if charsPerImage <= 0 {
		charsPerImage = 200
	}
	p := &Pipeline{
		provider:      provider,
		parser:        parser.New(cfg.Scan),
		normalizer:    normalize.New(provider.NLP),
		metadata:      metadata.New(provider.NLP, cfg.RAG.MaxTextLengthForNER),
		chunker:       chunker.New(chunker.WithChunkSize(cfg.RAG.ChunkSize), chunker.WithOverlap(cfg.RAG.ChunkOverlap)),
		charsPerImage: charsPerImage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// IngestFile processes a file stored at filePath.
func (p *Pipeline) IngestFile(ctx context.Context, userID, documentName, filePath string) (*Result, error) {
	return p.Ingest(ctx, models.SourceDocument{UserID: userID, DocumentName: documentName, FilePath: filePath})
}

// IngestText processes raw text, bypassing extraction and OCR.
func (p *Pipeline) IngestText(ctx context.Context, userID, documentName, text string) (*Result, error) {
	return p.Ingest(ctx, models.SourceDocument{UserID: userID, DocumentName: documentName, TextOverride: text})
}

// Ingest runs the whole pipeline for src. Nothing-to-index outcomes return a
// Result with StatusEmpty and a nil error. A missing OCR engine when OCR is
// required is returned as models.ErrOCRUnavailable.
func (p *Pipeline) Ingest(ctx context.Context, src models.SourceDocument) (*Result, error) {
	start := time.Now()
	defer p.metrics.ObserveStage("ingest", start)

	res, err := p.ingest(ctx, src)
	if err != nil {
		log.Error().Err(err).Str("user_id", src.UserID).Str("file", src.DocumentName).Msg("Ingestion failed")
		p.metrics.DocumentIngested("failed")
		return nil, err
	}
	p.metrics.DocumentIngested(string(res.Status))
	log.Info().
		Str("user_id", src.UserID).
		Str("file", src.DocumentName).
		Str("status", string(res.Status)).
		Int("chunks", len(res.Chunks)).
		Dur("took", time.Since(start)).
		Msg("Ingestion finished")
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, src models.SourceDocument) (*Result, error) {
	if src.DocumentName == "" {
		return nil, fmt.Errorf("%w: document name is required", models.ErrInvalidInput)
	}
	override := src.TextOverride != ""
	if !override {
		if src.FilePath == "" {
			return nil, fmt.Errorf("%w: file path or text is required", models.ErrInvalidInput)
		}
		if _, err := os.Stat(src.FilePath); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
	}

	fileType := metadata.FileType(src.DocumentName)
	if override {
		log.Info().Str("file", src.DocumentName).Msg("Using text override")
		return p.finish(ctx, src, models.ExtractionResult{Text: src.TextOverride}, fileType, false)
	}

	stageStart := time.Now()
	extracted, format := p.parser.Extract(ctx, src.FilePath)
	p.metrics.ObserveStage("extract", stageStart)
	if fileType == "" {
		fileType = metadata.FileType(src.FilePath)
	}

	ocrText, applied, err := p.runOCR(ctx, extracted, format == parser.FormatImage, src.DocumentName)
	if err != nil {
		return nil, err
	}
	if applied {
		extracted.Text = joinNonEmpty(extracted.Text, ocrText)
	}
	return p.finish(ctx, src, extracted, fileType, applied)
}

// runOCR returns the recognised text and whether any image yielded text.
func (p *Pipeline) runOCR(ctx context.Context, extracted models.ExtractionResult, imageInput bool, name string) (string, bool, error) {
	if !ocr.ShouldRun(extracted, imageInput, p.charsPerImage) {
		return "", false, nil
	}
	stageStart := time.Now()
	defer p.metrics.ObserveStage("ocr", stageStart)

	text, recognized, err := ocr.Run(ctx, p.provider.OCR, extracted.Images, name)
	if err != nil {
		if errors.Is(err, models.ErrOCRUnavailable) {
			p.metrics.OCRRun("unavailable")
			log.Error().Str("file", name).Msg("OCR required but no engine is available")
		}
		return "", false, err
	}
	if recognized == 0 || text == "" {
		p.metrics.OCRRun("empty")
		return "", false, nil
	}
	p.metrics.OCRRun("ok")
	return text, true, nil
}

func (p *Pipeline) finish(ctx context.Context, src models.SourceDocument, extracted models.ExtractionResult, fileType string, ocrApplied bool) (*Result, error) {
	combined := strings.TrimSpace(extracted.Text)
	if combined == "" && len(extracted.Tables) == 0 {
		log.Warn().Str("file", src.DocumentName).Msg("No text or tables after extraction, nothing to index")
		return &Result{Status: StatusEmpty}, nil
	}

	stageStart := time.Now()
	cleaned := p.normalizer.Clean(ctx, combined, src.DocumentName)
	p.metrics.ObserveStage("normalize", stageStart)
	if cleaned == "" && len(extracted.Tables) == 0 {
		log.Warn().Str("file", src.DocumentName).Msg("No text left after cleaning and no tables, nothing to index")
		return &Result{Status: StatusEmpty}, nil
	}

	text := normalize.Reconstruct(cleaned, extracted.Tables, src.DocumentName)
	meta := p.metadata.Extract(ctx, metadata.Input{
		Source:        src,
		Result:        extracted,
		FileType:      fileType,
		ProcessedText: text,
		OCRApplied:    ocrApplied,
	})

	chunks, err := p.chunker.Chunk(text, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(chunks) == 0 {
		log.Warn().Str("file", src.DocumentName).Msg("No chunks produced")
		return &Result{Status: StatusEmpty, RawText: text, Metadata: meta}, nil
	}

	graphChunks := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.Metadata = c.Metadata.Clone()
		graphChunks[i] = c
	}

	stageStart = time.Now()
	if _, err := embedding.EmbedChunks(ctx, p.provider.Embedder, chunks); err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	p.metrics.ObserveStage("embed", stageStart)

	return &Result{
		Status:      StatusIndexed,
		Chunks:      chunks,
		RawText:     text,
		GraphChunks: graphChunks,
		Metadata:    meta,
	}, nil
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n\n"))
}
