// Package chunker splits reconstructed document text into indexed chunks.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"document-index/internal/helper"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 100
)

// Separators are tried in order: paragraph, line, sentence end, space, character.
var Separators = []string{"\n\n", "\n", ". ", " ", ""}

var referenceRe = regexp.MustCompile(models.ReferenceRegex)

type Option func(*Chunker)

func WithChunkSize(n int) Option {
	return func(c *Chunker) { c.size = n }
}

func WithOverlap(n int) Option {
	return func(c *Chunker) { c.overlap = n }
}

type Chunker struct {
	size    int
	overlap int
}

func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, o := range opts {
		o(c)
	}
	if c.size <= 0 {
		c.size = DefaultChunkSize
	}
	if c.overlap < 0 || c.overlap >= c.size {
		c.overlap = 0
	}
	return c
}

func (c *Chunker) splitter() textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.size),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators(Separators),
		textsplitter.WithKeepSeparator(true),
	)
}

// ReferenceBase turns a document name into the stem used by chunk reference names.
func ReferenceBase(documentName string) string {
	return referenceRe.ReplaceAllString(helper.FileStem(documentName), "_")
}

// Chunk splits text and returns one Chunk per non-blank segment, each with a
// fresh id and its own copy of meta. Blank segments are dropped and not counted.
func (c *Chunker) Chunk(text string, meta models.DocumentMetadata) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		log.Warn().Str("file", meta.FileName).Msg("No text to chunk")
		return nil, nil
	}

	segments, err := c.splitter().SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	base := ReferenceBase(meta.FileName)
	chunks := make([]models.Chunk, 0, len(segments))
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		index := len(chunks)
		chunks = append(chunks, models.Chunk{
			ID:            id,
			Text:          segment,
			ReferenceName: fmt.Sprintf(models.ChunkRefTemplate, base, index),
			Index:         index,
			CharCount:     utf8.RuneCountInString(segment),
			Metadata:      meta.Clone(),
		})
	}

	log.Info().Str("file", meta.FileName).Int("chunks", len(chunks)).Int("chunk_size", c.size).Int("overlap", c.overlap).Msg("Chunked document")
	return chunks, nil
}
