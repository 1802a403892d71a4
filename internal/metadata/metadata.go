// Package metadata derives the document-level attributes copied onto every chunk.
package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"document-index/internal/models"
	"document-index/internal/nlp"

	"github.com/rs/zerolog/log"
)

const defaultMaxNERLength = 500000

// Extractor merges parser properties, filesystem stats and recognised entities.
type Extractor struct {
	nlp          nlp.Pipeline
	maxNERLength int
}

// New returns an extractor; maxNERLength <= 0 uses the default cap.
func New(p nlp.Pipeline, maxNERLength int) *Extractor {
	if maxNERLength <= 0 {
		maxNERLength = defaultMaxNERLength
	}
	return &Extractor{nlp: p, maxNERLength: maxNERLength}
}

// Input is everything the extractor looks at for one document.
type Input struct {
	Source        models.SourceDocument
	Result        models.ExtractionResult
	FileType      string
	ProcessedText string
	OCRApplied    bool
}

// FileType returns the lower-case extension of filePath without the dot.
func FileType(filePath string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
}

// Extract builds the DocumentMetadata of one ingestion run.
func (e *Extractor) Extract(ctx context.Context, in Input) models.DocumentMetadata {
	src := in.Source
	props := in.Result.Properties

	meta := models.DocumentMetadata{
		UserID:             src.UserID,
		OriginalName:       src.DocumentName,
		FileName:           src.DocumentName,
		FilePath:           src.FilePath,
		FileType:           in.FileType,
		Title:              props.Title,
		Author:             props.Author,
		CreationDate:       props.Created,
		ModificationDate:   props.Modified,
		PageCount:          props.PageCount,
		CharCount:          utf8.RuneCountInString(in.ProcessedText),
		NamedEntities:      map[string][]string{},
		StructuralElements: "Paragraphs",
		IsScanned:          in.Result.PossiblyScanned,
		OCRApplied:         in.OCRApplied,
	}
	if meta.Title == "" {
		meta.Title = src.DocumentName
	}
	if meta.Author == "" {
		meta.Author = models.DefaultAuthor
	}
	if len(in.Result.Tables) > 0 {
		meta.StructuralElements += ", Tables"
	}

	if src.TextOverride != "" {
		meta.FilePath = models.VirtualPathPref + src.DocumentName
		meta.FileType = models.TextOverrideType
		meta.SourceType = models.TextOverrideType
	} else {
		meta.SourceType = in.FileType
		e.statFile(&meta, src.FilePath)
	}

	if meta.PageCount == 0 && in.ProcessedText != "" {
		meta.PageCount = max(1, strings.Count(in.ProcessedText, "\n\n")+1)
	}

	e.recognize(ctx, &meta, in.ProcessedText)
	log.Info().Str("file", src.DocumentName).Int("page_count", meta.PageCount).Msg("Metadata extraction complete")
	return meta
}

// statFile fills size and, when the parser reported no dates, the OS timestamps.
// Go exposes no portable change time, so the creation stamp uses mtime as well.
func (e *Extractor) statFile(meta *models.DocumentMetadata, path string) {
	info, err := os.Stat(path)
	if err != nil {
		log.Warn().Err(err).Str("file", meta.FileName).Msg("Could not read OS metadata")
		return
	}
	meta.FileSizeBytes = info.Size()
	stamp := info.ModTime().UTC().Format(time.RFC3339)
	if meta.CreationDate == "" {
		meta.CreationDateOS = stamp
	}
	if meta.ModificationDate == "" {
		meta.ModificationDateOS = stamp
	}
}

func (e *Extractor) recognize(ctx context.Context, meta *models.DocumentMetadata, text string) {
	if text == "" || !e.nlp.CanRecognize() {
		log.Debug().Str("file", meta.FileName).Msg("Skipping NER")
		return
	}
	if len(text) > e.maxNERLength {
		text = truncate(text, e.maxNERLength)
	}
	entities, err := e.nlp.Entities(ctx, text)
	if err != nil {
		log.Error().Err(err).Str("file", meta.FileName).Msg("NER failed")
		return
	}
	total := 0
	for label, values := range entities {
		if len(values) == 0 {
			continue
		}
		meta.NamedEntities[label] = values
		total += len(values)
	}
	log.Info().Str("file", meta.FileName).Int("entities", total).Msg("Extracted named entities")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
