package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-index/internal/models"
	"document-index/internal/nlp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	got      string
	entities map[string][]string
	err      error
}

func (s *stubRecognizer) Entities(_ context.Context, text string) (map[string][]string, error) {
	s.got = text
	return s.entities, s.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractDefaultsAndOSStats(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello world")
	meta := New(nlp.Disabled(), 0).Extract(context.Background(), Input{
		Source:        models.SourceDocument{UserID: "u1", DocumentName: "notes.txt", FilePath: path},
		FileType:      FileType(path),
		ProcessedText: "first block\n\nsecond block\n\nthird",
	})

	assert.Equal(t, "u1", meta.UserID)
	assert.Equal(t, "notes.txt", meta.Title)
	assert.Equal(t, models.DefaultAuthor, meta.Author)
	assert.Equal(t, "txt", meta.FileType)
	assert.Equal(t, "txt", meta.SourceType)
	assert.Equal(t, path, meta.FilePath)
	assert.Equal(t, int64(11), meta.FileSizeBytes)
	assert.NotEmpty(t, meta.CreationDateOS)
	assert.NotEmpty(t, meta.ModificationDateOS)
	assert.Equal(t, 3, meta.PageCount)
	assert.Equal(t, "Paragraphs", meta.StructuralElements)
	assert.Empty(t, meta.NamedEntities)
	assert.False(t, meta.OCRApplied)
}

func TestExtractPrefersParserProperties(t *testing.T) {
	path := writeFile(t, "report.pdf", "%PDF")
	meta := New(nlp.Disabled(), 0).Extract(context.Background(), Input{
		Source: models.SourceDocument{UserID: "u1", DocumentName: "report.pdf", FilePath: path},
		Result: models.ExtractionResult{
			Tables:          []models.Table{{Rows: [][]string{{"a"}}}},
			PossiblyScanned: true,
			Properties: models.DocumentProperties{
				Title: "Annual Report", Author: "Jane Roe",
				Created: "2024-01-02T03:04:05Z", Modified: "2024-02-02T03:04:05Z", PageCount: 7,
			},
		},
		FileType:      "pdf",
		ProcessedText: "text",
		OCRApplied:    true,
	})

	assert.Equal(t, "Annual Report", meta.Title)
	assert.Equal(t, "Jane Roe", meta.Author)
	assert.Equal(t, 7, meta.PageCount)
	assert.Equal(t, "Paragraphs, Tables", meta.StructuralElements)
	assert.Empty(t, meta.CreationDateOS)
	assert.Empty(t, meta.ModificationDateOS)
	assert.True(t, meta.IsScanned)
	assert.True(t, meta.OCRApplied)
}

func TestExtractTextOverride(t *testing.T) {
	meta := New(nlp.Disabled(), 0).Extract(context.Background(), Input{
		Source:        models.SourceDocument{UserID: "u1", DocumentName: "pasted", TextOverride: "raw"},
		FileType:      "",
		ProcessedText: "raw",
	})
	assert.Equal(t, "virtual://pasted", meta.FilePath)
	assert.Equal(t, models.TextOverrideType, meta.FileType)
	assert.Equal(t, models.TextOverrideType, meta.SourceType)
	assert.Zero(t, meta.FileSizeBytes)
	assert.Equal(t, 1, meta.PageCount)
}

func TestExtractRecognizesEntitiesOnCappedPrefix(t *testing.T) {
	rec := &stubRecognizer{entities: map[string][]string{"PERSON": {"Ada"}, "ORG": {}}}
	text := strings.Repeat("a", 30)
	meta := New(nlp.New(nil, rec), 10).Extract(context.Background(), Input{
		Source:        models.SourceDocument{DocumentName: "x", TextOverride: text},
		ProcessedText: text,
	})
	assert.Len(t, rec.got, 10)
	assert.Equal(t, map[string][]string{"PERSON": {"Ada"}}, meta.NamedEntities)
}

func TestExtractIgnoresRecognizerFailure(t *testing.T) {
	rec := &stubRecognizer{err: errors.New("model down")}
	meta := New(nlp.New(nil, rec), 0).Extract(context.Background(), Input{
		Source:        models.SourceDocument{DocumentName: "x", TextOverride: "t"},
		ProcessedText: "t",
	})
	assert.NotNil(t, meta.NamedEntities)
	assert.Empty(t, meta.NamedEntities)
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "ab", truncate("abé", 3))
	assert.Equal(t, "abé", truncate("abé", 4))
}
