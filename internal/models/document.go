package models

import (
	"image"
	"maps"
	"slices"
)

// Table is a row-major table pulled out of a source document.
// Header is empty when no row could be promoted.
type Table struct {
	Header []string
	Rows   [][]string
}

// Image is an embedded or standalone raster image awaiting OCR.
// Either Data (encoded bytes) or Decoded is set.
type Image struct {
	Name    string
	Data    []byte
	Decoded image.Image
}

// DocumentProperties are the format-specific attributes a parser could read.
type DocumentProperties struct {
	Title     string
	Author    string
	Created   string
	Modified  string
	PageCount int
}

// ExtractionResult is the output of one parser run. It is never persisted.
type ExtractionResult struct {
	Text            string
	Tables          []Table
	Images          []Image
	PossiblyScanned bool
	Properties      DocumentProperties
}

// Empty reports whether nothing usable was extracted.
func (r ExtractionResult) Empty() bool {
	return r.Text == "" && len(r.Tables) == 0 && len(r.Images) == 0
}

// SourceDocument identifies one ingestion request.
type SourceDocument struct {
	UserID       string
	DocumentName string
	FilePath     string
	TextOverride string
}

// DocumentMetadata is attached to every chunk of one document.
type DocumentMetadata struct {
	UserID             string
	OriginalName       string
	FileName           string
	FilePath           string
	FileType           string
	Title              string
	Author             string
	CreationDate       string
	ModificationDate   string
	PageCount          int
	CharCount          int
	NamedEntities      map[string][]string
	StructuralElements string
	IsScanned          bool
	OCRApplied         bool
	FileSizeBytes      int64
	CreationDateOS     string
	ModificationDateOS string
	SourceType         string
}

// Clone returns a deep copy; chunks never share the entity map.
func (m DocumentMetadata) Clone() DocumentMetadata {
	out := m
	if m.NamedEntities != nil {
		out.NamedEntities = make(map[string][]string, len(m.NamedEntities))
		for label, values := range m.NamedEntities {
			out.NamedEntities[label] = slices.Clone(values)
		}
	}
	return out
}

// Payload flattens the metadata into store-friendly values.
// Nested values only use map[string]any and []any.
func (m DocumentMetadata) Payload() map[string]any {
	entities := make(map[string]any, len(m.NamedEntities))
	for _, label := range slices.Sorted(maps.Keys(m.NamedEntities)) {
		values := make([]any, 0, len(m.NamedEntities[label]))
		for _, v := range m.NamedEntities[label] {
			values = append(values, v)
		}
		entities[label] = values
	}

	p := map[string]any{
		KeyUserID:        m.UserID,
		KeyOriginalName:  m.OriginalName,
		KeyFileName:      m.FileName,
		KeyFilePath:      m.FilePath,
		KeyFileType:      m.FileType,
		KeyTitle:         m.Title,
		KeyAuthor:        m.Author,
		KeyCreationDate:  m.CreationDate,
		KeyModDate:       m.ModificationDate,
		KeyPageCount:     m.PageCount,
		KeyCharCount:     m.CharCount,
		KeyNamedEntities: entities,
		KeyStructural:    m.StructuralElements,
		KeyIsScanned:     m.IsScanned,
		KeyOCRApplied:    m.OCRApplied,
		KeyFileSize:      m.FileSizeBytes,
		KeySourceType:    m.SourceType,
	}
	if m.CreationDateOS != "" {
		p[KeyCreationDateOS] = m.CreationDateOS
	}
	if m.ModificationDateOS != "" {
		p[KeyModDateOS] = m.ModificationDateOS
	}
	return p
}

// Chunk is the atomic indexed unit.
type Chunk struct {
	ID            string
	Text          string
	ReferenceName string
	Index         int
	CharCount     int
	Metadata      DocumentMetadata
	Embedding     []float32
}

// Payload is the flattened vector-record payload of the chunk.
func (c Chunk) Payload() map[string]any {
	p := c.Metadata.Payload()
	p[KeyChunkID] = c.ID
	p[KeyChunkRefName] = c.ReferenceName
	p[KeyChunkIndex] = c.Index
	p[KeyChunkCharCount] = c.CharCount
	p[KeyChunkText] = c.Text
	return p
}
