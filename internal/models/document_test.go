package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneCopiesEntities(t *testing.T) {
	m := DocumentMetadata{NamedEntities: map[string][]string{"ORG": {"Acme"}}}
	c := m.Clone()
	c.NamedEntities["ORG"][0] = "Other"
	c.NamedEntities["GPE"] = []string{"Paris"}

	assert.Equal(t, []string{"Acme"}, m.NamedEntities["ORG"])
	assert.NotContains(t, m.NamedEntities, "GPE")
}

func TestChunkPayload(t *testing.T) {
	c := Chunk{
		ID:            "id-1",
		Text:          "hello",
		ReferenceName: "a.pdf_chunk_0",
		Index:         0,
		CharCount:     5,
		Metadata: DocumentMetadata{
			UserID:        "u1",
			FileName:      "a.pdf",
			Author:        "Unknown",
			PageCount:     2,
			NamedEntities: map[string][]string{"ORG": {"Acme", "Globex"}},
		},
	}
	p := c.Payload()

	assert.Equal(t, "u1", p[KeyUserID])
	assert.Equal(t, "hello", p[KeyChunkText])
	assert.Equal(t, "a.pdf_chunk_0", p[KeyChunkRefName])
	assert.Equal(t, 2, p[KeyPageCount])
	assert.Equal(t, map[string]any{"ORG": []any{"Acme", "Globex"}}, p[KeyNamedEntities])
	assert.NotContains(t, p, KeyCreationDateOS)

	c.Metadata.CreationDateOS = "2024-01-01T00:00:00Z"
	assert.Equal(t, "2024-01-01T00:00:00Z", c.Payload()[KeyCreationDateOS])
}

func TestSearchFilterFields(t *testing.T) {
	assert.Empty(t, SearchFilter{}.Fields())
	assert.Equal(t, map[string]string{KeyUserID: "u1"}, SearchFilter{UserID: "u1"}.Fields())
	assert.Equal(t,
		map[string]string{KeyUserID: "u1", KeyFileName: "a.pdf"},
		SearchFilter{UserID: "u1", FileName: "a.pdf"}.Fields())
}

func TestExtractionResultEmpty(t *testing.T) {
	assert.True(t, ExtractionResult{}.Empty())
	assert.False(t, ExtractionResult{Tables: []Table{{}}}.Empty())
}
