package vectorstore

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"document-index/internal/models"
)

const previewLength = 200

// FormatResults turns scored hits, best first, into documents, a numbered
// context string and the matching citation map.
func FormatResults(hits []models.ScoredRecord) *models.SearchResponse {
	resp := &models.SearchResponse{
		Context:   models.NoContextFound,
		Citations: map[string]models.Citation{},
		Documents: []models.SearchResult{},
	}
	if len(hits) == 0 {
		return resp
	}

	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		meta := maps.Clone(h.Payload)
		if meta == nil {
			meta = map[string]any{}
		}
		meta[models.KeyVectorID] = h.ID
		meta[models.KeyScore] = h.Score
		content := payloadString(meta, models.KeyChunkText)
		resp.Documents = append(resp.Documents, models.SearchResult{Content: content, Metadata: meta})

		index := strconv.Itoa(i + 1)
		subject := firstString(meta, "Unknown Subject", models.KeyTitle, "subject")
		docName := firstString(meta, "N/A", models.KeyOriginalName, models.KeyFileName)
		page := meta[models.KeyPageNumber]
		pageInfo := ""
		if present(page) {
			pageInfo = fmt.Sprintf(" (Page: %v)", page)
		}
		contentPreview := previewText(content)

		parts = append(parts, fmt.Sprintf("[%s] Score: %.4f | Source: %s%s | Subject: %s\nContent: %s",
			index, h.Score, docName, pageInfo, subject, contentPreview))
		resp.Citations[index] = models.Citation{
			Subject:          subject,
			DocumentName:     docName,
			PageNumber:       page,
			ContentPreview:   contentPreview,
			FullContent:      content,
			Score:            h.Score,
			VectorID:         h.ID,
			OriginalMetadata: meta,
		}
	}
	resp.Count = len(resp.Documents)
	resp.Context = strings.Join(parts, models.ContextSeparator)
	return resp
}

func previewText(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}

func payloadString(p map[string]any, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

func firstString(p map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		if s := payloadString(p, k); s != "" {
			return s
		}
	}
	return fallback
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}
