package models

// VectorRecord is the unit written to a vector backend.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredRecord is one backend search hit.
type ScoredRecord struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// SearchResult is a page-content/metadata pair with score and store id attached.
type SearchResult struct {
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`
}

// Citation is the programmatic form of one formatted context entry.
type Citation struct {
	Subject          string         `json:"subject"`
	DocumentName     string         `json:"document_name"`
	PageNumber       any            `json:"page_number,omitempty"`
	ContentPreview   string         `json:"content_preview"`
	FullContent      string         `json:"full_content"`
	Score            float32        `json:"score"`
	VectorID         string         `json:"vector_id"`
	OriginalMetadata map[string]any `json:"original_metadata"`
}

// SearchResponse bundles everything a search returns.
type SearchResponse struct {
	Count     int                 `json:"count"`
	Context   string              `json:"context"`
	Citations map[string]Citation `json:"citations"`
	Documents []SearchResult      `json:"documents"`
}

// SearchFilter restricts a search to exact payload matches. Empty fields are ignored.
type SearchFilter struct {
	UserID   string
	FileName string
}

// Fields returns the non-empty filter fields keyed by payload key.
func (f SearchFilter) Fields() map[string]string {
	out := map[string]string{}
	if f.UserID != "" {
		out[KeyUserID] = f.UserID
	}
	if f.FileName != "" {
		out[KeyFileName] = f.FileName
	}
	return out
}

// PromptResponse is the combined result of one retrieval over both indexes.
type PromptResponse struct {
	Query  string          `json:"query"`
	Search *SearchResponse `json:"search"`
	Facts  string          `json:"facts"`
	Answer string          `json:"answer,omitempty"`
}
