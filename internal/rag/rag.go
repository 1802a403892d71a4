package rag

import (
	"context"
	"fmt"
	"strings"

	"document-index/internal/graphstore"
	"document-index/internal/llmservice"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// VectorSearcher is the read side of the vector store service.
type VectorSearcher interface {
	Search(ctx context.Context, query string, k int, filter models.SearchFilter) (*models.SearchResponse, error)
}

// FactSearcher is the read side of the graph store service.
type FactSearcher interface {
	Search(ctx context.Context, scope graphstore.Scope, text string) (string, error)
}

// Request names the query and the scope it runs in. Document may be empty
// to search all of the user's documents; graph facts then are skipped.
type Request struct {
	UserID   string
	Document string
	Query    string
	K        int
	Answer   bool
}

type RAG struct {
	vectors VectorSearcher
	facts   FactSearcher
	llm     llms.Model
}

// NewRAG wires the retrieval facade. facts and llm may be nil.
func NewRAG(vectors VectorSearcher, facts FactSearcher, llm llms.Model) *RAG {
	return &RAG{vectors: vectors, facts: facts, llm: llm}
}

// Query searches both indexes for the request scope and, when asked,
// generates an answer from the combined context. A non-nil stream receives
// the answer as it is produced.
func (r *RAG) Query(ctx context.Context, req Request, stream func(ctx context.Context, chunk []byte) error) (*models.PromptResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", models.ErrInvalidInput)
	}
	if req.Answer && r.llm == nil {
		return nil, fmt.Errorf("%w: no chat model configured for answers", models.ErrInvalidInput)
	}

	search, err := r.vectors.Search(ctx, req.Query, req.K, models.SearchFilter{UserID: req.UserID, FileName: req.Document})
	if err != nil {
		return nil, err
	}

	facts := models.NoFactsFound
	if r.facts != nil && req.UserID != "" && req.Document != "" {
		facts, err = r.facts.Search(ctx, graphstore.Scope{UserID: req.UserID, Document: req.Document}, req.Query)
		if err != nil {
			return nil, err
		}
	}

	resp := &models.PromptResponse{Query: req.Query, Search: search, Facts: facts}
	log.Info().Str("user_id", req.UserID).Str("document", req.Document).Int("hits", search.Count).Msg("Retrieved context")
	if !req.Answer {
		return resp, nil
	}

	var opts []llms.CallOption
	if stream != nil {
		opts = append(opts, llms.WithStreamingFunc(stream))
	}
	prompt := fmt.Sprintf(models.AnswerPromptTemplate, search.Context, facts, req.Query)
	answer, err := llmservice.Complete(ctx, r.llm, prompt, opts...)
	if err != nil {
		return nil, err
	}
	resp.Answer = strings.TrimSpace(answer)
	return resp, nil
}
