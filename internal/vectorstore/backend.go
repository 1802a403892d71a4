// Package vectorstore owns the chunk collection: schema reconciliation,
// validated upserts, scored search with citations, and scoped deletes.
package vectorstore

import (
	"context"

	"document-index/internal/models"
)

type Distance string

const DistanceCosine Distance = "cosine"

// Schema is the declared vector layout of a collection.
type Schema struct {
	Dimension int      `yaml:"dimension"`
	Distance  Distance `yaml:"distance"`
}

// Query is one similarity search against a backend. Backends return at most
// Limit hits, none scoring below MinScore, matching every Filter field exactly.
type Query struct {
	Vector   []float32
	Limit    int
	MinScore float32
	Filter   map[string]string
}

// Backend is a vector database. Describe returns models.ErrNotFound when the
// collection does not exist; connectivity failures wrap models.ErrStoreUnavailable.
type Backend interface {
	Name() string
	Describe(ctx context.Context, collection string) (Schema, error)
	Recreate(ctx context.Context, collection string, schema Schema) error
	Upsert(ctx context.Context, collection string, records []models.VectorRecord) error
	Search(ctx context.Context, collection string, q Query) ([]models.ScoredRecord, error)
	// Delete removes every record matching filter and returns how many went.
	// Backends that only acknowledge return their best estimate.
	Delete(ctx context.Context, collection string, filter map[string]string) (int, error)
	Count(ctx context.Context, collection string) (int, error)
}
