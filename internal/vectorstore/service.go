package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"document-index/internal/embedding"
	"document-index/internal/metrics"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// State is the lifecycle of the collection as seen by the service.
type State int32

const (
	StateAbsent State = iota
	StateReconciling
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReconciling:
		return "reconciling"
	case StateReady:
		return "ready"
	default:
		return "absent"
	}
}

type Options struct {
	Collection string
	// Dimension is the document embedding dimension the collection must have.
	Dimension int
	// QueryDimension is the configured query model dimension; 0 measures it from the model.
	QueryDimension int
	SearchK        int
	MinScore       float32
	Metrics        *metrics.Metrics
}

// UpsertResult counts accepted and skipped chunks of one upsert.
type UpsertResult struct {
	Accepted         int `json:"accepted"`
	SkippedNoVector  int `json:"skipped_no_vector"`
	SkippedInvalid   int `json:"skipped_invalid"`
	SkippedDimension int `json:"skipped_dimension"`
}

func (r UpsertResult) Skipped() int {
	return r.SkippedNoVector + r.SkippedInvalid + r.SkippedDimension
}

type Service struct {
	backend Backend
	query   embeddings.Embedder
	opts    Options
	schema  Schema

	state atomic.Int32
	mu    sync.Mutex
}

// New checks the query model against the document dimension and reconciles
// the collection. A dimension mismatch is returned as models.ErrDimensionMismatch.
// A nil query embedder disables Search.
func New(ctx context.Context, backend Backend, query embeddings.Embedder, opts Options) (*Service, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", models.ErrInvalidInput)
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", models.ErrInvalidInput)
	}
	if opts.SearchK <= 0 {
		opts.SearchK = 5
	}
	if query != nil {
		if err := embedding.CheckQueryDimension(ctx, query, opts.QueryDimension, opts.Dimension); err != nil {
			log.Error().Err(err).Str("collection", opts.Collection).Msg("Query model is incompatible with the collection")
			return nil, err
		}
	}

	s := &Service{
		backend: backend,
		query:   query,
		opts:    opts,
		schema:  Schema{Dimension: opts.Dimension, Distance: DistanceCosine},
	}
	if err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) State() State { return State(s.state.Load()) }

func (s *Service) Collection() string { return s.opts.Collection }

func (s *Service) Dimension() int { return s.schema.Dimension }

// Reconcile makes the collection match the expected schema. An absent or
// mismatched collection is dropped and recreated; its records are lost.
func (s *Service) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(StateReconciling))
	logger := log.With().Str("collection", s.opts.Collection).Str("backend", s.backend.Name()).Logger()

	current, err := s.backend.Describe(ctx, s.opts.Collection)
	switch {
	case errors.Is(err, models.ErrNotFound):
		logger.Info().Int("dimension", s.schema.Dimension).Msg("Collection not found, creating")
	case err != nil:
		s.state.Store(int32(StateAbsent))
		return fmt.Errorf("failed to describe collection: %w", err)
	case current == s.schema:
		logger.Info().Int("dimension", current.Dimension).Str("distance", string(current.Distance)).Msg("Collection schema is compatible")
		s.state.Store(int32(StateReady))
		return nil
	default:
		logger.Warn().
			Int("dimension", current.Dimension).
			Str("distance", string(current.Distance)).
			Int("expected_dimension", s.schema.Dimension).
			Msg("Collection schema differs, recreating")
	}

	if err := s.backend.Recreate(ctx, s.opts.Collection, s.schema); err != nil {
		s.state.Store(int32(StateAbsent))
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	s.state.Store(int32(StateReady))
	return nil
}

func (s *Service) ensureReady(ctx context.Context) error {
	if s.State() == StateReady {
		return nil
	}
	return s.Reconcile(ctx)
}

// Upsert writes every chunk with a valid vector in one batch. Chunks without a
// vector, with NaN or infinite components, or of the wrong dimension are
// skipped and counted.
func (s *Service) Upsert(ctx context.Context, chunks []models.Chunk) (UpsertResult, error) {
	var res UpsertResult
	if len(chunks) == 0 {
		log.Warn().Str("collection", s.opts.Collection).Msg("Upsert called with no chunks")
		return res, nil
	}
	if err := s.ensureReady(ctx); err != nil {
		return res, err
	}

	records := make([]models.VectorRecord, 0, len(chunks))
	for _, c := range chunks {
		switch {
		case len(c.Embedding) == 0:
			log.Warn().Str("chunk_id", c.ID).Str("file", c.Metadata.FileName).Msg("Chunk has no embedding, skipping")
			res.SkippedNoVector++
			continue
		case !finite(c.Embedding):
			log.Warn().Str("chunk_id", c.ID).Str("file", c.Metadata.FileName).Msg("Chunk embedding is not numeric, skipping")
			res.SkippedInvalid++
			continue
		case len(c.Embedding) != s.schema.Dimension:
			log.Error().
				Str("chunk_id", c.ID).
				Str("file", c.Metadata.FileName).
				Int("dimension", len(c.Embedding)).
				Int("expected", s.schema.Dimension).
				Msg("Chunk embedding has the wrong dimension, skipping")
			res.SkippedDimension++
			continue
		}
		records = append(records, models.VectorRecord{ID: c.ID, Vector: c.Embedding, Payload: c.Payload()})
	}

	s.opts.Metrics.ChunksSkipped("no_vector", res.SkippedNoVector)
	s.opts.Metrics.ChunksSkipped("invalid", res.SkippedInvalid)
	s.opts.Metrics.ChunksSkipped("dimension", res.SkippedDimension)
	if len(records) == 0 {
		log.Warn().Str("collection", s.opts.Collection).Msg("No valid records to upsert")
		return res, nil
	}

	start := time.Now()
	if err := s.backend.Upsert(ctx, s.opts.Collection, records); err != nil {
		return res, fmt.Errorf("failed to upsert %d records: %w", len(records), err)
	}
	s.opts.Metrics.ObserveStage("vector_upsert", start)
	s.opts.Metrics.ChunksUpserted(len(records))

	res.Accepted = len(records)
	log.Info().Str("collection", s.opts.Collection).Int("accepted", res.Accepted).Int("skipped", res.Skipped()).Msg("Upserted chunks")
	return res, nil
}

// Search embeds query once and returns up to k hits scoring at least the
// configured floor, best first. k <= 0 uses the configured default. No hits
// yields Count 0 and the no-context sentinel as Context.
func (s *Service) Search(ctx context.Context, query string, k int, filter models.SearchFilter) (*models.SearchResponse, error) {
	if s.query == nil {
		return nil, fmt.Errorf("%w: no query embedder configured", models.ErrEmbeddingUnavailable)
	}
	if k <= 0 {
		k = s.opts.SearchK
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	log.Info().Str("query", preview(query, 50)).Int("k", k).Interface("filter", filter.Fields()).Msg("Searching")
	vector, err := embedding.EmbedQuery(ctx, s.query, query)
	if err != nil {
		return nil, err
	}
	if len(vector) != s.schema.Dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, collection uses %d", models.ErrDimensionMismatch, len(vector), s.schema.Dimension)
	}

	start := time.Now()
	hits, err := s.backend.Search(ctx, s.opts.Collection, Query{
		Vector:   vector,
		Limit:    k,
		MinScore: s.opts.MinScore,
		Filter:   filter.Fields(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search collection: %w", err)
	}
	s.opts.Metrics.ObserveStage("vector_search", start)

	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= s.opts.MinScore {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > k {
		kept = kept[:k]
	}
	s.opts.Metrics.Search("vector", len(kept))
	log.Info().Int("hits", len(kept)).Msg("Search finished")
	return FormatResults(kept), nil
}

// Delete removes every record of (userID, documentName).
func (s *Service) Delete(ctx context.Context, userID, documentName string) (int, error) {
	if userID == "" || documentName == "" {
		return 0, fmt.Errorf("%w: user id and document name are required", models.ErrInvalidInput)
	}
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}
	n, err := s.backend.Delete(ctx, s.opts.Collection, models.SearchFilter{UserID: userID, FileName: documentName}.Fields())
	if err != nil {
		return 0, fmt.Errorf("failed to delete vectors: %w", err)
	}
	log.Info().Str("user_id", userID).Str("file", documentName).Int("deleted", n).Msg("Deleted document vectors")
	return n, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}
	return s.backend.Count(ctx, s.opts.Collection)
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
