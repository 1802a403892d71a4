package graphstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"document-index/internal/config"
	"document-index/internal/metrics"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
)

const defaultTopK = 5

// Scope is the (user, document) pair every node and edge belongs to.
type Scope struct {
	UserID   string
	Document string
}

func (s Scope) validate() error {
	if strings.TrimSpace(s.UserID) == "" || strings.TrimSpace(s.Document) == "" {
		return fmt.Errorf("%w: user id and document name are required", models.ErrInvalidInput)
	}
	return nil
}

// Store persists the property graph.
type Store interface {
	MergeNodes(ctx context.Context, scope Scope, nodes []models.GraphNode) (int, error)
	MergeEdges(ctx context.Context, scope Scope, edges []models.GraphEdge) (int, error)
	Graph(ctx context.Context, scope Scope) (models.KnowledgeGraph, error)
	Node(ctx context.Context, scope Scope, id string) (models.GraphNode, error)
	Relations(ctx context.Context, scope Scope, id string) ([]Relation, error)
	DeleteScope(ctx context.Context, scope Scope) (int, error)
	Close() error
}

type Options struct {
	TopK    int
	Metrics *metrics.Metrics
}

type Service struct {
	store Store
	index *Index
	opts  Options
}

func New(store Store, index *Index, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	return &Service{store: store, index: index, opts: opts}
}

// Open builds the service on the sqlite store and bleve index named by cfg.
func Open(cfg config.GraphConfig, m *metrics.Metrics) (*Service, error) {
	store, err := OpenSQLite(cfg.Path)
	if err != nil {
		return nil, err
	}
	index, err := OpenIndex(cfg.IndexPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	return New(store, index, Options{TopK: cfg.TopK, Metrics: m}), nil
}

func (s *Service) Close() error {
	return errors.Join(s.index.Close(), s.store.Close())
}

type ingestOptions struct {
	replace bool
}

type IngestOption func(*ingestOptions)

// WithReplace deletes the scope before ingesting.
func WithReplace() IngestOption {
	return func(o *ingestOptions) { o.replace = true }
}

// SanitizeRelationship turns a relation label into an uppercase,
// underscore-delimited token.
func SanitizeRelationship(rel string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(rel), " ", "_"))
}

func cleanNodes(nodes []models.GraphNode) []models.GraphNode {
	out := make([]models.GraphNode, 0, len(nodes))
	for _, n := range nodes {
		n.ID = strings.TrimSpace(n.ID)
		if n.ID == "" {
			log.Warn().Interface("node", n).Msg("Skipping node with missing id")
			continue
		}
		if strings.TrimSpace(n.Type) == "" {
			n.Type = models.DefaultNodeType
		}
		out = append(out, n)
	}
	return out
}

func cleanEdges(edges []models.GraphEdge) []models.GraphEdge {
	out := make([]models.GraphEdge, 0, len(edges))
	for _, e := range edges {
		e.From = strings.TrimSpace(e.From)
		e.To = strings.TrimSpace(e.To)
		e.Relationship = SanitizeRelationship(e.Relationship)
		if e.From == "" || e.To == "" || e.Relationship == "" {
			log.Warn().Interface("edge", e).Msg("Skipping invalid edge")
			continue
		}
		out = append(out, e)
	}
	return out
}

// Ingest merges nodes, then edges, into the scope. Nodes merge on their id;
// edges merge on (from, to, relationship) and are skipped unless both
// endpoints exist in the scope. Replaying an ingestion changes nothing.
func (s *Service) Ingest(ctx context.Context, scope Scope, kg models.KnowledgeGraph, opts ...IngestOption) (models.GraphIngestResult, error) {
	var res models.GraphIngestResult
	if err := scope.validate(); err != nil {
		return res, err
	}
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.With().Str("user_id", scope.UserID).Str("document", scope.Document).Logger()

	if o.replace {
		if _, err := s.Delete(ctx, scope); err != nil {
			return res, err
		}
	}

	nodes := cleanNodes(kg.Nodes)
	if len(nodes) > 0 {
		// Index first: a node indexed but not stored is skipped by Search,
		// and replaying the ingestion repairs either half.
		if err := s.index.Put(scope, nodes); err != nil {
			logger.Error().Err(err).Msg("Failed to index nodes")
			return res, err
		}
		n, err := s.store.MergeNodes(ctx, scope, nodes)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to merge nodes")
			return res, err
		}
		res.NodesAffected = n
	}

	edges := cleanEdges(kg.Edges)
	if len(edges) > 0 {
		n, err := s.store.MergeEdges(ctx, scope, edges)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to merge edges")
			return res, err
		}
		res.EdgesAffected = n
	}

	s.opts.Metrics.GraphMerged(res.NodesAffected, res.EdgesAffected)
	logger.Info().Int("nodes", res.NodesAffected).Int("edges", res.EdgesAffected).Msg("Knowledge graph ingested")
	return res, nil
}

// Get returns the whole graph of the scope, or models.ErrNotFound when it
// holds neither nodes nor edges.
func (s *Service) Get(ctx context.Context, scope Scope) (models.KnowledgeGraph, error) {
	if err := scope.validate(); err != nil {
		return models.KnowledgeGraph{}, err
	}
	kg, err := s.store.Graph(ctx, scope)
	if err != nil {
		return kg, err
	}
	if len(kg.Nodes) == 0 && len(kg.Edges) == 0 {
		return kg, models.ErrNotFound
	}
	return kg, nil
}

// Delete removes all nodes and their edges in the scope and reports whether
// anything was removed.
func (s *Service) Delete(ctx context.Context, scope Scope) (bool, error) {
	if err := scope.validate(); err != nil {
		return false, err
	}
	n, err := s.store.DeleteScope(ctx, scope)
	if err != nil {
		return false, err
	}
	if err := s.index.DeleteScope(scope); err != nil {
		return false, err
	}
	log.Info().Str("user_id", scope.UserID).Str("document", scope.Document).Int("rows", n).Msg("Knowledge graph deleted")
	return n > 0, nil
}

// Search finds the top scoring nodes for text inside the scope, expands each
// one hop and renders the result as a fact list. When nothing matches the
// no-facts sentence is returned instead of an empty string.
func (s *Service) Search(ctx context.Context, scope Scope, text string) (string, error) {
	if err := scope.validate(); err != nil {
		return "", err
	}
	hits, err := s.index.Search(scope, text, s.opts.TopK)
	if err != nil {
		return "", err
	}

	var facts []string
	for _, h := range hits {
		hitScope := Scope{UserID: scope.UserID, Document: h.Document}
		node, err := s.store.Node(ctx, hitScope, h.NodeID)
		if errors.Is(err, models.ErrNotFound) {
			log.Warn().Str("node_id", h.NodeID).Msg("Indexed node is missing from the graph")
			continue
		}
		if err != nil {
			return "", err
		}
		rels, err := s.store.Relations(ctx, hitScope, node.ID)
		if err != nil {
			return "", err
		}
		facts = append(facts, renderFact(node, rels))
	}
	s.opts.Metrics.Search("graph", len(facts))

	if len(facts) == 0 {
		return models.NoFactsFound, nil
	}
	return models.FactsHeader + "\n" + strings.Join(facts, "\n"), nil
}

func renderFact(n models.GraphNode, rels []Relation) string {
	fact := fmt.Sprintf("- Concept '%s': %s", n.ID, n.Description)
	parts := make([]string, 0, len(rels))
	for _, r := range rels {
		if r.Relationship == "" || r.NeighborID == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("is '%s' '%s'", r.Relationship, r.NeighborID))
	}
	if len(parts) > 0 {
		fact += " | It " + strings.Join(parts, ", ") + "."
	}
	return fact
}
