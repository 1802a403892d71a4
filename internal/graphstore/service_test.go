package graphstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"document-index/internal/config"
	"document-index/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scope = Scope{UserID: "u1", Document: "Report.pdf"}

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := Open(config.GraphConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleGraph() models.KnowledgeGraph {
	return models.KnowledgeGraph{
		Nodes: []models.GraphNode{
			{ID: " turbine ", Description: "Wind turbine converts wind to power"},
			{ID: "blade", Type: "part", Description: "Blade catches wind", Parent: "turbine"},
			{ID: "  "},
		},
		Edges: []models.GraphEdge{
			{From: "turbine", To: "blade", Relationship: "has part"},
			{From: "turbine", To: "ghost", Relationship: "drives"},
			{From: "", To: "blade", Relationship: "x"},
		},
	}
}

func TestIngestMergesAndSkipsInvalid(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	res, err := s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)
	assert.Equal(t, models.GraphIngestResult{NodesAffected: 2, EdgesAffected: 1}, res)

	again, err := s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)
	assert.Equal(t, res, again)

	kg, err := s.Get(ctx, Scope{UserID: "u1", Document: "REPORT.PDF"})
	require.NoError(t, err)
	assert.Equal(t, []models.GraphNode{
		{ID: "blade", Type: "part", Description: "Blade catches wind", Parent: "turbine"},
		{ID: "turbine", Type: models.DefaultNodeType, Description: "Wind turbine converts wind to power"},
	}, kg.Nodes)
	assert.Equal(t, []models.GraphEdge{{From: "turbine", To: "blade", Relationship: "HAS_PART"}}, kg.Edges)
}

func TestIngestUpdatesExistingNode(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)

	_, err = s.Ingest(ctx, scope, models.KnowledgeGraph{Nodes: []models.GraphNode{{ID: "blade", Description: "Rotor blade"}}})
	require.NoError(t, err)

	kg, err := s.Get(ctx, scope)
	require.NoError(t, err)
	require.Len(t, kg.Nodes, 2)
	assert.Equal(t, models.GraphNode{ID: "blade", Type: models.DefaultNodeType, Description: "Rotor blade"}, kg.Nodes[0])
	assert.Len(t, kg.Edges, 1)
}

func TestIngestValidatesScope(t *testing.T) {
	s := newService(t)
	_, err := s.Ingest(context.Background(), Scope{Document: "x"}, sampleGraph())
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = s.Get(context.Background(), Scope{UserID: "u1"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetUnknownScope(t *testing.T) {
	s := newService(t)
	_, err := s.Get(context.Background(), scope)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSearchRendersFacts(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)

	facts, err := s.Search(ctx, Scope{UserID: "u1", Document: "report.pdf"}, "turbine")
	require.NoError(t, err)
	assert.Equal(t, models.FactsHeader+"\n- Concept 'turbine': Wind turbine converts wind to power | It is 'HAS_PART' 'blade'.", facts)

	facts, err = s.Search(ctx, scope, "wind")
	require.NoError(t, err)
	assert.Contains(t, facts, "- Concept 'turbine': Wind turbine converts wind to power | It is 'HAS_PART' 'blade'.")
	assert.Contains(t, facts, "- Concept 'blade': Blade catches wind | It is 'HAS_PART' 'turbine'.")
}

func TestSearchStaysInScope(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)

	facts, err := s.Search(ctx, Scope{UserID: "u2", Document: scope.Document}, "turbine")
	require.NoError(t, err)
	assert.Equal(t, models.NoFactsFound, facts)

	facts, err = s.Search(ctx, scope, "photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, models.NoFactsFound, facts)
}

func TestSearchRespectsTopK(t *testing.T) {
	store, err := OpenSQLite("")
	require.NoError(t, err)
	index, err := OpenIndex("")
	require.NoError(t, err)
	s := New(store, index, Options{TopK: 1})
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	_, err = s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)
	facts, err := s.Search(ctx, scope, "wind")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(facts, "\n"))
}

func TestDeleteAndReplace(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)

	_, err = s.Ingest(ctx, scope, models.KnowledgeGraph{Nodes: []models.GraphNode{{ID: "tower", Description: "Steel tower"}}}, WithReplace())
	require.NoError(t, err)
	kg, err := s.Get(ctx, scope)
	require.NoError(t, err)
	require.Len(t, kg.Nodes, 1)
	assert.Equal(t, "tower", kg.Nodes[0].ID)
	assert.Empty(t, kg.Edges)

	facts, err := s.Search(ctx, scope, "turbine")
	require.NoError(t, err)
	assert.Equal(t, models.NoFactsFound, facts)

	removed, err := s.Delete(ctx, scope)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Delete(ctx, scope)
	require.NoError(t, err)
	assert.False(t, removed)
	_, err = s.Get(ctx, scope)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteKeepsDocumentsDifferingInCase(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	sibling := Scope{UserID: "u1", Document: "report.pdf"}
	_, err := s.Ingest(ctx, scope, models.KnowledgeGraph{Nodes: []models.GraphNode{{ID: "turbine", Description: "Wind turbine"}}})
	require.NoError(t, err)
	_, err = s.Ingest(ctx, sibling, models.KnowledgeGraph{Nodes: []models.GraphNode{{ID: "gearbox", Description: "Gearbox steps up speed"}}})
	require.NoError(t, err)

	removed, err := s.Delete(ctx, scope)
	require.NoError(t, err)
	assert.True(t, removed)

	kg, err := s.store.Graph(ctx, sibling)
	require.NoError(t, err)
	require.Len(t, kg.Nodes, 1)
	assert.Equal(t, "gearbox", kg.Nodes[0].ID)

	facts, err := s.Search(ctx, sibling, "gearbox")
	require.NoError(t, err)
	assert.Equal(t, models.FactsHeader+"\n- Concept 'gearbox': Gearbox steps up speed", facts)
	facts, err = s.Search(ctx, sibling, "turbine")
	require.NoError(t, err)
	assert.Equal(t, models.NoFactsFound, facts)

	_, err = s.Ingest(ctx, scope, models.KnowledgeGraph{Nodes: []models.GraphNode{{ID: "tower"}}}, WithReplace())
	require.NoError(t, err)
	// Graph reads fold case, so both documents show up here.
	kg, err = s.store.Graph(ctx, sibling)
	require.NoError(t, err)
	ids := make([]string, 0, len(kg.Nodes))
	for _, n := range kg.Nodes {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"gearbox", "tower"}, ids)
}

func TestIngestIndexFailureStoresNothing(t *testing.T) {
	store, err := OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	index, err := OpenIndex("")
	require.NoError(t, err)
	require.NoError(t, index.Close())
	s := New(store, index, Options{})

	_, err = s.Ingest(context.Background(), scope, sampleGraph())
	require.Error(t, err)
	kg, err := store.Graph(context.Background(), scope)
	require.NoError(t, err)
	assert.Empty(t, kg.Nodes)
	assert.Empty(t, kg.Edges)
}

func TestPersistentGraphSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GraphConfig{Path: dir, IndexPath: filepath.Join(dir, "graph.bleve")}
	ctx := context.Background()

	s, err := Open(cfg, nil)
	require.NoError(t, err)
	_, err = s.Ingest(ctx, scope, sampleGraph())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	facts, err := reopened.Search(ctx, scope, "turbine")
	require.NoError(t, err)
	assert.Contains(t, facts, "- Concept 'turbine'")
}

func TestSanitizeRelationship(t *testing.T) {
	assert.Equal(t, "PART_OF", SanitizeRelationship(" part of "))
	assert.Equal(t, "USES", SanitizeRelationship("uses"))
}

func TestRenderFactWithoutRelations(t *testing.T) {
	assert.Equal(t, "- Concept 'a': alpha", renderFact(models.GraphNode{ID: "a", Description: "alpha"}, nil))
}
