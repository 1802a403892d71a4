package qdrantdb

import (
	"context"
	"testing"

	"document-index/internal/config"
	"document-index/internal/embedding/embeddingtest"
	"document-index/internal/models"
	"document-index/internal/vectorstore"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const dim = 256

func TestPayloadRoundTrip(t *testing.T) {
	c := models.Chunk{
		ID:   "c1",
		Text: "body",
		Metadata: models.DocumentMetadata{
			UserID:        "u1",
			FileName:      "x.pdf",
			PageCount:     4,
			NamedEntities: map[string][]string{"ORG": {"Acme"}},
		},
	}
	encoded, err := qdrant.TryValueMap(c.Payload())
	require.NoError(t, err)

	got := decodePayload(encoded)
	assert.Equal(t, "body", got[models.KeyChunkText])
	assert.Equal(t, int64(4), got[models.KeyPageCount])
	assert.Equal(t, map[string]any{"ORG": []any{"Acme"}}, got[models.KeyNamedEntities])
}

func TestFilterMustMatchEveryField(t *testing.T) {
	assert.Nil(t, filter(nil))
	f := filter(map[string]string{models.KeyUserID: "u1", models.KeyFileName: "x.pdf"})
	assert.Len(t, f.GetMust(), 2)
}

func TestPointIDPrefersUUID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(qdrant.NewID(id)))
	assert.Equal(t, "7", pointID(qdrant.NewIDNum(7)))
}

func startQdrant(t *testing.T) config.QdrantConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping qdrant container in short mode")
	}
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:v1.14.0",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor:   wait.ForListeningPort("6334/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6334/tcp")
	require.NoError(t, err)
	return config.QdrantConfig{Host: host, Port: port.Int()}
}

func TestServiceOverQdrant(t *testing.T) {
	cfg := startQdrant(t)
	ctx := context.Background()

	store, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Describe(ctx, "chunks")
	assert.ErrorIs(t, err, models.ErrNotFound)

	query, _ := embeddingtest.New(dim)
	svc, err := vectorstore.New(ctx, store, query, vectorstore.Options{Collection: "chunks", Dimension: dim, MinScore: 0.2})
	require.NoError(t, err)

	schema, err := store.Describe(ctx, "chunks")
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Schema{Dimension: dim, Distance: vectorstore.DistanceCosine}, schema)

	mk := func(user, file, text string) models.Chunk {
		return models.Chunk{
			ID:        uuid.NewString(),
			Text:      text,
			Metadata:  models.DocumentMetadata{UserID: user, FileName: file, OriginalName: file},
			Embedding: embeddingtest.Vector(text, dim),
		}
	}
	first := mk("alice", "x.pdf", "wind turbine maintenance schedule")
	res, err := svc.Upsert(ctx, []models.Chunk{
		first,
		mk("alice", "y.pdf", "wind turbine blade inspection"),
		mk("bob", "x.pdf", "wind turbine maintenance schedule"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Accepted)

	resp, err := svc.Search(ctx, "turbine maintenance", 10, models.SearchFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, first.ID, resp.Citations["1"].VectorID)

	n, err := svc.Delete(ctx, "alice", "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	total, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// A new dimension replaces the collection.
	_, err = vectorstore.New(ctx, store, nil, vectorstore.Options{Collection: "chunks", Dimension: 8})
	require.NoError(t, err)
	total, err = store.Count(ctx, "chunks")
	require.NoError(t, err)
	assert.Zero(t, total)
}
