package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"testing"

	"document-index/internal/embedding/embeddingtest"
	"document-index/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 256

type fakeBackend struct {
	schema    *Schema
	records   map[string]models.VectorRecord
	recreated int
	upserts   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: map[string]models.VectorRecord{}}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Describe(context.Context, string) (Schema, error) {
	if f.schema == nil {
		return Schema{}, models.ErrNotFound
	}
	return *f.schema, nil
}

func (f *fakeBackend) Recreate(_ context.Context, _ string, s Schema) error {
	f.schema = &s
	f.records = map[string]models.VectorRecord{}
	f.recreated++
	return nil
}

func (f *fakeBackend) Upsert(_ context.Context, _ string, records []models.VectorRecord) error {
	f.upserts++
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func matches(payload map[string]any, filter map[string]string) bool {
	for k, v := range filter {
		if payload[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func (f *fakeBackend) Search(_ context.Context, _ string, q Query) ([]models.ScoredRecord, error) {
	var out []models.ScoredRecord
	for _, r := range f.records {
		if !matches(r.Payload, q.Filter) {
			continue
		}
		score := cosine(q.Vector, r.Vector)
		if score < q.MinScore {
			continue
		}
		out = append(out, models.ScoredRecord{ID: r.ID, Score: score, Payload: r.Payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeBackend) Delete(_ context.Context, _ string, filter map[string]string) (int, error) {
	n := 0
	for id, r := range f.records {
		if matches(r.Payload, filter) {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) Count(context.Context, string) (int, error) { return len(f.records), nil }

func chunk(id, user, file, text string) models.Chunk {
	return models.Chunk{
		ID:        id,
		Text:      text,
		Metadata:  models.DocumentMetadata{UserID: user, FileName: file, OriginalName: file, Title: "T " + file},
		Embedding: embeddingtest.Vector(text, testDim),
	}
}

func newService(t *testing.T, backend *fakeBackend, minScore float32) *Service {
	t.Helper()
	query, _ := embeddingtest.New(testDim)
	s, err := New(context.Background(), backend, query, Options{
		Collection: "chunks",
		Dimension:  testDim,
		SearchK:    5,
		MinScore:   minScore,
	})
	require.NoError(t, err)
	return s
}

func TestNewCreatesAbsentCollection(t *testing.T) {
	backend := newFakeBackend()
	s := newService(t, backend, 0.1)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, 1, backend.recreated)
	assert.Equal(t, Schema{Dimension: testDim, Distance: DistanceCosine}, *backend.schema)
}

func TestNewRecreatesMismatchedCollection(t *testing.T) {
	backend := newFakeBackend()
	backend.schema = &Schema{Dimension: 8, Distance: DistanceCosine}
	backend.records["old"] = models.VectorRecord{ID: "old", Vector: make([]float32, 8)}

	s := newService(t, backend, 0.1)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, testDim, backend.schema.Dimension)
	assert.Empty(t, backend.records)
}

func TestNewKeepsCompatibleCollection(t *testing.T) {
	backend := newFakeBackend()
	backend.schema = &Schema{Dimension: testDim, Distance: DistanceCosine}
	backend.records["keep"] = models.VectorRecord{ID: "keep"}

	newService(t, backend, 0.1)
	assert.Zero(t, backend.recreated)
	assert.Len(t, backend.records, 1)
}

func TestNewRejectsQueryDimensionMismatch(t *testing.T) {
	query, _ := embeddingtest.New(testDim + 1)
	_, err := New(context.Background(), newFakeBackend(), query, Options{Collection: "c", Dimension: testDim})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestUpsertSkipsInvalidChunks(t *testing.T) {
	backend := newFakeBackend()
	s := newService(t, backend, 0.1)

	good := chunk("a", "u1", "doc.pdf", "alpha beta")
	noVector := chunk("b", "u1", "doc.pdf", "gamma")
	noVector.Embedding = nil
	nan := chunk("c", "u1", "doc.pdf", "delta")
	nan.Embedding[0] = float32(math.NaN())
	short := chunk("d", "u1", "doc.pdf", "epsilon")
	short.Embedding = short.Embedding[:4]

	res, err := s.Upsert(context.Background(), []models.Chunk{good, noVector, nan, short})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Accepted: 1, SkippedNoVector: 1, SkippedInvalid: 1, SkippedDimension: 1}, res)
	assert.Equal(t, 1, backend.upserts)
	require.Contains(t, backend.records, "a")
	assert.Equal(t, "alpha beta", backend.records["a"].Payload[models.KeyChunkText])
}

func TestSearchRespectsFloorAndOrder(t *testing.T) {
	backend := newFakeBackend()
	s := newService(t, backend, 0.3)

	chunks := []models.Chunk{
		chunk("m1", "u1", "a.pdf", "solar panel efficiency"),
		chunk("m2", "u1", "b.pdf", "solar panel efficiency report for rooftop installs"),
	}
	for i := 0; i < 10; i++ {
		chunks = append(chunks, chunk(strings.Repeat("x", i+1), "u1", "noise.pdf", "quarterly tax filing deadline "+strings.Repeat("z", i+1)))
	}
	_, err := s.Upsert(context.Background(), chunks)
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), "solar panel efficiency", 5, models.SearchFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "m1", resp.Citations["1"].VectorID)
	assert.Equal(t, "m2", resp.Citations["2"].VectorID)
	assert.GreaterOrEqual(t, resp.Citations["1"].Score, resp.Citations["2"].Score)
	for _, d := range resp.Documents {
		assert.GreaterOrEqual(t, d.Metadata[models.KeyScore].(float32), float32(0.3))
	}
	assert.True(t, strings.HasPrefix(resp.Context, "[1] Score: 1.0000 | Source: a.pdf | Subject: T a.pdf\nContent: solar panel efficiency"))
	assert.Contains(t, resp.Context, models.ContextSeparator+"[2] Score: ")
}

func TestSearchNoMatchesReturnsSentinel(t *testing.T) {
	s := newService(t, newFakeBackend(), 0.5)
	resp, err := s.Search(context.Background(), "anything", 0, models.SearchFilter{})
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
	assert.Equal(t, models.NoContextFound, resp.Context)
	assert.Empty(t, resp.Citations)
}

func TestSearchFilterAndDeleteAreScoped(t *testing.T) {
	backend := newFakeBackend()
	s := newService(t, backend, 0)
	_, err := s.Upsert(context.Background(), []models.Chunk{
		chunk("1", "alice", "x.pdf", "shared words here"),
		chunk("2", "alice", "y.pdf", "shared words here"),
		chunk("3", "bob", "x.pdf", "shared words here"),
	})
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), "shared words", 10, models.SearchFilter{UserID: "alice", FileName: "x.pdf"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "1", resp.Citations["1"].VectorID)

	n, err := s.Delete(context.Background(), "alice", "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, backend.records, "2")
	assert.Contains(t, backend.records, "3")

	_, err = s.Delete(context.Background(), "", "x.pdf")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestFormatResultsPreviewAndPage(t *testing.T) {
	long := strings.Repeat("a", 250)
	resp := FormatResults([]models.ScoredRecord{{
		ID:    "v1",
		Score: 0.87654,
		Payload: map[string]any{
			models.KeyChunkText:  long,
			models.KeyFileName:   "f.pdf",
			models.KeyPageNumber: 3,
		},
	}})
	c := resp.Citations["1"]
	assert.Equal(t, strings.Repeat("a", 200)+"...", c.ContentPreview)
	assert.Equal(t, long, c.FullContent)
	assert.Equal(t, "Unknown Subject", c.Subject)
	assert.Equal(t, "f.pdf", c.DocumentName)
	assert.Equal(t, "[1] Score: 0.8765 | Source: f.pdf (Page: 3) | Subject: Unknown Subject\nContent: "+c.ContentPreview, resp.Context)
}
