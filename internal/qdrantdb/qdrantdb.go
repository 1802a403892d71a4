package qdrantdb

import (
	"context"
	"fmt"

	"document-index/internal/config"
	"document-index/internal/models"
	"document-index/internal/vectorstore"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
)

// indexedFields get keyword payload indexes so scoped search and delete
// stay cheap on large collections.
var indexedFields = []string{models.KeyUserID, models.KeyFileName}

// Store is a vectorstore.Backend on a Qdrant server.
type Store struct {
	client *qdrant.Client
}

func New(cfg config.QdrantConfig) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to qdrant: %v", models.ErrStoreUnavailable, err)
	}
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("Connected to qdrant")
	return &Store{client: client}, nil
}

func (s *Store) Name() string { return "qdrant" }

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Describe(ctx context.Context, collection string) (vectorstore.Schema, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return vectorstore.Schema{}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if !exists {
		return vectorstore.Schema{}, models.ErrNotFound
	}
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return vectorstore.Schema{}, fmt.Errorf("failed to get collection info: %w", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		// Named vectors are never created here; treat them as foreign.
		return vectorstore.Schema{}, nil
	}
	return vectorstore.Schema{
		Dimension: int(params.GetSize()),
		Distance:  distanceName(params.GetDistance()),
	}, nil
}

func (s *Store) Recreate(ctx context.Context, collection string, schema vectorstore.Schema) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(schema.Dimension),
			Distance: distance(schema.Distance),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	for _, field := range indexedFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	log.Info().Str("collection", collection).Int("dimension", schema.Dimension).Msg("Created qdrant collection")
	return nil
}

// Upsert writes all records in one request and waits for them to be applied.
// Record ids must be UUIDs.
func (s *Store) Upsert(ctx context.Context, collection string, records []models.VectorRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		payload, err := qdrant.TryValueMap(r.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", r.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectorsDense(r.Vector),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, q vectorstore.Query) ([]models.ScoredRecord, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(q.Vector),
		Filter:         filter(q.Filter),
		ScoreThreshold: qdrant.PtrOf(q.MinScore),
		Limit:          qdrant.PtrOf(uint64(q.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	out := make([]models.ScoredRecord, 0, len(points))
	for _, p := range points {
		out = append(out, models.ScoredRecord{
			ID:      pointID(p.GetId()),
			Score:   p.GetScore(),
			Payload: decodePayload(p.GetPayload()),
		})
	}
	return out, nil
}

// Delete removes the points matching all filter fields. Qdrant does not
// report how many points went, so they are counted first.
func (s *Store) Delete(ctx context.Context, collection string, fields map[string]string) (int, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: delete needs a filter", models.ErrInvalidInput)
	}
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if !exists {
		return 0, nil
	}
	f := filter(fields)
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         f,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	return int(n), nil
}

func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if !exists {
		return 0, nil
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: collection, Exact: qdrant.PtrOf(true)})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

func filter(fields map[string]string) *qdrant.Filter {
	if len(fields) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(fields))
	for k, v := range fields {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}

// distance maps the schema distance; cosine is the only one in use.
func distance(vectorstore.Distance) qdrant.Distance {
	return qdrant.Distance_Cosine
}

func distanceName(d qdrant.Distance) vectorstore.Distance {
	if d == qdrant.Distance_Cosine {
		return vectorstore.DistanceCosine
	}
	return vectorstore.Distance(d.String())
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}

func decodePayload(m map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		return decodePayload(k.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, decodeValue(item))
		}
		return out
	default:
		return nil
	}
}
