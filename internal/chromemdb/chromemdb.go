package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"document-index/internal/config"
	"document-index/internal/helper"
	"document-index/internal/models"
	"document-index/internal/vectorstore"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// payloadKey holds the JSON-encoded record payload; the filterable scope
// fields are stored next to it as plain strings.
const payloadKey = "payload"

var filterKeys = []string{models.KeyUserID, models.KeyFileName}

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	dbPath        string
	inMemory      bool
	compress      bool
	encryptionKey string

	mu      sync.RWMutex
	schemas map[string]vectorstore.Schema
}

// NewVectorDBManager opens a persistent database under cfg.Path, or an
// in-memory one when cfg.InMemory is set.
func NewVectorDBManager(cfg config.ChromemConfig, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(cfg.Path); err != nil {
			return nil, err
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create database: %v", models.ErrStoreUnavailable, err)
		}
	}

	return &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		inMemory:      cfg.InMemory,
		compress:      cfg.Compress,
		encryptionKey: encryptionKey,
		schemas:       map[string]vectorstore.Schema{},
	}, nil
}

func (m *VectorDBManager) Name() string { return "chromem" }

func (m *VectorDBManager) schemaPath(collection string) string {
	return filepath.Join(m.dbPath, collection+".schema.yaml")
}

// SnapshotPath is the default export file of collection.
func (m *VectorDBManager) SnapshotPath(collection string) string {
	return filepath.Join(m.dbPath, collection+".chromem")
}

func (m *VectorDBManager) collection(name string) *chromem.Collection {
	return m.db.GetCollection(name, nil)
}

// Describe reports the recorded schema. A collection without a recorded
// schema describes as the zero Schema, which never matches.
func (m *VectorDBManager) Describe(_ context.Context, name string) (vectorstore.Schema, error) {
	if m.collection(name) == nil {
		return vectorstore.Schema{}, models.ErrNotFound
	}
	m.mu.RLock()
	schema, ok := m.schemas[name]
	m.mu.RUnlock()
	if ok {
		return schema, nil
	}
	if m.inMemory {
		return vectorstore.Schema{}, nil
	}
	schema, err := readSchema(m.schemaPath(name))
	if err != nil {
		log.Warn().Err(err).Str("collection", name).Msg("No readable schema for collection")
		return vectorstore.Schema{}, nil
	}
	m.rememberSchema(name, schema)
	return schema, nil
}

// Recreate drops the collection and creates it empty with schema.
func (m *VectorDBManager) Recreate(_ context.Context, name string, schema vectorstore.Schema) error {
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	meta := map[string]string{
		"dimension": fmt.Sprint(schema.Dimension),
		"distance":  string(schema.Distance),
	}
	if _, err := m.db.CreateCollection(name, meta, nil); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if !m.inMemory {
		if err := writeSchema(m.schemaPath(name), schema); err != nil {
			return err
		}
	}
	m.rememberSchema(name, schema)
	log.Info().Str("collection", name).Int("dimension", schema.Dimension).Msg("Created chromem collection")
	return nil
}

func (m *VectorDBManager) rememberSchema(name string, schema vectorstore.Schema) {
	m.mu.Lock()
	m.schemas[name] = schema
	m.mu.Unlock()
}

// Upsert adds or replaces records by id.
func (m *VectorDBManager) Upsert(ctx context.Context, name string, records []models.VectorRecord) error {
	c := m.collection(name)
	if c == nil {
		return fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		meta, err := encodeMetadata(r.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", r.ID, err)
		}
		content, _ := r.Payload[models.KeyChunkText].(string)
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   content,
			Metadata:  meta,
			Embedding: r.Vector,
		})
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns the most similar records. chromem rejects result counts
// above the collection size, so the limit is clamped.
func (m *VectorDBManager) Search(ctx context.Context, name string, q vectorstore.Query) ([]models.ScoredRecord, error) {
	c := m.collection(name)
	if c == nil {
		return nil, fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	n := min(q.Limit, c.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := c.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: q.Vector,
		NResults:       n,
		Where:          q.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.ScoredRecord, 0, len(results))
	for _, r := range results {
		if r.Similarity < q.MinScore {
			continue
		}
		payload, err := decodeMetadata(r.Metadata)
		if err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("Skipping record with unreadable payload")
			continue
		}
		out = append(out, models.ScoredRecord{ID: r.ID, Score: r.Similarity, Payload: payload})
	}
	return out, nil
}

// Delete removes the records matching filter. chromem does not report how
// many went, so the count is the collection size difference.
func (m *VectorDBManager) Delete(ctx context.Context, name string, filter map[string]string) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("%w: delete needs a filter", models.ErrInvalidInput)
	}
	c := m.collection(name)
	if c == nil {
		return 0, nil
	}
	before := c.Count()
	if err := c.Delete(ctx, filter, nil); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return before - c.Count(), nil
}

func (m *VectorDBManager) Count(_ context.Context, name string) (int, error) {
	c := m.collection(name)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

// DeleteCollection drops the collection and its recorded schema.
func (m *VectorDBManager) DeleteCollection(name string) error {
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.mu.Lock()
	delete(m.schemas, name)
	m.mu.Unlock()
	if !m.inMemory {
		if err := os.Remove(m.schemaPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove schema: %w", err)
		}
	}
	return nil
}

// Export writes an encrypted snapshot of collection to filePath, plus its
// schema next to it.
func (m *VectorDBManager) Export(_ context.Context, collection, filePath string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection(collection) == nil {
		return fmt.Errorf("collection %s: %w", collection, models.ErrNotFound)
	}
	if filePath == "" {
		filePath = m.SnapshotPath(collection)
	}
	if err := helper.CreateFolder(filepath.Dir(filePath)); err != nil {
		return err
	}

	log.Debug().
		Str("collection", collection).
		Str("file", filePath).
		Bool("compress", m.compress).
		Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, collection); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}

	m.mu.RLock()
	schema, ok := m.schemas[collection]
	m.mu.RUnlock()
	if ok {
		return writeSchema(filePath+".schema.yaml", schema)
	}
	return nil
}

// Import loads collection from a snapshot written by Export, replacing any
// records with the same ids.
func (m *VectorDBManager) Import(_ context.Context, collection, filePath string) error {
	if filePath == "" {
		filePath = m.SnapshotPath(collection)
	}
	if err := m.db.ImportFromFile(filePath, m.encryptionKey, collection); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	schema, err := readSchema(filePath + ".schema.yaml")
	if err != nil {
		log.Warn().Err(err).Str("file", filePath).Msg("Snapshot has no schema, collection will be reconciled")
		return nil
	}
	m.rememberSchema(collection, schema)
	if !m.inMemory {
		return writeSchema(m.schemaPath(collection), schema)
	}
	return nil
}

func encodeMetadata(payload map[string]any) (map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{payloadKey: string(data)}
	for _, k := range filterKeys {
		if s, ok := payload[k].(string); ok {
			meta[k] = s
		}
	}
	return meta, nil
}

func decodeMetadata(meta map[string]string) (map[string]any, error) {
	payload := map[string]any{}
	if raw, ok := meta[payloadKey]; ok {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func readSchema(path string) (vectorstore.Schema, error) {
	var schema vectorstore.Schema
	data, err := os.ReadFile(path)
	if err != nil {
		return schema, err
	}
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("failed to decode schema: %w", err)
	}
	return schema, nil
}

func writeSchema(path string, schema vectorstore.Schema) error {
	data, err := yaml.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	return nil
}
