package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"document-index/internal/config"
	"document-index/internal/models"
	"document-index/internal/vectorstore"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Collection records the schema each chunk table was created with.
type Collection struct {
	bun.BaseModel `bun:"table:vector_collections,alias:vc"`
	Name          string `bun:"name,pk"`
	Dimension     int    `bun:"dimension,notnull"`
	Distance      string `bun:"distance,notnull"`
}

// ChunkRow is one vector record. Each collection is its own table.
type ChunkRow struct {
	bun.BaseModel `bun:"table:document_chunks,alias:d"`
	ID            string          `bun:"id,pk"`
	UserID        string          `bun:"user_id,notnull"`
	FileName      string          `bun:"file_name,notnull"`
	Payload       map[string]any  `bun:"payload,type:jsonb,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull"`
	Score         float32         `bun:"score,scanonly"`
}

// columns maps filter fields to real columns; other fields are read from
// the jsonb payload.
var columns = map[string]string{
	models.KeyUserID:   "user_id",
	models.KeyFileName: "file_name",
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver: pgdriver by
// default, lib/pq when driver is "pq".
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database dsn is required", models.ErrInvalidInput)
	}
	if cfg.Driver == "pq" {
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := db.NewCreateTable().Model((*Collection)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create collections table: %w", err)
	}
	return nil
}

// VectorStore is a vectorstore.Backend on Postgres with pgvector.
type VectorStore struct {
	db *bun.DB
}

// Open connects, pings and prepares the database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*VectorStore, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if err := InitDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &VectorStore{db: db}, nil
}

func NewVectorStore(db *bun.DB) *VectorStore { return &VectorStore{db: db} }

func (s *VectorStore) Name() string { return "pgvector" }

func (s *VectorStore) Close() error { return s.db.Close() }

func (s *VectorStore) Describe(ctx context.Context, collection string) (vectorstore.Schema, error) {
	var c Collection
	err := s.db.NewSelect().Model(&c).Where("vc.name = ?", collection).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return vectorstore.Schema{}, models.ErrNotFound
	}
	if err != nil {
		return vectorstore.Schema{}, fmt.Errorf("failed to read collection: %w", err)
	}
	return vectorstore.Schema{Dimension: c.Dimension, Distance: vectorstore.Distance(c.Distance)}, nil
}

func (s *VectorStore) Recreate(ctx context.Context, collection string, schema vectorstore.Schema) error {
	table := bun.Ident(collection)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDropTable().Model((*ChunkRow)(nil)).ModelTableExpr("?", table).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
		_, err := tx.ExecContext(ctx, `CREATE TABLE ? (
			id text PRIMARY KEY,
			user_id text NOT NULL,
			file_name text NOT NULL,
			payload jsonb NOT NULL,
			embedding vector(?) NOT NULL
		)`, table, bun.Safe(fmt.Sprint(schema.Dimension)))
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
		_, err = tx.ExecContext(ctx, "CREATE INDEX ? ON ? (user_id, file_name)", bun.Ident(collection+"_scope_idx"), table)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		_, err = tx.NewInsert().
			Model(&Collection{Name: collection, Dimension: schema.Dimension, Distance: string(schema.Distance)}).
			On("CONFLICT (name) DO UPDATE").
			Set("dimension = EXCLUDED.dimension").
			Set("distance = EXCLUDED.distance").
			Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	log.Info().Str("collection", collection).Int("dimension", schema.Dimension).Msg("Created pgvector table")
	return nil
}

func (s *VectorStore) Upsert(ctx context.Context, collection string, records []models.VectorRecord) error {
	rows := make([]ChunkRow, 0, len(records))
	for _, r := range records {
		user, _ := r.Payload[models.KeyUserID].(string)
		file, _ := r.Payload[models.KeyFileName].(string)
		rows = append(rows, ChunkRow{
			ID:        r.ID,
			UserID:    user,
			FileName:  file,
			Payload:   r.Payload,
			Embedding: pgvector.NewVector(r.Vector),
		})
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		ModelTableExpr("?", bun.Ident(collection)).
		On("CONFLICT (id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("file_name = EXCLUDED.file_name").
		Set("payload = EXCLUDED.payload").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert rows: %w", err)
	}
	return nil
}

// Search ranks by cosine distance; the score is 1 - distance.
func (s *VectorStore) Search(ctx context.Context, collection string, q vectorstore.Query) ([]models.ScoredRecord, error) {
	vec := pgvector.NewVector(q.Vector)
	var rows []ChunkRow
	query := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS d", bun.Ident(collection)).
		ColumnExpr("d.id, d.payload").
		ColumnExpr("1 - (d.embedding <=> ?) AS score", vec).
		Where("1 - (d.embedding <=> ?) >= ?", vec, q.MinScore).
		OrderExpr("d.embedding <=> ?", vec).
		Limit(q.Limit)
	query = applyFilter(query, q.Filter)
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search rows: %w", err)
	}

	out := make([]models.ScoredRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ScoredRecord{ID: r.ID, Score: r.Score, Payload: r.Payload})
	}
	return out, nil
}

func (s *VectorStore) Delete(ctx context.Context, collection string, fields map[string]string) (int, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: delete needs a filter", models.ErrInvalidInput)
	}
	if _, err := s.Describe(ctx, collection); errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	query := s.db.NewDelete().Model((*ChunkRow)(nil)).ModelTableExpr("? AS d", bun.Ident(collection))
	for k, v := range fields {
		query = query.Where("? = ?", field(k), v)
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.Describe(ctx, collection); errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	return s.db.NewSelect().Model((*ChunkRow)(nil)).ModelTableExpr("? AS d", bun.Ident(collection)).Count(ctx)
}

// DropCollection removes the table and its schema row.
func (s *VectorStore) DropCollection(ctx context.Context, collection string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDropTable().Model((*ChunkRow)(nil)).ModelTableExpr("?", bun.Ident(collection)).IfExists().Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*Collection)(nil)).Where("name = ?", collection).Exec(ctx)
		return err
	})
}

func applyFilter(q *bun.SelectQuery, fields map[string]string) *bun.SelectQuery {
	for k, v := range fields {
		q = q.Where("? = ?", field(k), v)
	}
	return q
}

func field(key string) bun.Safe {
	if col, ok := columns[key]; ok {
		return bun.Safe("d." + col)
	}
	return bun.Safe("d.payload->>'" + strings.ReplaceAll(key, "'", "''") + "'")
}
