package graphstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"document-index/internal/helper"
	"document-index/internal/models"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS kg_nodes (
	user_id     TEXT NOT NULL,
	document    TEXT NOT NULL,
	node_id     TEXT NOT NULL,
	type        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parent      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, document, node_id)
);
CREATE INDEX IF NOT EXISTS kg_nodes_scope ON kg_nodes (user_id, lower(document));
CREATE TABLE IF NOT EXISTS kg_edges (
	user_id      TEXT NOT NULL,
	document     TEXT NOT NULL,
	from_id      TEXT NOT NULL,
	to_id        TEXT NOT NULL,
	relationship TEXT NOT NULL,
	PRIMARY KEY (user_id, document, from_id, to_id, relationship)
);
CREATE INDEX IF NOT EXISTS kg_edges_scope ON kg_edges (user_id, lower(document));
`

// Relation is one edge seen from a node: the relation label and the node on
// the other end.
type Relation struct {
	Relationship string
	NeighborID   string
}

// SQLiteStore keeps the property graph in two tables, one row per node and
// one per edge, keyed by scope.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens graph.db under dir, or a private in-memory database when
// dir is empty.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	dsn := ":memory:"
	path := ""
	if dir != "" {
		if err := helper.CreateFolder(dir); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "graph.db")
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening graph database: %v", models.ErrStoreUnavailable, err)
	}
	if path == "" {
		// Every new connection to :memory: is a new empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating graph schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// MergeNodes inserts or updates nodes by (user, document, id) in one
// transaction and returns how many were merged.
func (s *SQLiteStore) MergeNodes(ctx context.Context, scope Scope, nodes []models.GraphNode) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kg_nodes (user_id, document, node_id, type, description, parent)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, document, node_id) DO UPDATE SET
			type = excluded.type,
			description = excluded.description,
			parent = excluded.parent`)
	if err != nil {
		return 0, fmt.Errorf("preparing node merge: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, scope.UserID, scope.Document, n.ID, n.Type, n.Description, n.Parent); err != nil {
			return 0, fmt.Errorf("merging node %q: %w", n.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing nodes: %w", err)
	}
	return len(nodes), nil
}

// MergeEdges inserts edges whose endpoints both exist in scope. Edges that
// are already present count as merged.
func (s *SQLiteStore) MergeEdges(ctx context.Context, scope Scope, edges []models.GraphEdge) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	affected := 0
	for _, e := range edges {
		var endpoints int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT node_id) FROM kg_nodes
			WHERE user_id = ? AND document = ? AND node_id IN (?, ?)`,
			scope.UserID, scope.Document, e.From, e.To).Scan(&endpoints)
		if err != nil {
			return 0, fmt.Errorf("checking endpoints of %s->%s: %w", e.From, e.To, err)
		}
		want := 2
		if e.From == e.To {
			want = 1
		}
		if endpoints < want {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kg_edges (user_id, document, from_id, to_id, relationship)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			scope.UserID, scope.Document, e.From, e.To, e.Relationship)
		if err != nil {
			return 0, fmt.Errorf("merging edge %s->%s: %w", e.From, e.To, err)
		}
		affected++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing edges: %w", err)
	}
	return affected, nil
}

// Graph returns every node and edge of the scope, matching the document name
// case-insensitively.
func (s *SQLiteStore) Graph(ctx context.Context, scope Scope) (models.KnowledgeGraph, error) {
	kg := models.KnowledgeGraph{Nodes: []models.GraphNode{}, Edges: []models.GraphEdge{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, type, description, parent FROM kg_nodes
		WHERE user_id = ? AND lower(document) = lower(?)
		ORDER BY node_id`, scope.UserID, scope.Document)
	if err != nil {
		return kg, fmt.Errorf("querying nodes: %w", err)
	}
	for rows.Next() {
		var n models.GraphNode
		if err := rows.Scan(&n.ID, &n.Type, &n.Description, &n.Parent); err != nil {
			rows.Close()
			return kg, fmt.Errorf("scanning node: %w", err)
		}
		kg.Nodes = append(kg.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return kg, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT from_id, to_id, relationship FROM kg_edges
		WHERE user_id = ? AND lower(document) = lower(?)
		ORDER BY from_id, to_id, relationship`, scope.UserID, scope.Document)
	if err != nil {
		return kg, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.GraphEdge
		if err := rows.Scan(&e.From, &e.To, &e.Relationship); err != nil {
			return kg, fmt.Errorf("scanning edge: %w", err)
		}
		kg.Edges = append(kg.Edges, e)
	}
	return kg, rows.Err()
}

// Node loads one node of the exact scope.
func (s *SQLiteStore) Node(ctx context.Context, scope Scope, id string) (models.GraphNode, error) {
	n := models.GraphNode{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT type, description, parent FROM kg_nodes
		WHERE user_id = ? AND document = ? AND node_id = ?
		LIMIT 1`, scope.UserID, scope.Document, id).Scan(&n.Type, &n.Description, &n.Parent)
	if errors.Is(err, sql.ErrNoRows) {
		return n, models.ErrNotFound
	}
	if err != nil {
		return n, fmt.Errorf("loading node %q: %w", id, err)
	}
	return n, nil
}

// Relations lists the edges touching id in either direction.
func (s *SQLiteStore) Relations(ctx context.Context, scope Scope, id string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT relationship, CASE WHEN from_id = ? THEN to_id ELSE from_id END AS neighbor
		FROM kg_edges
		WHERE user_id = ? AND document = ? AND (from_id = ? OR to_id = ?)
		ORDER BY relationship, neighbor`,
		id, scope.UserID, scope.Document, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying relations of %q: %w", id, err)
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.Relationship, &r.NeighborID); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteScope removes all nodes and edges of the exact scope and returns how
// many rows went. Documents whose names differ only in case are kept.
func (s *SQLiteStore) DeleteScope(ctx context.Context, scope Scope) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, table := range []string{"kg_edges", "kg_nodes"} {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE user_id = ? AND document = ?",
			scope.UserID, scope.Document)
		if err != nil {
			return 0, fmt.Errorf("deleting from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return total, nil
}
