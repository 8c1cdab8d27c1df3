package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/aule-agent/internal/core/ports"
)

type Repository struct {
	db *sql.DB
}

// Ensure Repository implements Repository interface
var _ ports.Repository = (*Repository)(nil)

// NewRepository opens (or creates) the database at path and applies the
// schema. An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR PRIMARY KEY,
		title VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS messages_seq`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGINT NOT NULL DEFAULT nextval('messages_seq'),
		id VARCHAR PRIMARY KEY,
		session_id VARCHAR NOT NULL,
		role VARCHAR NOT NULL,
		content VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id)`,
	`CREATE TABLE IF NOT EXISTS knowledge_documents (
		id VARCHAR PRIMARY KEY,
		title VARCHAR NOT NULL,
		body VARCHAR NOT NULL,
		tags VARCHAR NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL
	)`,
}

func (r *Repository) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
