package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

type Storage struct {
	db *pgxpool.Pool
}

const (
	// tables
	PagesTable        = "pages"
	BlocksTable       = "page_blocks"
	PublicationsTable = "page_publications"
	AuditTable        = "audit_log"
	UsersTable        = "users"
)

func New(ctx context.Context, storagePath string) (*Storage, error) {
	const op = "storage.postgresql.New"

	db, err := pgxpool.Connect(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.db
}

func (s *Storage) Stop() {
	s.db.Close()
}

// Migrate создает схему, если ее еще нет. Повторный вызов безопасен.
func (s *Storage) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db)
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	const op = "storage.postgresql.Migrate"

	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	id BIGSERIAL PRIMARY KEY,
	key TEXT UNIQUE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS page_blocks (
	id BIGSERIAL PRIMARY KEY,
	page_id BIGINT NOT NULL REFERENCES pages(id),
	type TEXT NOT NULL,
	props JSONB NOT NULL DEFAULT '{}',
	slot TEXT NOT NULL DEFAULT 'main',
	position INT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT true,
	locale TEXT,
	valid_from TIMESTAMPTZ,
	valid_to TIMESTAMPTZ,
	version INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS page_blocks_page_position_idx ON page_blocks (page_id, position, id);

CREATE TABLE IF NOT EXISTS page_publications (
	id BIGSERIAL PRIMARY KEY,
	page_id BIGINT NOT NULL REFERENCES pages(id),
	version INT NOT NULL,
	snapshot JSONB NOT NULL,
	published_by TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (page_id, version)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	entity TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	diff JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS audit_log_entity_idx ON audit_log (entity, entity_id, id DESC);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	email TEXT UNIQUE NOT NULL,
	password BYTEA NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	registration_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_login TIMESTAMPTZ
);
`
