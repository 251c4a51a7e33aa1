package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shardhub/collab/domain"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	shard_key  TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteBlobStore grava um documento por linha num arquivo SQLite
// (modernc.org/sqlite, sem cgo).
type SQLiteBlobStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.BlobStore = (*SQLiteBlobStore)(nil)

// OpenSQLite abre (ou cria) o banco em `path` e garante o schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBlobStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// um escritor por vez; evita SQLITE_BUSY entre conexões do pool
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteBlobStore{db: db, now: time.Now}, nil
}

func (s *SQLiteBlobStore) Get(ctx context.Context, key domain.ShardKey) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE shard_key = ?`, string(key)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	return []byte(body), nil
}

func (s *SQLiteBlobStore) Put(ctx context.Context, key domain.ShardKey, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (shard_key, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(shard_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		string(key), string(value), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite put %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteBlobStore) Close() error { return s.db.Close() }
