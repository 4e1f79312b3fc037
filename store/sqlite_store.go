package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signkeeper/signkeeper/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements KeyValueStore on a single kv table. database/sql
// serializes access; values are stored as JSON blobs.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// ensures the kv schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		scope TEXT NOT NULL,
		key   TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (scope, key)
	)`
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return &SQLiteStore{conn: conn, path: dbPath}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, scope Scope, key string) (json.RawMessage, error) {
	var value []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND key = ?`, string(scope), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrKeyNotFound, scope, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", scope, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, scope Scope) (map[string]json.RawMessage, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE scope = ?`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list scope %s: %w", scope, err)
	}
	defer func() { _ = rows.Close() }()

	values := map[string]json.RawMessage{}
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row in scope %s: %w", scope, err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, scope Scope, pairs map[string]json.RawMessage) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO kv (scope, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for key, value := range pairs {
		if _, err := stmt.ExecContext(ctx, string(scope), key, []byte(value)); err != nil {
			return fmt.Errorf("failed to save %s/%s: %w", scope, key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, scope Scope, keys ...string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM kv WHERE scope = ? AND key = ?`, string(scope), key); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", scope, key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
