package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by Postgres. State documents are
// versioned rows; each Put writes the full document in one transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("state store DSN is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return NewPostgresStoreWithDB(db)
}

// NewPostgresStoreWithDB reuses an existing *sql.DB.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := ensureTable(db); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func ensureTable(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sync_state (
  database_name text NOT NULL,
  layout_name text NOT NULL,
  state jsonb NOT NULL,
  version bigint NOT NULL DEFAULT 1,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (database_name, layout_name)
);
`
	_, err := db.Exec(ddl)
	return err
}

func (s *PostgresStore) Get(key Key) (*IncrementalState, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT state FROM sync_state WHERE database_name=$1 AND layout_name=$2`,
		key.Database, key.Layout).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var st IncrementalState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode state for %s/%s: %w", key.Database, key.Layout, err)
	}
	return &st, nil
}

func (s *PostgresStore) Put(key Key, st *IncrementalState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO sync_state (database_name, layout_name, state)
VALUES ($1, $2, $3)
ON CONFLICT (database_name, layout_name)
DO UPDATE SET state = EXCLUDED.state, version = sync_state.version + 1, updated_at = now()`,
		key.Database, key.Layout, raw)
	return err
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
