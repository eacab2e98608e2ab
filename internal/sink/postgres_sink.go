package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
)

// PostgresSink materializes tables into Postgres. Every column is text;
// typing is left to downstream transformation. Overwrite truncates and
// reloads via COPY; upsert uses INSERT .. ON CONFLICT on the primary key.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink connects to Postgres.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, errors.New("sink DSN is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PostgresSink{db: db}, nil
}

// NewPostgresSinkWithDB reuses an existing *sql.DB.
func NewPostgresSinkWithDB(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) WriteTable(ctx context.Context, spec TableSpec, records []endpoint.Record) error {
	if len(spec.Columns) == 0 {
		return nil
	}
	if spec.Mode == Upsert && len(spec.PrimaryKey) == 0 {
		return core.ConfigErrorf("upsert into %s requires a primary key", spec.Name)
	}

	if err := s.ensureTable(ctx, spec); err != nil {
		return core.Wrap(core.CodeSinkFailed, true, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Wrap(core.CodeSinkFailed, true, err)
	}
	defer tx.Rollback()

	switch spec.Mode {
	case Upsert:
		err = s.upsert(ctx, tx, spec, records)
	default:
		err = s.overwrite(ctx, tx, spec, records)
	}
	if err != nil {
		return core.Wrap(core.CodeSinkFailed, true, err)
	}

	if err := tx.Commit(); err != nil {
		return core.Wrap(core.CodeSinkFailed, true, err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresSink) ensureTable(ctx context.Context, spec TableSpec) error {
	cols := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		cols = append(cols, pq.QuoteIdentifier(c)+" text")
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s", pq.QuoteIdentifier(spec.Name), strings.Join(cols, ", "))
	if len(spec.PrimaryKey) > 0 {
		ddl += fmt.Sprintf(", PRIMARY KEY (%s)", joinIdentifiers(spec.PrimaryKey))
	}
	ddl += ")"
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *PostgresSink) overwrite(ctx context.Context, tx *sql.Tx, spec TableSpec, records []endpoint.Record) error {
	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+pq.QuoteIdentifier(spec.Name)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(spec.Name, spec.Columns...))
	if err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rowValues(spec.Columns, rec)...); err != nil {
			stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return err
	}
	return stmt.Close()
}

func (s *PostgresSink) upsert(ctx context.Context, tx *sql.Tx, spec TableSpec, records []endpoint.Record) error {
	placeholders := make([]string, len(spec.Columns))
	for i := range spec.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	pkey := make(map[string]bool, len(spec.PrimaryKey))
	for _, k := range spec.PrimaryKey {
		pkey[k] = true
	}
	var updates []string
	for _, c := range spec.Columns {
		if !pkey[c] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", pq.QuoteIdentifier(c), pq.QuoteIdentifier(c)))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		pq.QuoteIdentifier(spec.Name),
		joinIdentifiers(spec.Columns),
		strings.Join(placeholders, ", "),
		joinIdentifiers(spec.PrimaryKey))
	if len(updates) > 0 {
		query += "DO UPDATE SET " + strings.Join(updates, ", ")
	} else {
		query += "DO NOTHING"
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rowValues(spec.Columns, rec)...); err != nil {
			return err
		}
	}
	return nil
}

func joinIdentifiers(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

func rowValues(columns []string, rec endpoint.Record) []any {
	values := make([]any, len(columns))
	for i, col := range columns {
		if v, ok := rec[col]; ok && v != nil {
			values[i] = fmt.Sprint(v)
		} else {
			values[i] = ""
		}
	}
	return values
}
