package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driver() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) schema() string {
	seq := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DialectPostgres {
		seq = "seq BIGSERIAL PRIMARY KEY"
	}
	return `CREATE TABLE IF NOT EXISTS conflict_history (
        ` + seq + `,
        id TEXT NOT NULL,
        conflict_id TEXT NOT NULL,
        outcome TEXT NOT NULL,
        applied_at BIGINT NOT NULL,
        record TEXT NOT NULL
    )`
}

// bind rewrites ? placeholders for the dialect.
func (d Dialect) bind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore persists entries in a SQL database: SQLite through modernc.org/sqlite
// or PostgreSQL through pgx.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return NewSQLStore(DialectSQLite, path)
}

// NewPostgresStore connects to dsn and ensures schema.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	return NewSQLStore(DialectPostgres, dsn)
}

// NewSQLStore opens dsn with the driver of dialect and ensures schema.
func NewSQLStore(dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(dialect.schema()); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Append inserts a new version of the entry.
func (s *SQLStore) Append(ctx context.Context, h model.ConflictResolutionHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.dialect.bind(
		`INSERT INTO conflict_history (id, conflict_id, outcome, applied_at, record) VALUES (?, ?, ?, ?, ?)`),
		h.ID, h.ConflictID, string(h.Outcome), h.AppliedAt.UnixNano(), string(b))
	return err
}

// Query filters on the immutable columns in SQL and resolves versions in Go,
// since the outcome of an entry changes between versions.
func (s *SQLStore) Query(ctx context.Context, q Query) ([]model.ConflictResolutionHistory, error) {
	var args []any
	query := `SELECT record FROM conflict_history WHERE 1=1`
	if q.ConflictID != "" {
		query += ` AND conflict_id = ?`
		args = append(args, q.ConflictID)
	}
	if !q.Start.IsZero() {
		query += ` AND applied_at >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND applied_at <= ?`
		args = append(args, q.End.UnixNano())
	}
	query += ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var versions []model.ConflictResolutionHistory
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var h model.ConflictResolutionHistory
		if err := json.Unmarshal([]byte(data), &h); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
		versions = append(versions, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Latest(versions, q), nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }
