// Package sqlite reads transactions from a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/potrek505/TEG-project/pkg/transactions"

	_ "modernc.org/sqlite"
)

// Source implements transactions.Source over a read-only SQLite connection.
type Source struct {
	db    *sql.DB
	table string
}

// Params configures Open.
type Params struct {
	Path  string
	Table string
}

// Open opens the database at params.Path in read-only mode.
// A missing file yields transactions.ErrSourceNotFound.
func Open(ctx context.Context, params Params) (*Source, error) {
	if params.Table == "" {
		params.Table = transactions.DefaultTable
	}
	if err := transactions.ValidateTable(params.Table); err != nil {
		return nil, err
	}
	if params.Path == "" {
		return nil, fmt.Errorf("%w: no database path configured", transactions.ErrSourceNotFound)
	}
	if _, err := os.Stat(params.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", transactions.ErrSourceNotFound, params.Path)
		}
		return nil, err
	}

	dsn := (&url.URL{
		Scheme:   "file",
		Opaque:   params.Path,
		RawQuery: "mode=ro&_pragma=busy_timeout(5000)",
	}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open transactions database: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", transactions.ErrSourceNotFound, err)
	}

	return &Source{db: db, table: params.Table}, nil
}

func (s *Source) Dialect() string {
	return "sqlite"
}

func (s *Source) Table() string {
	return s.table
}

func (s *Source) Close() error {
	return s.db.Close()
}

// FetchRows returns up to limit rows of the table.
func (s *Source) FetchRows(ctx context.Context, limit int) (transactions.Rows, error) {
	query := fmt.Sprintf(`SELECT * FROM "%s" LIMIT ?`, s.table)
	return s.query(ctx, query, limit)
}

// Query runs a read-only statement produced by the SQL agent.
func (s *Source) Query(ctx context.Context, query string) (transactions.Rows, error) {
	q, err := transactions.ValidateReadOnly(query)
	if err != nil {
		return transactions.Rows{}, err
	}
	return s.query(ctx, q)
}

func (s *Source) query(ctx context.Context, query string, args ...any) (transactions.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return transactions.Rows{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return transactions.Rows{}, err
	}

	out := transactions.Rows{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return transactions.Rows{}, err
		}
		out.Values = append(out.Values, values)
	}
	return out, rows.Err()
}

var _ transactions.Source = (*Source)(nil)
