// Package pgx reads transactions from PostgreSQL.
package pgx

import (
	"context"
	"fmt"

	"github.com/potrek505/TEG-project/pkg/transactions"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source implements transactions.Source over a pgx connection pool.
type Source struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// NewSource wraps an existing pool. The pool is not closed by Close.
func NewSource(pool *pgxpool.Pool, table string) (*Source, error) {
	if table == "" {
		table = transactions.DefaultTable
	}
	if err := transactions.ValidateTable(table); err != nil {
		return nil, err
	}
	return &Source{pool: pool, table: table}, nil
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL, table string) (*Source, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: no database url configured", transactions.ErrSourceNotFound)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", transactions.ErrSourceNotFound, err)
	}
	s, err := NewSource(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *Source) Dialect() string {
	return "postgresql"
}

func (s *Source) Table() string {
	return s.table
}

func (s *Source) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

// FetchRows returns up to limit rows of the table.
func (s *Source) FetchRows(ctx context.Context, limit int) (transactions.Rows, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT $1", pgx.Identifier{s.table}.Sanitize())
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return transactions.Rows{}, err
	}
	return collect(rows)
}

// Query runs a statement produced by the SQL agent inside a read-only transaction.
func (s *Source) Query(ctx context.Context, query string) (transactions.Rows, error) {
	q, err := transactions.ValidateReadOnly(query)
	if err != nil {
		return transactions.Rows{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return transactions.Rows{}, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, q)
	if err != nil {
		return transactions.Rows{}, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) (transactions.Rows, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := transactions.Rows{Columns: make([]string, len(fields))}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return transactions.Rows{}, err
		}
		out.Values = append(out.Values, values)
	}
	return out, rows.Err()
}

var _ transactions.Source = (*Source)(nil)
