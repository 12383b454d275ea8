// Package pgvector stores RAG indexes in PostgreSQL using the pgvector extension.
package pgvector

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/vectorstore"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the rag_documents schema to the database at databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate rag_documents: %w", err)
	}
	return nil
}

// NewPool creates a pool with the vector type registered on every connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Index is one logical vector index; all its rows share an index_id.
type Index struct {
	pool     *pgxpool.Pool
	embedder vectorstore.Embedder
	id       string

	count  atomic.Int64
	closed atomic.Bool
}

// New creates an empty index backed by pool.
func New(pool *pgxpool.Pool, embedder vectorstore.Embedder) *Index {
	return &Index{
		pool:     pool,
		embedder: embedder,
		id:       gonanoid.Must(),
	}
}

// ID returns the index_id under which rows are stored.
func (i *Index) ID() string {
	return i.id
}

func (i *Index) Add(ctx context.Context, docs ...vectorstore.Document) error {
	if i.closed.Load() {
		return vectorstore.ErrClosed
	}
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for n, d := range docs {
		texts[n] = d.Content
	}
	vectors, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	batch := &pgx.Batch{}
	for n, d := range docs {
		if d.ID == "" {
			d.ID = gonanoid.Must()
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if d.Metadata == nil {
			meta = []byte("{}")
		}
		batch.Queue(
			`INSERT INTO rag_documents (index_id, doc_id, content, metadata, embedding) VALUES ($1, $2, $3, $4, $5)`,
			i.id, d.ID, d.Content, meta, pgv.NewVector(vectors[n]),
		)
	}

	if err := i.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	i.count.Add(int64(len(docs)))
	return nil
}

func (i *Index) Search(ctx context.Context, query string, k int) ([]vectorstore.Document, error) {
	if i.closed.Load() {
		return nil, vectorstore.ErrClosed
	}
	if k <= 0 || i.count.Load() == 0 {
		return nil, nil
	}

	vectors, err := i.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}

	rows, err := i.pool.Query(ctx,
		`SELECT doc_id, content, metadata FROM rag_documents
		 WHERE index_id = $1
		 ORDER BY embedding <=> $2, id
		 LIMIT $3`,
		i.id, pgv.NewVector(vectors[0]), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vectorstore.Document
	for rows.Next() {
		var (
			d    vectorstore.Document
			meta []byte
		)
		if err := rows.Scan(&d.ID, &d.Content, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &d.Metadata); err != nil {
				logger.Warn("[VectorStore] bad document metadata", "doc", d.ID, "err", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (i *Index) Len() int {
	return int(i.count.Load())
}

// Close deletes the index rows.
func (i *Index) Close(ctx context.Context) error {
	if i.closed.Swap(true) {
		return nil
	}
	if _, err := i.pool.Exec(ctx, `DELETE FROM rag_documents WHERE index_id = $1`, i.id); err != nil {
		return fmt.Errorf("delete index %s: %w", i.id, err)
	}
	return nil
}

var _ vectorstore.Index = (*Index)(nil)
