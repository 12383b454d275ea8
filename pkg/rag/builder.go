// Package rag builds and queries a retrieval index over a snapshot of the
// transactions table.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/transactions"
	"github.com/potrek505/TEG-project/pkg/vectorstore"
)

var (
	// ErrNoSource means the transactions source is not configured or unreachable.
	ErrNoSource = errors.New("no transactions source")
	// ErrNoRows means the source returned no rows to index.
	ErrNoRows = errors.New("no transactions to index")
)

const (
	DefaultRowLimit   = 1000
	DefaultRetrieverK = 1
)

// Params configures snapshot size and retrieval.
type Params struct {
	RowLimit   int             `json:"row_limit" toml:"row_limit"`
	RetrieverK int             `json:"retriever_k" toml:"retriever_k"`
	Retrieval  RetrievalParams `json:"retrieval" toml:"retrieval"`
}

// DefaultParams returns the standard builder parameters.
func DefaultParams() Params {
	return Params{
		RowLimit:   DefaultRowLimit,
		RetrieverK: DefaultRetrieverK,
		Retrieval:  DefaultRetrievalParams(),
	}
}

// IndexFactory creates an empty vector index.
type IndexFactory func(ctx context.Context) (vectorstore.Index, error)

// Builder turns a snapshot of the transactions table into an Adaptive RAG.
type Builder struct {
	client   ai.Client
	source   transactions.Source
	newIndex IndexFactory
	opts     []ai.GenerateOption

	mu     sync.RWMutex
	params Params
}

// NewBuilder creates a builder. source may be nil, in which case every
// Build fails with ErrNoSource.
func NewBuilder(
	client ai.Client,
	source transactions.Source,
	newIndex IndexFactory,
	params Params,
	opts ...ai.GenerateOption,
) *Builder {
	return &Builder{
		client:   client,
		source:   source,
		newIndex: newIndex,
		params:   params,
		opts:     opts,
	}
}

// SetParams replaces the parameters used by later builds.
func (b *Builder) SetParams(p Params) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params = p
}

// Params returns the current parameters.
func (b *Builder) Params() Params {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params
}

// Build fetches up to RowLimit rows, indexes them as a single document and
// returns an Adaptive RAG whose retriever fetches RetrieverK documents.
func (b *Builder) Build(ctx context.Context) (*Adaptive, error) {
	if b.source == nil {
		return nil, ErrNoSource
	}
	params := b.Params()

	rows, err := b.source.FetchRows(ctx, params.RowLimit)
	if err != nil {
		if errors.Is(err, transactions.ErrSourceNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNoSource, err)
		}
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	logger.Info("[RAG] fetched transactions", "rows", rows.Len(), "limit", params.RowLimit)
	if rows.Len() == 0 {
		return nil, ErrNoRows
	}

	index, err := b.newIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	doc := vectorstore.Document{
		Content: rows.Text(),
		Metadata: map[string]any{
			"table": b.source.Table(),
			"rows":  rows.Len(),
		},
	}
	if err := index.Add(ctx, doc); err != nil {
		_ = index.Close(ctx)
		return nil, fmt.Errorf("index transactions: %w", err)
	}

	return NewAdaptive(
		b.client,
		Retriever{Index: index, K: params.RetrieverK},
		params.Retrieval,
		b.opts...,
	), nil
}
