// Package memory is an in-process exact-search vector index.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/potrek505/TEG-project/pkg/vectorstore"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type entry struct {
	doc    vectorstore.Document
	vector []float32
}

// Index keeps documents and vectors in memory and ranks by cosine similarity.
type Index struct {
	embedder vectorstore.Embedder

	mu      sync.RWMutex
	entries []entry
	closed  bool
}

// New returns an empty index that embeds with embedder.
func New(embedder vectorstore.Embedder) *Index {
	return &Index{embedder: embedder}
}

func (i *Index) Add(ctx context.Context, docs ...vectorstore.Document) error {
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

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return vectorstore.ErrClosed
	}
	for n, d := range docs {
		if d.ID == "" {
			d.ID = gonanoid.Must()
		}
		i.entries = append(i.entries, entry{doc: d, vector: vectors[n]})
	}
	return nil
}

func (i *Index) Search(ctx context.Context, query string, k int) ([]vectorstore.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	closed, empty := i.closed, len(i.entries) == 0
	i.mu.RUnlock()
	if closed {
		return nil, vectorstore.ErrClosed
	}
	if empty {
		return nil, nil
	}

	vectors, err := i.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}
	q := vectors[0]

	type scored struct {
		idx   int
		score float64
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	ranked := make([]scored, len(i.entries))
	for n, e := range i.entries {
		ranked[n] = scored{idx: n, score: vectorstore.CosineSimilarity(q, e.vector)}
	}
	// stable so equal scores keep insertion order
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	out := make([]vectorstore.Document, 0, min(k, len(ranked)))
	for _, r := range ranked[:min(k, len(ranked))] {
		out = append(out, i.entries[r.idx].doc)
	}
	return out, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *Index) Close(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.entries = nil
	return nil
}

var _ vectorstore.Index = (*Index)(nil)
