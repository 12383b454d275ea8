// Package vectorstore indexes documents by embedding for similarity search.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/logger"
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("vector index closed")

// Document is a unit of retrievable text.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Index stores documents and returns the nearest ones to a query.
type Index interface {
	Add(ctx context.Context, docs ...Document) error
	// Search returns at most k documents, most similar first.
	Search(ctx context.Context, query string, k int) ([]Document, error)
	Len() int
	// Close releases the index; later calls return ErrClosed.
	Close(ctx context.Context) error
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ClientEmbedder embeds through an ai.Client. Texts longer than Window
// tokens are split, embedded piecewise and combined into a
// length-weighted, normalized average.
type ClientEmbedder struct {
	Client ai.Client
	// Window is the maximum number of tokens per request input; 0 disables splitting.
	Window int
}

// Embed returns one vector per text.
func (e ClientEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.Window <= 0 {
		return e.Client.GenerateEmbeddings(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		pieces, weights, err := ai.SplitTokens(ai.EncodingEmbedding, text, e.Window)
		if err != nil {
			return nil, err
		}
		vectors, err := e.Client.GenerateEmbeddings(ctx, pieces)
		if err != nil {
			return nil, err
		}
		if len(pieces) > 1 {
			logger.Debug("[VectorStore] embedded long text in windows", "windows", len(pieces))
		}
		out[i], err = WeightedAverage(vectors, weights)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WeightedAverage combines vectors by weight and normalizes the result to
// unit length. A single vector is returned unchanged.
func WeightedAverage(vectors [][]float32, weights []int) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to average")
	}
	if len(vectors) != len(weights) {
		return nil, fmt.Errorf("vector/weight count mismatch: %d != %d", len(vectors), len(weights))
	}
	if len(vectors) == 1 {
		return vectors[0], nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	total := 0.0
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("dimension mismatch: %d != %d", len(v), dim)
		}
		w := float64(weights[i])
		total += w
		for j, x := range v {
			sum[j] += float64(x) * w
		}
	}

	norm := 0.0
	for j := range sum {
		sum[j] /= total
		norm += sum[j] * sum[j]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	for j, x := range sum {
		if norm > 0 {
			x /= norm
		}
		out[j] = float32(x)
	}
	return out, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either has zero length or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
