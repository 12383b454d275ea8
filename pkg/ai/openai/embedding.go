package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/potrek505/TEG-project/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateEmbeddings creates embeddings for multiple inputs in a single request.
// Blank inputs map to zero vectors without being sent to the API.
func (c *OpenAIClient) GenerateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(inputs))
	idxMap := make([]int, 0, len(inputs))
	stringsIn := make([]string, 0, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in) == "" {
			continue
		}
		idxMap = append(idxMap, i)
		stringsIn = append(stringsIn, in)
	}

	if len(stringsIn) > 0 {
		vectors, err := c.embed(ctx, stringsIn)
		if err != nil {
			return nil, err
		}
		for i := range vectors {
			out[idxMap[i]] = vectors[i]
		}
	}

	dim := c.embeddingDim
	if dim <= 0 {
		for _, v := range out {
			if v != nil {
				dim = len(v)
				break
			}
		}
	}
	for i := range out {
		if out[i] == nil {
			out[i] = make([]float32, dim)
		}
	}
	return out, nil
}

func (c *OpenAIClient) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: c.embeddingModel,
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.EmbeddingClient.Embeddings.New(ctx, body)
	if err != nil {
		return nil, err
	}
	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want %d", len(response.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for _, embedding := range response.Data {
		idx := int(embedding.Index)
		if idx < 0 || idx >= len(inputs) {
			return nil, fmt.Errorf("embedding index out of range: %d", embedding.Index)
		}
		out[idx] = fitDimensions(embedding.Embedding, c.embeddingDim)
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return out, nil
}

func fitDimensions(in []float64, dim int) []float32 {
	if dim <= 0 {
		dim = len(in)
	}
	vec := make([]float32, dim)
	for i := 0; i < dim && i < len(in); i++ {
		vec[i] = float32(in[i])
	}
	return vec
}
