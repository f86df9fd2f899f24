package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/drivetrace/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// Embed creates one embedding per input text, preserving input order.
// Blank inputs are short-circuited to zero vectors so callers never pay a
// provider round trip for them. Every returned vector is padded or
// truncated to the configured dimension.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	idxMap, nonBlank, out := normalizeInputs(texts, c.dimension)
	if len(nonBlank) == 0 {
		return out, nil
	}

	vectors, err := c.embedStrings(ctx, nonBlank)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(nonBlank) {
		return nil, wrapErr("embed", fmt.Errorf("embedding result size mismatch: got %d want %d", len(vectors), len(nonBlank)))
	}
	for i := range vectors {
		out[idxMap[i]] = vectors[i]
	}
	return out, nil
}

func normalizeInputs(texts []string, dim int) (idxMap []int, nonBlank []string, out [][]float32) {
	idxMap = make([]int, 0, len(texts))
	nonBlank = make([]string, 0, len(texts))
	out = make([][]float32, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, dim)
			continue
		}
		idxMap = append(idxMap, i)
		nonBlank = append(nonBlank, t)
	}
	return idxMap, nonBlank, out
}

func (c *Client) embedStrings(ctx context.Context, inputs []string) ([][]float32, error) {
	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: c.embeddingModel,
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, wrapErr("embed", err)
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.embeddingClient.Embeddings.New(ctx, body)
	if err != nil {
		return nil, wrapErr("embed", err)
	}

	c.Add(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != len(inputs) {
		return nil, wrapErr("embed", fmt.Errorf("embedding response size mismatch: got %d want %d", len(response.Data), len(inputs)))
	}

	out := make([][]float32, len(inputs))
	for _, embedding := range response.Data {
		dataIdx := int(embedding.Index)
		if dataIdx < 0 || dataIdx >= len(inputs) {
			return nil, wrapErr("embed", fmt.Errorf("embedding index out of range: %d", embedding.Index))
		}
		out[dataIdx] = fitDimension(embedding.Embedding, c.dimension)
	}
	for i := range out {
		if out[i] == nil {
			return nil, wrapErr("embed", fmt.Errorf("missing embedding for index %d", i))
		}
	}
	return out, nil
}

func fitDimension(values []float64, dim int) []float32 {
	vec := make([]float32, 0, dim)
	for _, v := range values {
		if len(vec) >= dim {
			break
		}
		vec = append(vec, float32(v))
	}
	if len(vec) < dim {
		padded := make([]float32, dim)
		copy(padded, vec)
		vec = padded
	}
	return vec
}
