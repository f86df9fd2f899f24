package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/drivetrace/backend/pkg/ai"

	"github.com/ollama/ollama/api"
)

// Embed creates one embedding per input text, preserving input order.
// Blank inputs map to zero vectors without hitting the server. Vectors
// are padded or truncated to the configured dimension.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	idxMap := make([]int, 0, len(texts))
	nonBlank := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, c.dimension)
			continue
		}
		idxMap = append(idxMap, i)
		nonBlank = append(nonBlank, t)
	}
	if len(nonBlank) == 0 {
		return out, nil
	}

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: nonBlank,
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, wrapErr("embed", err)
	}
	defer c.reqLock.Release(1)

	res, err := c.api.Embed(ctx, req)
	if err != nil {
		return nil, wrapErr("embed", err)
	}

	c.Add(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) != len(nonBlank) {
		return nil, wrapErr("embed", fmt.Errorf("embedding response size mismatch: got %d want %d", len(res.Embeddings), len(nonBlank)))
	}

	for i, vec := range res.Embeddings {
		fitted := make([]float32, 0, c.dimension)
		for _, v := range vec {
			if len(fitted) >= c.dimension {
				break
			}
			fitted = append(fitted, v)
		}
		if len(fitted) < c.dimension {
			padded := make([]float32, c.dimension)
			copy(padded, fitted)
			fitted = padded
		}
		out[idxMap[i]] = fitted
	}
	return out, nil
}
