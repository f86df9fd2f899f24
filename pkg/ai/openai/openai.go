// Package openai adapts OpenAI-compatible endpoints to the ai interfaces.
// Separate clients are held for embeddings and extraction so the two
// concerns can point at different endpoints and keys.
package openai

import (
	"context"
	"errors"

	"github.com/drivetrace/backend/pkg/ai"
	"github.com/drivetrace/backend/pkg/domain"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// Client talks to OpenAI-compatible APIs for embeddings and structured
// extraction. Create one with NewClient.
type Client struct {
	embeddingModel  string
	extractionModel string
	dimension       int

	reqLock *semaphore.Weighted

	ai.MetricsTracker

	embeddingClient  *openai.Client
	extractionClient *openai.Client
}

// NewClientParams configures a Client. Dimension is the vector size every
// embedding is normalized to; MaxConcurrentRequests bounds in-flight
// provider calls across both models.
type NewClientParams struct {
	EmbeddingModel  string
	ExtractionModel string
	Dimension       int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
}

// NewClient creates a Client with separate underlying API clients for
// embeddings and extraction.
func NewClient(params NewClientParams) *Client {
	concurrency := params.MaxConcurrentRequests
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Client{
		embeddingModel:  params.EmbeddingModel,
		extractionModel: params.ExtractionModel,
		dimension:       params.Dimension,

		reqLock: semaphore.NewWeighted(concurrency),

		embeddingClient:  newAPIClient(params.EmbeddingURL, params.EmbeddingKey),
		extractionClient: newAPIClient(params.ChatURL, params.ChatKey),
	}
}

// Dimension returns the embedding vector size.
func (c *Client) Dimension() int {
	return c.dimension
}

func newAPIClient(baseURL, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// wrapErr classifies a provider failure so callers can decide whether a
// retry is worthwhile. Rate limits and server-side errors are transient;
// auth and request errors are not.
func wrapErr(op string, err error) error {
	transient := false
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		transient = apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	} else if errors.Is(err, context.DeadlineExceeded) {
		transient = true
	}
	return &domain.ProviderError{Op: op, Transient: transient, Err: err}
}
