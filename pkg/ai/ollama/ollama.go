// Package ollama adapts a local or remote Ollama server to the ai
// interfaces.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/drivetrace/backend/pkg/ai"
	"github.com/drivetrace/backend/pkg/domain"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// Client talks to an Ollama server for embeddings and structured
// extraction. Create one with NewClient.
type Client struct {
	embeddingModel  string
	extractionModel string
	dimension       int

	reqLock *semaphore.Weighted

	ai.MetricsTracker

	api *api.Client
}

// NewClientParams configures a Client. ApiKey is optional; when set it is
// attached as a bearer token, which lets the same adapter reach hosted
// Ollama-compatible endpoints.
type NewClientParams struct {
	EmbeddingModel  string
	ExtractionModel string
	Dimension       int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewClient connects to the Ollama server at BaseURL (or the default if
// empty).
func NewClient(params NewClientParams) (*Client, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.ApiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.ApiKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	concurrency := params.MaxConcurrentRequests
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Client{
		embeddingModel:  params.EmbeddingModel,
		extractionModel: params.ExtractionModel,
		dimension:       params.Dimension,

		reqLock: semaphore.NewWeighted(concurrency),

		api: api.NewClient(u, httpClient),
	}, nil
}

// Dimension returns the embedding vector size.
func (c *Client) Dimension() int {
	return c.dimension
}

func wrapErr(op string, err error) error {
	transient := false
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		transient = statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	} else if errors.Is(err, context.DeadlineExceeded) {
		transient = true
	}
	return &domain.ProviderError{Op: op, Transient: transient, Err: err}
}
