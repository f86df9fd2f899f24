// Package ai defines the provider-neutral interfaces for embedding and
// structured-extraction models, plus shared helpers for schema generation
// and tolerant JSON decoding of model output.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// EmbeddingClient produces dense vectors for text inputs. Implementations
// must return one vector per input, in input order, each of exactly
// Dimension() values. Empty or whitespace-only inputs map to zero vectors
// without a provider round trip.
type EmbeddingClient interface {
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ExtractionClient asks a chat model for output conforming to the JSON
// schema derived from out, and decodes the response into out.
type ExtractionClient interface {
	ExtractStructured(ctx context.Context, name, description, prompt string, out any) error
}

// ModelMetrics accumulates token usage and latency across provider calls.
type ModelMetrics struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	DurationMs   int64
}

// MetricsTracker is the mutex'd accumulator embedded by the adapters.
type MetricsTracker struct {
	mu      sync.Mutex
	metrics ModelMetrics
}

// Add folds a single call's usage into the running totals.
func (t *MetricsTracker) Add(m ModelMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.InputTokens += m.InputTokens
	t.metrics.OutputTokens += m.OutputTokens
	t.metrics.TotalTokens += m.TotalTokens
	t.metrics.DurationMs += m.DurationMs
}

// Snapshot returns a copy of the accumulated metrics.
func (t *MetricsTracker) Snapshot() ModelMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// GenerateSchema creates a JSON Schema from the given Go type, suitable
// for use as a structured-output format parameter.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// UnmarshalFlexible decodes model-generated JSON into out with fallbacks:
// standard decoding first, then double-encoded strings, then a repair pass
// for malformed output.
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err == nil {
		return nil
	}

	return fmt.Errorf(
		"unmarshal failed after repair: input=%s repaired=%s",
		input, repaired,
	)
}
