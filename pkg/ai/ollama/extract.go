package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/drivetrace/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

// ExtractStructured sends a prompt to the extraction model with a JSON
// schema format constraint and decodes the response into out. The name
// and description parameters exist for interface parity; Ollama's format
// parameter carries only the schema itself.
func (c *Client) ExtractStructured(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	schemaObj := ai.GenerateSchema(out)
	formatBytes, err := json.Marshal(schemaObj)
	if err != nil {
		return err
	}
	var format json.RawMessage = formatBytes

	stream := false
	req := &api.ChatRequest{
		Model: c.extractionModel,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Stream:  &stream,
		Format:  format,
		Options: map[string]any{"temperature": 0.1},
	}

	// Small local models default to a 4096-token context; widen it when
	// the prompt alone would overflow.
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return err
	}
	promptTokens := len(enc.Encode(prompt, nil, nil)) + 200
	if promptTokens > 4096 {
		req.Options["num_ctx"] = promptTokens
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return wrapErr("extract", err)
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	var final api.ChatResponse
	if err := c.api.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return wrapErr("extract", err)
	}

	c.Add(ai.ModelMetrics{
		InputTokens:  final.PromptEvalCount,
		OutputTokens: final.EvalCount,
		TotalTokens:  final.PromptEvalCount + final.EvalCount,
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if err := ai.UnmarshalFlexible(final.Message.Content, out); err != nil {
		return wrapErr("extract", err)
	}
	return nil
}
