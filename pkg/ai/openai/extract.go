package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/drivetrace/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// ExtractStructured sends a prompt to the extraction model with a JSON
// schema derived from out and decodes the response into out. The schema
// name and description are surfaced to the model alongside the format.
func (c *Client) ExtractStructured(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
) error {
	schema := ai.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.extractionModel),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.1),
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return wrapErr("extract", err)
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.extractionClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return wrapErr("extract", err)
	}

	c.Add(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return wrapErr("extract", fmt.Errorf("no choices in response from model"))
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return wrapErr("extract", fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason))
	}
	if err := ai.UnmarshalFlexible(message, out); err != nil {
		return wrapErr("extract", err)
	}
	return nil
}
