// Package llm implements the model-backed pipeline collaborators on top of
// the OpenAI chat completions API: classification, name extraction, reply
// generation, outstanding detection, and the semantic judge.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/levhaolam/support-engine/internal/llm")

const (
	classifierModel  = "gpt-5-mini"
	nameModel        = "gpt-4.1-nano"
	outstandingModel = "gpt-5-mini"
	judgeModel       = "gpt-5.1"

	callTimeout = 60 * time.Second
)

// Client is a thin shared wrapper over the OpenAI client used by every
// model-backed collaborator in this package.
type Client struct {
	api *openai.Client
}

// NewClient creates a client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{api: openai.NewClient(apiKey)}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint, for
// tests or gateway deployments. baseURL should include the /v1 path.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &Client{api: openai.NewClientWithConfig(config)}
}

// NewClientWithHTTPClient creates a client with a custom transport, for
// httptest-based tests.
func NewClientWithHTTPClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	config.HTTPClient = httpClient
	return &Client{api: openai.NewClientWithConfig(config)}
}

// complete sends one system+user exchange and returns the text of the first
// choice.
func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	return c.createCompletion(ctx, model, system, user, nil)
}

// completeJSON is complete with the JSON-object response format enabled, for
// collaborators with structured output schemas.
func (c *Client) completeJSON(ctx context.Context, model, system, user string) (string, error) {
	format := &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	return c.createCompletion(ctx, model, system, user, format)
}

func (c *Client) createCompletion(ctx context.Context, model, system, user string, format *openai.ChatCompletionResponseFormat) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.completion",
		trace.WithAttributes(attribute.String("gen_ai.request.model", model)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: format,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}

	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
