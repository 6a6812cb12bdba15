package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// GenerateOptions are the sampling parameters of a completion request.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
}

// ErrEmptyInput is returned when asked to embed blank text.
var ErrEmptyInput = errors.New("empty input")

// Client wraps an OpenAI-compatible API client for chat completions and
// embeddings.
type Client struct {
	api        *openai.Client
	model      string
	embedModel string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName, embedModel string) (*Client, error) {
	if modelName == "" {
		return nil, errors.New("model name is required")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:        openai.NewClientWithConfig(config),
		model:      modelName,
		embedModel: embedModel,
	}, nil
}

// Ping checks that the endpoint is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Generate sends a single-prompt chat completion and returns the text of the
// first choice.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	text := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "chars", len(text), "finish_reason", resp.Choices[0].FinishReason)
	return text, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if c.embedModel == "" {
		return nil, errors.New("no embedding model configured")
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API call: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding API returned no vectors")
	}
	return resp.Data[0].Embedding, nil
}
