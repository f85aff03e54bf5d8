package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/sentinela-br/sentinela/internal/logging"
)

// OpenAIClient wraps the official OpenAI SDK
type OpenAIClient struct {
	client openai.Client
	model  openai.ChatModel
	logger *slog.Logger
}

// NewOpenAIClient creates an OpenAI-backed completion client
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}

	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
		logger: logging.Component("openai"),
	}, nil
}

// CompleteJSON sends a prompt and requests a JSON object response
func (c *OpenAIClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model: c.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	text := completion.Choices[0].Message.Content
	c.logger.Debug("openai completion",
		"prompt_length", len(userPrompt),
		"response_length", len(text),
		"tokens", completion.Usage.TotalTokens,
	)
	return text, nil
}

// Close is a no-op; the SDK holds no persistent resources
func (c *OpenAIClient) Close() error { return nil }
