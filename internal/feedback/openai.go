package feedback

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openAIClient struct {
	client      *openai.Client
	model       string
	system      string
	maxTokens   int
	temperature float32
}

// NewOpenAIClient asks a chat-completion model for the critique.
func NewOpenAIClient(apiKey, baseURL, model, systemPrompt string, maxTokens int, temperature float64) Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &openAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		system:      systemPrompt,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}
}

func (c *openAIClient) Critique(ctx context.Context, transcript string) (Result, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.system},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return NewResult(""), nil
	}
	return NewResult(resp.Choices[0].Message.Content), nil
}
