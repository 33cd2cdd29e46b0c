package transcribe

import (
	"bytes"
	"context"
	"fmt"

	"github.com/loqalabs/loqa-pitch/internal/media"
	openai "github.com/sashabaranov/go-openai"
)

type openAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAITranscriber sends audio to the Whisper transcription API. baseURL
// may point at any OpenAI-compatible server.
func NewOpenAITranscriber(apiKey, baseURL, model, language string) Transcriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &openAITranscriber{client: openai.NewClientWithConfig(cfg), model: model, language: language}
}

func (t *openAITranscriber) Transcribe(ctx context.Context, blob media.Blob) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: blob.FileName,
		Reader:   bytes.NewReader(blob.Data),
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}
