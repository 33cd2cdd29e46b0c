// Package transcribe turns recorded or uploaded audio into text.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loqalabs/loqa-pitch/internal/media"
)

// Transcriber abstracts transcription backends.
type Transcriber interface {
	Transcribe(ctx context.Context, blob media.Blob) (string, error)
}

// response covers every field name transcription deployments use.
type response struct {
	Transcript    *string `json:"transcript"`
	Transcription *string `json:"transcription"`
	Text          *string `json:"text"`
}

// ParseResponse extracts the transcript from a service response, trying
// transcript, transcription and text in that order. A response without any of
// them yields an empty string.
func ParseResponse(body []byte) (string, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	for _, field := range []*string{resp.Transcript, resp.Transcription, resp.Text} {
		if field != nil && *field != "" {
			return *field, nil
		}
	}
	return "", nil
}
