package transcribe

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-pitch/internal/media"
)

type mockTranscriber struct{}

func NewMockTranscriber() Transcriber {
	return &mockTranscriber{}
}

func (m *mockTranscriber) Transcribe(_ context.Context, blob media.Blob) (string, error) {
	return fmt.Sprintf("[mock transcript of %s bytes=%d]", blob.FileName, len(blob.Data)), nil
}
