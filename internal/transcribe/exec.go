package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-pitch/internal/media"
	"github.com/mattn/go-shellwords"
)

type execTranscriber struct {
	cmd      []string
	language string
	mu       sync.Mutex
}

// NewExecTranscriber runs a local command against a temporary copy of the
// audio. The command receives --audio <path> and prints the service JSON.
func NewExecTranscriber(command, language string) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse transcription command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcription command is empty")
	}
	return &execTranscriber{cmd: args, language: language}, nil
}

func (t *execTranscriber) Transcribe(ctx context.Context, blob media.Blob) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ext := blob.Extension()
	if ext == "" {
		ext = media.ExtensionFor(blob.ContentType)
	}
	file, err := os.CreateTemp(os.TempDir(), "loqa_pitch_*."+ext)
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(blob.Data); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("sync audio: %w", err)
	}

	args := append([]string{}, t.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if t.language != "" {
		args = append(args, "--language", t.language)
	}

	command := exec.CommandContext(ctx, t.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("transcription command failed: %w: %s", err, stderr.String())
	}
	return ParseResponse(stdout.Bytes())
}
