package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-pitch/internal/config"
	"github.com/loqalabs/loqa-pitch/internal/pipeline"
)

func TestBuildPipelineMockModes(t *testing.T) {
	cfg := config.Default()
	cfg.Dictation.Enabled = true
	cfg.Recorder.Enabled = true
	cfg.Recorder.SupportedMimeTypes = []string{"audio/ogg;codecs=opus"}
	cfg.Transcription.Mode = "mock"
	cfg.Feedback.Mode = "mock"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := BuildPipeline(context.Background(), cfg, nil, logger)
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	defer p.Close()

	modes := p.Modes()
	for _, m := range []pipeline.Mode{pipeline.ModeLiveDictation, pipeline.ModeRecordedAudio, pipeline.ModeUploadedFile} {
		if !modes[m] {
			t.Fatalf("expected %s available", m)
		}
	}

	probes := p.Probes()
	if len(probes) != 3 {
		t.Fatalf("expected three probes, got %d", len(probes))
	}
	for _, probe := range probes {
		if probe.Name == string(pipeline.ModeRecordedAudio) && probe.Attributes["extension"] != "ogg" {
			t.Fatalf("expected negotiated ogg, got %v", probe.Attributes)
		}
	}
}

func TestBuildPipelineDisabledCapture(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.Mode = "mock"
	cfg.Feedback.Mode = "mock"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := BuildPipeline(context.Background(), cfg, nil, logger)
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	defer p.Close()

	modes := p.Modes()
	if modes[pipeline.ModeLiveDictation] || modes[pipeline.ModeRecordedAudio] {
		t.Fatalf("expected capture modes disabled, got %v", modes)
	}
	if !modes[pipeline.ModeUploadedFile] {
		t.Fatal("expected uploads available")
	}
}

func TestBuildPipelineRejectsBadCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Feedback.Mode = "exec"
	cfg.Feedback.Command = `unterminated "quote`

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := BuildPipeline(context.Background(), cfg, nil, logger); err == nil {
		t.Fatal("expected error for unparseable command")
	}
}

func TestLanguageCode(t *testing.T) {
	cases := map[string]string{"en-US": "en", "fr": "fr", "": "", " PT-br ": "pt"}
	for in, want := range cases {
		if got := languageCode(in); got != want {
			t.Fatalf("languageCode(%q) = %q, want %q", in, got, want)
		}
	}
}
