package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transcription.FieldName != "audio" {
		t.Fatalf("expected default field name audio, got %q", cfg.Transcription.FieldName)
	}
	if cfg.Dictation.Language != "en-US" || cfg.Dictation.MaxAlternatives != 1 {
		t.Fatalf("unexpected dictation defaults: %+v", cfg.Dictation)
	}
	if cfg.Feedback.TimeoutMS <= 0 || cfg.Transcription.TimeoutMS <= 0 {
		t.Fatal("expected network timeouts to be set by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pitch.yaml")
	data := []byte(`
runtime_name: pitch-test
transcription:
  mode: http
  endpoint: http://transcriber:5001/generate-transcript
  field_name: file
feedback:
  mode: mock
recorder:
  enabled: true
  mode: mock
  supported_mime_types:
    - audio/ogg;codecs=opus
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "pitch-test" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.Transcription.FieldName != "file" {
		t.Fatalf("expected field name file, got %q", cfg.Transcription.FieldName)
	}
	if len(cfg.Recorder.SupportedMimeTypes) != 1 || cfg.Recorder.SupportedMimeTypes[0] != "audio/ogg;codecs=opus" {
		t.Fatalf("unexpected mime types: %v", cfg.Recorder.SupportedMimeTypes)
	}
	if cfg.Recorder.ChunkBytes != 4096 {
		t.Fatalf("expected default chunk bytes to survive partial yaml, got %d", cfg.Recorder.ChunkBytes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_PITCH_BUS_ENABLED", "true")
	t.Setenv("LOQA_PITCH_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_PITCH_BUS_EMBEDDED", "false")
	t.Setenv("LOQA_PITCH_DICTATION_ENABLED", "true")
	t.Setenv("LOQA_PITCH_DICTATION_MODE", "exec")
	t.Setenv("LOQA_PITCH_DICTATION_COMMAND", "pitch-listen --device default")
	t.Setenv("LOQA_PITCH_RECORDER_SUPPORTED_MIME_TYPES", "audio/webm;codecs=opus")
	t.Setenv("LOQA_PITCH_FEEDBACK_MODE", "ollama")
	t.Setenv("LOQA_PITCH_FEEDBACK_ENDPOINT", "http://localhost:11434")
	t.Setenv("LOQA_PITCH_FEEDBACK_TEMPERATURE", "0.9")
	t.Setenv("LOQA_PITCH_TRANSCRIPTION_TIMEOUT_MS", "15000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Bus.Enabled || cfg.Bus.Embedded {
		t.Fatalf("expected external bus, got %+v", cfg.Bus)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Dictation.Mode != "exec" || cfg.Dictation.Command != "pitch-listen --device default" {
		t.Fatalf("expected dictation override, got %+v", cfg.Dictation)
	}
	if len(cfg.Recorder.SupportedMimeTypes) != 1 {
		t.Fatalf("expected mime override, got %v", cfg.Recorder.SupportedMimeTypes)
	}
	if cfg.Feedback.Mode != "ollama" || cfg.Feedback.Temperature != 0.9 {
		t.Fatalf("expected feedback override, got %+v", cfg.Feedback)
	}
	if cfg.Transcription.TimeoutMS != 15000 {
		t.Fatalf("expected timeout override, got %d", cfg.Transcription.TimeoutMS)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"exec dictation without command": func(c *Config) {
			c.Dictation.Enabled = true
			c.Dictation.Mode = "exec"
		},
		"unknown feedback mode": func(c *Config) {
			c.Feedback.Mode = "carrier-pigeon"
		},
		"openai transcription without key": func(c *Config) {
			c.Transcription.Mode = "openai"
		},
		"zero feedback timeout": func(c *Config) {
			c.Feedback.TimeoutMS = 0
		},
		"bad log level": func(c *Config) {
			c.Telemetry.LogLevel = "loud"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
