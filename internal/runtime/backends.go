package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/capability"
	"github.com/loqalabs/loqa-pitch/internal/config"
	"github.com/loqalabs/loqa-pitch/internal/dictation"
	"github.com/loqalabs/loqa-pitch/internal/feedback"
	"github.com/loqalabs/loqa-pitch/internal/media"
	"github.com/loqalabs/loqa-pitch/internal/pipeline"
	"github.com/loqalabs/loqa-pitch/internal/recorder"
	"github.com/loqalabs/loqa-pitch/internal/transcribe"
)

// Pipeline bundles an orchestrator with the adapters it was built from.
type Pipeline struct {
	*pipeline.Orchestrator
	Dictation *dictation.Adapter
	Recorder  *recorder.Adapter
	format    media.Format
	cfg       config.Config
}

// BuildPipeline wires capture adapters and network backends from cfg.
func BuildPipeline(ctx context.Context, cfg config.Config, onFailure func(string, *pipeline.Error), logger *slog.Logger) (*Pipeline, error) {
	dict, err := buildDictation(cfg.Dictation, logger)
	if err != nil {
		return nil, err
	}
	rec, device, err := buildRecorder(cfg.Recorder, logger)
	if err != nil {
		return nil, err
	}
	tr, err := buildTranscriber(cfg.Transcription, cfg.Dictation.Language)
	if err != nil {
		return nil, err
	}
	fb, err := buildFeedback(cfg.Feedback)
	if err != nil {
		return nil, err
	}

	orch := pipeline.New(ctx, pipeline.Options{
		Dictation:         dict,
		Recorder:          rec,
		Transcriber:       tr,
		Feedback:          fb,
		TranscribeTimeout: time.Duration(cfg.Transcription.TimeoutMS) * time.Millisecond,
		FeedbackTimeout:   time.Duration(cfg.Feedback.TimeoutMS) * time.Millisecond,
		OnFailure:         onFailure,
	}, logger)

	p := &Pipeline{Orchestrator: orch, Dictation: dict, Recorder: rec, cfg: cfg}
	if device != nil {
		p.format = media.Negotiate(device)
	}
	logger.Info("pipeline configured",
		slog.Bool("dictation", dict.Available()),
		slog.Bool("recorder", rec.Available()),
		slog.String("transcription_mode", cfg.Transcription.Mode),
		slog.String("feedback_mode", cfg.Feedback.Mode),
	)
	return p, nil
}

// Probes describes each capture mode for the capability registry.
func (p *Pipeline) Probes() []capability.Probe {
	modes := func(m pipeline.Mode) func() bool {
		return func() bool { return p.Modes()[m] }
	}
	recorded := map[string]string{"mime_type": p.format.MimeType, "extension": p.format.Extension}
	if p.format.MimeType == "" {
		recorded["mime_type"] = media.DefaultBlobType
	}
	return []capability.Probe{
		{
			Name:       string(pipeline.ModeLiveDictation),
			Available:  modes(pipeline.ModeLiveDictation),
			Attributes: map[string]string{"language": p.cfg.Dictation.Language, "engine": p.cfg.Dictation.Mode},
		},
		{
			Name:       string(pipeline.ModeRecordedAudio),
			Available:  modes(pipeline.ModeRecordedAudio),
			Attributes: recorded,
		},
		{
			Name:       string(pipeline.ModeUploadedFile),
			Available:  modes(pipeline.ModeUploadedFile),
			Attributes: map[string]string{"transcription": p.cfg.Transcription.Mode},
		},
	}
}

func buildDictation(cfg config.DictationConfig, logger *slog.Logger) (*dictation.Adapter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var engine dictation.Engine
	switch cfg.Mode {
	case "mock":
		engine = dictation.NewMockEngine(1500*time.Millisecond,
			"We help small clinics cut patient wait times in half.",
			"Our scheduling assistant is live in twelve practices.",
		)
	case "exec":
		e, err := dictation.NewExecEngine(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("dictation: %w", err)
		}
		engine = e
	default:
		return nil, fmt.Errorf("unsupported dictation mode %q", cfg.Mode)
	}
	return dictation.NewAdapter(engine, dictation.Options{
		Settings: dictation.Settings{
			Language:        cfg.Language,
			MaxAlternatives: cfg.MaxAlternatives,
		},
		ErrorBackoff: time.Duration(cfg.ErrorBackoffMS) * time.Millisecond,
		StopTimeout:  time.Duration(cfg.StopTimeoutMS) * time.Millisecond,
	}, logger), nil
}

func buildRecorder(cfg config.RecorderConfig, logger *slog.Logger) (*recorder.Adapter, recorder.Device, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	var device recorder.Device
	switch cfg.Mode {
	case "mock":
		device = recorder.NewMockDevice(cfg.SupportedMimeTypes)
	case "exec":
		d, err := recorder.NewExecDevice(cfg.Command, cfg.SupportedMimeTypes, cfg.ChunkBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("recorder: %w", err)
		}
		device = d
	default:
		return nil, nil, fmt.Errorf("unsupported recorder mode %q", cfg.Mode)
	}
	return recorder.NewAdapter(device, logger), device, nil
}

func buildTranscriber(cfg config.TranscriptionConfig, locale string) (transcribe.Transcriber, error) {
	switch cfg.Mode {
	case "mock":
		return transcribe.NewMockTranscriber(), nil
	case "http":
		return transcribe.NewHTTPTranscriber(cfg.Endpoint, cfg.FieldName, &http.Client{}), nil
	case "openai":
		return transcribe.NewOpenAITranscriber(cfg.APIKey, cfg.BaseURL, cfg.Model, languageCode(locale)), nil
	case "exec":
		t, err := transcribe.NewExecTranscriber(cfg.Command, languageCode(locale))
		if err != nil {
			return nil, fmt.Errorf("transcription: %w", err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("unsupported transcription mode %q", cfg.Mode)
}

func buildFeedback(cfg config.FeedbackConfig) (feedback.Client, error) {
	switch cfg.Mode {
	case "mock":
		return feedback.NewMockClient(), nil
	case "http":
		return feedback.NewHTTPClient(cfg.Endpoint, &http.Client{}), nil
	case "ollama":
		return feedback.NewOllamaClient(cfg.Endpoint, cfg.Model, cfg.SystemPrompt, cfg.MaxTokens, cfg.Temperature), nil
	case "openai":
		return feedback.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.SystemPrompt, cfg.MaxTokens, cfg.Temperature), nil
	case "exec":
		c, err := feedback.NewExecClient(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("feedback: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported feedback mode %q", cfg.Mode)
}

// languageCode reduces a locale such as en-US to the ISO-639-1 code
// transcription backends expect.
func languageCode(locale string) string {
	code, _, _ := strings.Cut(locale, "-")
	return strings.ToLower(strings.TrimSpace(code))
}
