package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
	SentryDSN      string `yaml:"sentry_dsn"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName   string              `yaml:"runtime_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bus           BusConfig           `yaml:"bus"`
	Dictation     DictationConfig     `yaml:"dictation"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Feedback      FeedbackConfig      `yaml:"feedback"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`

	// AnnounceIntervalMS is how often host capabilities are re-announced.
	AnnounceIntervalMS int `yaml:"announce_interval_ms"`
}

// DictationConfig drives the live dictation engine.
type DictationConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	Language        string `yaml:"language"`
	MaxAlternatives int    `yaml:"max_alternatives"`
	ErrorBackoffMS  int    `yaml:"error_backoff_ms"`
	StopTimeoutMS   int    `yaml:"stop_timeout_ms"`
}

// RecorderConfig drives the microphone recorder.
type RecorderConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Mode               string   `yaml:"mode"` // mock, exec
	Command            string   `yaml:"command"`
	SupportedMimeTypes []string `yaml:"supported_mime_types"`
	ChunkBytes         int      `yaml:"chunk_bytes"`
}

type TranscriptionConfig struct {
	Mode      string `yaml:"mode"` // mock, http, openai, exec
	Endpoint  string `yaml:"endpoint"`
	FieldName string `yaml:"field_name"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type FeedbackConfig struct {
	Mode         string  `yaml:"mode"` // mock, http, ollama, openai, exec
	Endpoint     string  `yaml:"endpoint"`
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	Command      string  `yaml:"command"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	TimeoutMS    int     `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-pitch",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,

			AnnounceIntervalMS: 10000,
		},
		Dictation: DictationConfig{
			Enabled:         false,
			Mode:            "mock",
			Language:        "en-US",
			MaxAlternatives: 1,
			ErrorBackoffMS:  250,
			StopTimeoutMS:   3000,
		},
		Recorder: RecorderConfig{
			Enabled:            false,
			Mode:               "mock",
			SupportedMimeTypes: []string{"audio/webm;codecs=opus", "audio/ogg;codecs=opus"},
			ChunkBytes:         4096,
		},
		Transcription: TranscriptionConfig{
			Mode:      "http",
			Endpoint:  "http://localhost:5001/transcribe",
			FieldName: "audio",
			Model:     "whisper-1",
			TimeoutMS: 60000,
		},
		Feedback: FeedbackConfig{
			Mode:        "http",
			Endpoint:    "http://localhost:8000/generate",
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.4,
			TimeoutMS:   60000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_PITCH_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_PITCH_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_PITCH_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_PITCH_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_PITCH_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_PITCH_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_PITCH_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_PITCH_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Telemetry.SentryDSN, "LOQA_PITCH_TELEMETRY_SENTRY_DSN")
	overrideBool(&cfg.Bus.Enabled, "LOQA_PITCH_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_PITCH_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_PITCH_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_PITCH_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_PITCH_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_PITCH_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_PITCH_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_PITCH_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_PITCH_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_PITCH_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.AnnounceIntervalMS, "LOQA_PITCH_BUS_ANNOUNCE_INTERVAL_MS")
	overrideBool(&cfg.Dictation.Enabled, "LOQA_PITCH_DICTATION_ENABLED")
	overrideString(&cfg.Dictation.Mode, "LOQA_PITCH_DICTATION_MODE")
	overrideString(&cfg.Dictation.Command, "LOQA_PITCH_DICTATION_COMMAND")
	overrideString(&cfg.Dictation.Language, "LOQA_PITCH_DICTATION_LANGUAGE")
	overrideInt(&cfg.Dictation.ErrorBackoffMS, "LOQA_PITCH_DICTATION_ERROR_BACKOFF_MS")
	overrideInt(&cfg.Dictation.StopTimeoutMS, "LOQA_PITCH_DICTATION_STOP_TIMEOUT_MS")
	overrideBool(&cfg.Recorder.Enabled, "LOQA_PITCH_RECORDER_ENABLED")
	overrideString(&cfg.Recorder.Mode, "LOQA_PITCH_RECORDER_MODE")
	overrideString(&cfg.Recorder.Command, "LOQA_PITCH_RECORDER_COMMAND")
	overrideStringSlice(&cfg.Recorder.SupportedMimeTypes, "LOQA_PITCH_RECORDER_SUPPORTED_MIME_TYPES")
	overrideInt(&cfg.Recorder.ChunkBytes, "LOQA_PITCH_RECORDER_CHUNK_BYTES")
	overrideString(&cfg.Transcription.Mode, "LOQA_PITCH_TRANSCRIPTION_MODE")
	overrideString(&cfg.Transcription.Endpoint, "LOQA_PITCH_TRANSCRIPTION_ENDPOINT")
	overrideString(&cfg.Transcription.FieldName, "LOQA_PITCH_TRANSCRIPTION_FIELD_NAME")
	overrideString(&cfg.Transcription.APIKey, "LOQA_PITCH_TRANSCRIPTION_API_KEY")
	overrideString(&cfg.Transcription.BaseURL, "LOQA_PITCH_TRANSCRIPTION_BASE_URL")
	overrideString(&cfg.Transcription.Model, "LOQA_PITCH_TRANSCRIPTION_MODEL")
	overrideString(&cfg.Transcription.Command, "LOQA_PITCH_TRANSCRIPTION_COMMAND")
	overrideInt(&cfg.Transcription.TimeoutMS, "LOQA_PITCH_TRANSCRIPTION_TIMEOUT_MS")
	overrideString(&cfg.Feedback.Mode, "LOQA_PITCH_FEEDBACK_MODE")
	overrideString(&cfg.Feedback.Endpoint, "LOQA_PITCH_FEEDBACK_ENDPOINT")
	overrideString(&cfg.Feedback.APIKey, "LOQA_PITCH_FEEDBACK_API_KEY")
	overrideString(&cfg.Feedback.BaseURL, "LOQA_PITCH_FEEDBACK_BASE_URL")
	overrideString(&cfg.Feedback.Model, "LOQA_PITCH_FEEDBACK_MODEL")
	overrideString(&cfg.Feedback.SystemPrompt, "LOQA_PITCH_FEEDBACK_SYSTEM_PROMPT")
	overrideString(&cfg.Feedback.Command, "LOQA_PITCH_FEEDBACK_COMMAND")
	overrideInt(&cfg.Feedback.MaxTokens, "LOQA_PITCH_FEEDBACK_MAX_TOKENS")
	overrideFloat(&cfg.Feedback.Temperature, "LOQA_PITCH_FEEDBACK_TEMPERATURE")
	overrideInt(&cfg.Feedback.TimeoutMS, "LOQA_PITCH_FEEDBACK_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.AnnounceIntervalMS <= 0 {
			return errors.New("bus.announce_interval_ms must be positive")
		}
	}
	if cfg.Dictation.Enabled {
		switch cfg.Dictation.Mode {
		case "mock", "exec":
		default:
			return errors.New("dictation.mode must be one of mock|exec")
		}
		if cfg.Dictation.Mode == "exec" && cfg.Dictation.Command == "" {
			return errors.New("dictation.command must be set when mode=exec")
		}
		if cfg.Dictation.Language == "" {
			return errors.New("dictation.language must not be empty")
		}
		if cfg.Dictation.MaxAlternatives <= 0 {
			return errors.New("dictation.max_alternatives must be >= 1")
		}
		if cfg.Dictation.ErrorBackoffMS < 0 {
			return errors.New("dictation.error_backoff_ms must be >= 0")
		}
	}
	if cfg.Recorder.Enabled {
		switch cfg.Recorder.Mode {
		case "mock", "exec":
		default:
			return errors.New("recorder.mode must be one of mock|exec")
		}
		if cfg.Recorder.Mode == "exec" && cfg.Recorder.Command == "" {
			return errors.New("recorder.command must be set when mode=exec")
		}
		if cfg.Recorder.ChunkBytes <= 0 {
			return errors.New("recorder.chunk_bytes must be positive")
		}
	}
	switch cfg.Transcription.Mode {
	case "mock", "http", "openai", "exec":
	default:
		return errors.New("transcription.mode must be one of mock|http|openai|exec")
	}
	if cfg.Transcription.Mode == "http" {
		if cfg.Transcription.Endpoint == "" {
			return errors.New("transcription.endpoint must be set when mode=http")
		}
		if cfg.Transcription.FieldName == "" {
			return errors.New("transcription.field_name must be set when mode=http")
		}
	}
	if cfg.Transcription.Mode == "openai" && cfg.Transcription.APIKey == "" {
		return errors.New("transcription.api_key must be set when mode=openai")
	}
	if cfg.Transcription.Mode == "exec" && cfg.Transcription.Command == "" {
		return errors.New("transcription.command must be set when mode=exec")
	}
	if cfg.Transcription.TimeoutMS <= 0 {
		return errors.New("transcription.timeout_ms must be positive")
	}
	switch cfg.Feedback.Mode {
	case "mock", "http", "ollama", "openai", "exec":
	default:
		return errors.New("feedback.mode must be one of mock|http|ollama|openai|exec")
	}
	if (cfg.Feedback.Mode == "http" || cfg.Feedback.Mode == "ollama") && cfg.Feedback.Endpoint == "" {
		return fmt.Errorf("feedback.endpoint must be set when mode=%s", cfg.Feedback.Mode)
	}
	if cfg.Feedback.Mode == "openai" && cfg.Feedback.APIKey == "" {
		return errors.New("feedback.api_key must be set when mode=openai")
	}
	if cfg.Feedback.Mode == "exec" && cfg.Feedback.Command == "" {
		return errors.New("feedback.command must be set when mode=exec")
	}
	if cfg.Feedback.MaxTokens < 0 {
		return errors.New("feedback.max_tokens must be >= 0")
	}
	if cfg.Feedback.TimeoutMS <= 0 {
		return errors.New("feedback.timeout_ms must be positive")
	}
	return nil
}
