package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/config"
	"github.com/loqalabs/loqa-pitch/internal/pipeline"
	"github.com/loqalabs/loqa-pitch/internal/runtime"
)

var version = "0.1.0-dev"

const defaultConfigPath = "pitch.yaml"

type commonFlags struct {
	configPath string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", defaultConfigPath, "Path to configuration file (defaults apply when the default file is absent)")
	fs.BoolVar(&c.verbose, "v", false, "Log pipeline activity to stderr")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'upload', 'dictate', 'record', 'validate' or 'version'")
		os.Exit(2)
	}

	var (
		common   commonFlags
		file     string
		duration time.Duration
	)

	var err error
	switch os.Args[1] {
	case "upload":
		fs := flag.NewFlagSet("upload", flag.ExitOnError)
		common.register(fs)
		fs.StringVar(&file, "file", "", "Audio file to transcribe and critique")
		fs.Parse(os.Args[2:])
		err = runUpload(common, file)
	case "dictate":
		fs := flag.NewFlagSet("dictate", flag.ExitOnError)
		common.register(fs)
		fs.DurationVar(&duration, "duration", 0, "Stop after this long (default: until interrupted)")
		fs.Parse(os.Args[2:])
		err = runCapture(common, pipeline.ModeLiveDictation, duration)
	case "record":
		fs := flag.NewFlagSet("record", flag.ExitOnError)
		common.register(fs)
		fs.DurationVar(&duration, "duration", 0, "Stop after this long (default: until interrupted)")
		fs.Parse(os.Args[2:])
		err = runCapture(common, pipeline.ModeRecordedAudio, duration)
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		common.register(fs)
		fs.Parse(os.Args[2:])
		if _, err = loadConfig(common.configPath); err == nil {
			fmt.Println("config valid")
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig falls back to built-in defaults when the default file does not
// exist. An explicitly named file must exist.
func loadConfig(path string) (config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

func setup(common commonFlags) (*runtime.Pipeline, error) {
	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return nil, err
	}
	var out io.Writer = io.Discard
	if common.verbose {
		out = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return runtime.BuildPipeline(context.Background(), cfg, nil, logger)
}

func runUpload(common commonFlags, path string) error {
	if path == "" {
		return errors.New("-file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := setup(common)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Fprintln(os.Stderr, "Transcribing audio file...")
	if _, err := p.Upload(filepath.Base(path), "", data); err != nil {
		return err
	}
	p.Wait()
	return report(os.Stdout, p.Snapshot())
}

func runCapture(common commonFlags, mode pipeline.Mode, duration time.Duration) error {
	p, err := setup(common)
	if err != nil {
		return err
	}
	defer p.Close()

	start := p.StartRecording
	if mode == pipeline.ModeLiveDictation {
		start = p.StartDictation
	}
	if _, err := start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	fmt.Fprintln(os.Stderr, "Listening. Press Ctrl-C to stop.")
	<-ctx.Done()

	if _, err := p.StopCapture(); err != nil {
		var pe *pipeline.Error
		if !errors.As(err, &pe) {
			return err
		}
	}
	if mode == pipeline.ModeLiveDictation {
		if _, err := p.RequestFeedback(); err != nil {
			return err
		}
	}
	p.Wait()
	return report(os.Stdout, p.Snapshot())
}

func report(w io.Writer, snap pipeline.Snapshot) error {
	if snap.Transcript != "" {
		fmt.Fprintf(w, "## Transcript\n\n%s\n\n", snap.Transcript)
	}
	if snap.State == pipeline.StateError && snap.ErrorMessage != nil {
		return errors.New(*snap.ErrorMessage)
	}
	if snap.Response != nil {
		fmt.Fprintf(w, "## Feedback\n\n%s\n", *snap.Response)
		return nil
	}
	if snap.Transcript == "" {
		return errors.New("nothing was captured")
	}
	return nil
}
