package dictation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execEngine runs an external listener once per utterance. The command prints
// one JSON object per line and exits when the utterance ends.
type execEngine struct {
	cmd []string
}

type execLine struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Error string `json:"error,omitempty"`
}

func NewExecEngine(command string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse dictation command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("dictation command is empty")
	}
	return &execEngine{cmd: args}, nil
}

func (e *execEngine) Start(ctx context.Context, settings Settings) (Recognition, error) {
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--language", settings.Language, "--max-alternatives", strconv.Itoa(settings.MaxAlternatives))

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("dictation stdout: %w", err)
	}
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("dictation command failed to start: %w", err)
	}

	r := &execRecognition{cmd: command, events: make(chan Event, 8)}
	go r.read(stdout, &stderr)
	return r, nil
}

type execRecognition struct {
	cmd      *exec.Cmd
	events   chan Event
	stopOnce sync.Once
	stopping bool
	mu       sync.Mutex
}

func (r *execRecognition) Events() <-chan Event { return r.events }

func (r *execRecognition) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopping = true
		r.mu.Unlock()
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Signal(os.Interrupt)
		}
	})
}

func (r *execRecognition) read(stdout io.Reader, stderr *bytes.Buffer) {
	defer close(r.events)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg execLine
		if err := json.Unmarshal(line, &msg); err != nil {
			r.events <- Event{Err: fmt.Errorf("decode dictation output: %w", err)}
			continue
		}
		if msg.Error != "" {
			r.events <- Event{Err: fmt.Errorf("speech recognition error: %s", msg.Error)}
			continue
		}
		r.events <- Event{Text: msg.Text, Final: msg.Final}
	}
	if err := r.cmd.Wait(); err != nil {
		r.mu.Lock()
		stopping := r.stopping
		r.mu.Unlock()
		if !stopping {
			r.events <- Event{Err: fmt.Errorf("dictation command failed: %w: %s", err, stderr.String())}
		}
	}
}
