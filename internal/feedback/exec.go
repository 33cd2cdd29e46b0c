package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execClient struct {
	cmd []string
	mu  sync.Mutex
}

// NewExecClient pipes {"text": transcript} to a local command and reads the
// critique from its stdout, JSON or plain text.
func NewExecClient(command string) (Client, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse feedback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("feedback command empty")
	}
	return &execClient{cmd: args}, nil
}

func (c *execClient) Critique(ctx context.Context, transcript string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input, err := json.Marshal(generateRequest{Text: transcript})
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, c.cmd[0], c.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("feedback exec command failed: %w: %s", err, stderr.String())
	}

	text, err := ParseResponse("", output)
	if err != nil {
		return Result{}, err
	}
	return NewResult(text), nil
}
