package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/media"
	"github.com/mattn/go-shellwords"
)

// execDevice captures audio by running an encoder that writes the negotiated
// container to stdout, e.g.
//
//	ffmpeg -loglevel error -f pulse -i default -c:a libopus -f {container} -
type execDevice struct {
	cmd        []string
	supported  media.SupportedSet
	chunkBytes int
}

func NewExecDevice(command string, supported []string, chunkBytes int) (Device, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recorder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recorder command is empty")
	}
	if chunkBytes <= 0 {
		chunkBytes = 4096
	}
	return &execDevice{cmd: args, supported: media.SupportedSet(supported), chunkBytes: chunkBytes}, nil
}

func (d *execDevice) Supports(mimeType string) bool {
	return d.supported.Supports(mimeType)
}

func (d *execDevice) Open(ctx context.Context, mimeType string) (Stream, error) {
	container := media.ExtensionFor(mimeType)
	args := make([]string, 0, len(d.cmd)-1)
	for _, arg := range d.cmd[1:] {
		arg = strings.ReplaceAll(arg, "{container}", container)
		arg = strings.ReplaceAll(arg, "{mime}", mimeType)
		args = append(args, arg)
	}

	// The stream outlives the request that opened it; Close ends it.
	command := exec.Command(d.cmd[0], args...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	stderr := &lockedBuffer{}
	command.Stderr = stderr
	if err := command.Start(); err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s := &execStream{cmd: command, chunks: make(chan []byte, 16), stderr: stderr, exited: make(chan struct{})}
	go s.read(stdout, d.chunkBytes)

	// An encoder that cannot open the microphone exits almost immediately.
	select {
	case <-s.exited:
		msg := strings.ToLower(stderr.String())
		if strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted") {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(stderr.String()))
		}
		if s.exitErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, strings.TrimSpace(stderr.String()))
		}
	case <-time.After(150 * time.Millisecond):
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
	return s, nil
}

type execStream struct {
	cmd     *exec.Cmd
	chunks  chan []byte
	stderr  *lockedBuffer
	exited  chan struct{}
	exitErr error
	once    sync.Once
}

func (s *execStream) Chunks() <-chan []byte { return s.chunks }

// Err reports why the encoder exited. Valid once Chunks is closed.
func (s *execStream) Err() error {
	if s.exitErr == nil {
		return nil
	}
	if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
		return fmt.Errorf("%v: %s", s.exitErr, msg)
	}
	return s.exitErr
}

func (s *execStream) read(stdout io.Reader, size int) {
	defer close(s.exited)
	defer close(s.chunks)
	for {
		buf := make([]byte, size)
		n, err := stdout.Read(buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			break
		}
	}
	s.exitErr = s.cmd.Wait()
}

func (s *execStream) Close() error {
	var err error
	s.once.Do(func() {
		if s.cmd.Process == nil {
			return
		}
		select {
		case <-s.exited:
			return
		default:
		}
		// Interrupt lets the encoder flush the container trailer.
		if sigErr := s.cmd.Process.Signal(os.Interrupt); sigErr != nil && !errors.Is(sigErr, os.ErrProcessDone) {
			err = sigErr
		}
		select {
		case <-s.exited:
		case <-time.After(2 * time.Second):
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
	})
	return err
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
