// Package recorder captures microphone audio into a single blob.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-pitch/internal/media"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	ErrNotRecording      = errors.New("recorder is not running")
	ErrStreamEnded       = errors.New("audio input stream ended")
)

// Stream is an acquired input stream. Chunks is closed once the stream has
// delivered its last fragment.
type Stream interface {
	Chunks() <-chan []byte
	// Close stops every track and releases the device.
	Close() error
}

// exitReporter is implemented by streams that can explain why they ended.
type exitReporter interface {
	Err() error
}

// Handler receives progress from one recording. OnEnd fires only when the
// stream ends without Stop or Abort; the device is already released then.
type Handler struct {
	OnChunk func(n int)
	OnEnd   func(err error)
}

// Device is a microphone with codec introspection.
type Device interface {
	media.Introspector
	Open(ctx context.Context, mimeType string) (Stream, error)
}

type Adapter struct {
	device Device
	logger *slog.Logger
}

func NewAdapter(device Device, logger *slog.Logger) *Adapter {
	return &Adapter{device: device, logger: logger.With(slog.String("component", "recorder"))}
}

// Available reports whether the host can record audio.
func (a *Adapter) Available() bool {
	return a != nil && a.device != nil
}

// Recording is one running capture.
type Recording struct {
	format    media.Format
	stream    Stream
	logger    *slog.Logger
	handler   Handler
	mu        sync.Mutex
	chunks    [][]byte
	bytes     int
	done      chan struct{}
	once      sync.Once
	releasing atomic.Bool
}

// Start negotiates a format and acquires the input stream. On failure nothing
// is retained and the device is left released.
func (a *Adapter) Start(ctx context.Context, h Handler) (*Recording, error) {
	if !a.Available() {
		return nil, ErrDeviceUnavailable
	}
	format := media.Negotiate(a.device)
	stream, err := a.device.Open(ctx, format.MimeType)
	if err != nil {
		return nil, classify(err)
	}
	r := &Recording{
		format:  format,
		stream:  stream,
		logger:  a.logger,
		handler: h,
		done:    make(chan struct{}),
	}
	go r.collect()
	a.logger.Info("recording started", slog.String("mime_type", format.MimeType), slog.String("extension", format.Extension))
	return r, nil
}

func (r *Recording) Format() media.Format { return r.format }

// ChunkCount returns how many fragments have arrived so far.
func (r *Recording) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *Recording) collect() {
	defer close(r.done)
	for chunk := range r.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.bytes += len(chunk)
		n := len(r.chunks)
		r.mu.Unlock()
		if r.handler.OnChunk != nil {
			r.handler.OnChunk(n)
		}
	}
	if r.releasing.Load() {
		return
	}

	err := ErrStreamEnded
	if er, ok := r.stream.(exitReporter); ok && er.Err() != nil {
		err = fmt.Errorf("%w: %v", ErrStreamEnded, er.Err())
	}
	err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	if relErr := r.release(); relErr != nil {
		r.logger.Warn("failed to release input stream", slogError(relErr))
	}
	r.logger.Warn("input stream ended before stop", slogError(err))
	if r.handler.OnEnd != nil {
		r.handler.OnEnd(err)
	}
}

// Stop releases the device, waits for the last fragment and assembles the
// blob tagged with the negotiated format.
func (r *Recording) Stop(base string) (media.Blob, error) {
	if err := r.release(); err != nil {
		r.logger.Warn("failed to release input stream", slogError(err))
	}
	<-r.done

	r.mu.Lock()
	chunks := r.chunks
	size := r.bytes
	r.chunks = nil
	r.mu.Unlock()

	blob := media.Assemble(chunks, r.format, base)
	r.logger.Info("recording stopped", slog.Int("chunks", len(chunks)), slog.Int("bytes", size))
	return blob, nil
}

// Abort releases the device and drops collected audio.
func (r *Recording) Abort() {
	if err := r.release(); err != nil {
		r.logger.Warn("failed to release input stream", slogError(err))
	}
	<-r.done
	r.mu.Lock()
	r.chunks = nil
	r.mu.Unlock()
}

func (r *Recording) release() error {
	r.releasing.Store(true)
	var err error
	r.once.Do(func() { err = r.stream.Close() })
	return err
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
