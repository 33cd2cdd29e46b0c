package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/media"
)

// MockDevice emits a fixed fragment on every tick until closed. With
// MaxChunks set, the stream ends by itself after that many fragments.
type MockDevice struct {
	Supported media.SupportedSet
	Chunk     []byte
	Interval  time.Duration
	OpenErr   error
	MaxChunks int

	mu       sync.Mutex
	open     int
	released int
	lastMime string
}

func NewMockDevice(supported []string) *MockDevice {
	return &MockDevice{
		Supported: media.SupportedSet(supported),
		Chunk:     []byte("mock-audio-fragment"),
		Interval:  50 * time.Millisecond,
	}
}

func (d *MockDevice) Supports(mimeType string) bool {
	return d.Supported.Supports(mimeType)
}

func (d *MockDevice) Open(_ context.Context, mimeType string) (Stream, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.mu.Lock()
	d.open++
	d.lastMime = mimeType
	d.mu.Unlock()

	s := &mockStream{device: d, chunks: make(chan []byte), stop: make(chan struct{})}
	go s.run()
	return s, nil
}

// Active returns the number of streams not yet released.
func (d *MockDevice) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open - d.released
}

// LastMimeType returns the mime type requested by the most recent Open.
func (d *MockDevice) LastMimeType() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastMime
}

type mockStream struct {
	device *MockDevice
	chunks chan []byte
	stop   chan struct{}
	once   sync.Once
}

func (s *mockStream) Chunks() <-chan []byte { return s.chunks }

func (s *mockStream) run() {
	defer close(s.chunks)
	interval := s.device.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for sent := 0; s.device.MaxChunks <= 0 || sent < s.device.MaxChunks; sent++ {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			chunk := append([]byte(nil), s.device.Chunk...)
			select {
			case s.chunks <- chunk:
			case <-s.stop:
				return
			}
		}
	}
}

func (s *mockStream) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.device.mu.Lock()
		s.device.released++
		s.device.mu.Unlock()
	})
	return nil
}
