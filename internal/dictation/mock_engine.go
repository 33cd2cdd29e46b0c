package dictation

import (
	"context"
	"sync"
	"time"
)

type mockEngine struct {
	mu         sync.Mutex
	utterances []string
	next       int
	delay      time.Duration
}

// NewMockEngine emits the given utterances one per recognition, then idles
// until stopped.
func NewMockEngine(delay time.Duration, utterances ...string) Engine {
	if len(utterances) == 0 {
		utterances = []string{"[mock utterance]"}
	}
	return &mockEngine{utterances: utterances, delay: delay}
}

func (m *mockEngine) Start(ctx context.Context, _ Settings) (Recognition, error) {
	m.mu.Lock()
	text := ""
	if m.next < len(m.utterances) {
		text = m.utterances[m.next]
		m.next++
	}
	m.mu.Unlock()

	r := &mockRecognition{events: make(chan Event, 1), stop: make(chan struct{})}
	go func() {
		defer close(r.events)
		if text == "" {
			select {
			case <-ctx.Done():
			case <-r.stop:
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
		case <-time.After(m.delay):
		}
		r.events <- Event{Text: text, Final: true}
	}()
	return r, nil
}

type mockRecognition struct {
	events chan Event
	stop   chan struct{}
	once   sync.Once
}

func (r *mockRecognition) Events() <-chan Event { return r.events }

func (r *mockRecognition) Stop() { r.once.Do(func() { close(r.stop) }) }
