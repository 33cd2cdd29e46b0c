package broadcast

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/feedback"
	"github.com/loqalabs/loqa-pitch/internal/media"
	"github.com/loqalabs/loqa-pitch/internal/pipeline"
	"github.com/loqalabs/loqa-pitch/internal/protocol"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]any
}

func (p *recordingPublisher) PublishJSON(subject string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][]any)
	}
	p.messages[subject] = append(p.messages[subject], v)
	return nil
}

func (p *recordingPublisher) get(subject string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.messages[subject]...)
}

type staticTranscriber struct{ text string }

func (s staticTranscriber) Transcribe(context.Context, media.Blob) (string, error) {
	return s.text, nil
}

type staticFeedback struct{ text string }

func (s staticFeedback) Critique(context.Context, string) (feedback.Result, error) {
	return feedback.NewResult(s.text), nil
}

func TestServicePublishesSessionEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := pipeline.New(context.Background(), pipeline.Options{
		Transcriber: staticTranscriber{text: "hello world"},
		Feedback:    staticFeedback{text: "**Great pitch!**"},
	}, logger)
	defer o.Close()

	pub := &recordingPublisher{}
	svc := NewService(context.Background(), o, pub, logger)
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Close()

	if _, err := o.Upload("pitch.webm", "audio/webm", []byte("x")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	o.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(pub.get(protocol.SubjectFeedbackFinal)) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	transcripts := pub.get(protocol.SubjectTranscriptFinal)
	if len(transcripts) != 1 {
		t.Fatalf("expected one transcript event, got %d", len(transcripts))
	}
	if tr := transcripts[0].(protocol.Transcript); tr.Text != "hello world" || tr.Mode != string(pipeline.ModeUploadedFile) {
		t.Fatalf("unexpected transcript event %+v", tr)
	}

	feedbacks := pub.get(protocol.SubjectFeedbackFinal)
	if len(feedbacks) != 1 {
		t.Fatalf("expected one feedback event, got %d", len(feedbacks))
	}
	if fb := feedbacks[0].(protocol.Feedback); fb.Text != "**Great pitch!**" {
		t.Fatalf("unexpected feedback event %+v", fb)
	}

	states := pub.get(protocol.SubjectSessionState)
	if len(states) < 2 {
		t.Fatalf("expected state events, got %d", len(states))
	}
	if last := states[len(states)-1].(protocol.SessionState); last.State != string(pipeline.StateComplete) {
		t.Fatalf("expected last state complete, got %s", last.State)
	}
}
