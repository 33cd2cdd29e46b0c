package capability

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/protocol"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	last     protocol.CapabilityAnnounce
}

func (p *recordingPublisher) PublishJSON(subject string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	if msg, ok := v.(protocol.CapabilityAnnounce); ok {
		p.last = msg
	}
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subjects)
}

func TestRegistryReportsProbes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	r := NewRegistry(context.Background(), "node-1", []Probe{
		{Name: "recorded_audio", Available: func() bool { return true }, Attributes: map[string]string{"mime_type": "audio/webm;codecs=opus"}},
		{Name: "live_dictation", Available: func() bool { return false }},
	}, pub, 0, logger)
	defer r.Close()

	caps := r.Capabilities()
	if len(caps) != 2 || caps[0].Name != "live_dictation" || caps[1].Name != "recorded_audio" {
		t.Fatalf("unexpected capabilities %+v", caps)
	}
	if r.Available("live_dictation") || !r.Available("recorded_audio") {
		t.Fatal("unexpected availability")
	}
	if !r.Healthy() {
		t.Fatal("expected healthy with one usable mode")
	}
	if pub.count() != 1 || pub.subjects[0] != protocol.SubjectCapabilityAnnounce {
		t.Fatalf("expected one announce, got %v", pub.subjects)
	}
	if pub.last.NodeID != "node-1" || len(pub.last.Capabilities) != 2 {
		t.Fatalf("unexpected announce %+v", pub.last)
	}
}

func TestRegistryReannounces(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	var available atomic.Bool
	r := NewRegistry(context.Background(), "node-1", []Probe{
		{Name: "uploaded_file", Available: available.Load},
	}, pub, 10*time.Millisecond, logger)
	defer r.Close()

	if r.Healthy() {
		t.Fatal("expected unhealthy before the probe passes")
	}
	available.Store(true)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !r.Available("uploaded_file") {
		time.Sleep(5 * time.Millisecond)
	}
	if !r.Available("uploaded_file") {
		t.Fatal("expected refresh to pick up availability")
	}
	if pub.count() < 2 {
		t.Fatalf("expected periodic announces, got %d", pub.count())
	}
}

func TestRegistryWithoutPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(context.Background(), "node-1", nil, nil, time.Second, logger)
	r.Close()
	if r.Healthy() {
		t.Fatal("expected no capabilities")
	}
}
