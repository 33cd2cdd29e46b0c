// Package broadcast mirrors pipeline snapshots onto the message bus.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-pitch/internal/pipeline"
	"github.com/loqalabs/loqa-pitch/internal/protocol"
)

// Source streams session snapshots; *pipeline.Orchestrator satisfies it.
type Source interface {
	Subscribe(buffer int) (<-chan pipeline.Snapshot, func())
}

// Publisher sends JSON payloads; *bus.Client satisfies it.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type Service struct {
	source Source
	pub    Publisher
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  func()
	ready  bool

	// markers for the current session
	sessionID  string
	transcript string
	lastState  pipeline.State
}

func NewService(parent context.Context, source Source, pub Publisher, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		source: source,
		pub:    pub,
		logger: logger.With(slog.String("component", "broadcast")),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Service) Start() error {
	updates, unsub := s.source.Subscribe(64)
	s.unsub = unsub
	s.ready = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				s.handle(snap)
			}
		}
	}()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.unsub != nil {
		s.unsub()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) handle(snap pipeline.Snapshot) {
	if snap.SessionID != s.sessionID {
		s.sessionID = snap.SessionID
		s.transcript = ""
		s.lastState = ""
	}
	previous := s.lastState
	s.lastState = snap.State

	state := protocol.SessionState{
		SessionID:   snap.SessionID,
		State:       string(snap.State),
		Mode:        string(snap.Mode),
		Progress:    snap.Progress,
		AudioChunks: snap.AudioChunks,
		ErrorKind:   string(snap.ErrorKind),
		Timestamp:   snap.UpdatedAt,
	}
	if snap.ErrorMessage != nil {
		state.ErrorMessage = *snap.ErrorMessage
	}
	s.publish(protocol.SubjectSessionState, state)

	settled := snap.State == pipeline.StateAwaitingFeedback || snap.State == pipeline.StateComplete
	if settled && snap.Transcript != "" && snap.Transcript != s.transcript {
		s.transcript = snap.Transcript
		s.publish(protocol.SubjectTranscriptFinal, protocol.Transcript{
			SessionID: snap.SessionID,
			Mode:      string(snap.Mode),
			Text:      snap.Transcript,
			Timestamp: snap.UpdatedAt,
		})
	}

	if snap.State == pipeline.StateComplete && previous != pipeline.StateComplete && snap.Response != nil {
		s.publish(protocol.SubjectFeedbackFinal, protocol.Feedback{
			SessionID:   snap.SessionID,
			Text:        *snap.Response,
			Placeholder: snap.Placeholder,
			Timestamp:   snap.UpdatedAt,
		})
	}
}

func (s *Service) publish(subject string, v any) {
	if err := s.pub.PublishJSON(subject, v); err != nil {
		s.logger.Warn("failed to publish session event", slog.String("subject", subject), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
