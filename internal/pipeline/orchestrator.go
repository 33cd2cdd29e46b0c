// Package pipeline drives one capture → transcribe → feedback session at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/dictation"
	"github.com/loqalabs/loqa-pitch/internal/feedback"
	"github.com/loqalabs/loqa-pitch/internal/media"
	"github.com/loqalabs/loqa-pitch/internal/recorder"
	"github.com/loqalabs/loqa-pitch/internal/transcribe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultStageTimeout = 60 * time.Second

// Options wires the orchestrator to its adapters and backends. A nil adapter
// marks that capture mode as unsupported.
type Options struct {
	Dictation         *dictation.Adapter
	Recorder          *recorder.Adapter
	Transcriber       transcribe.Transcriber
	Feedback          feedback.Client
	TranscribeTimeout time.Duration
	FeedbackTimeout   time.Duration
	// OnFailure is called outside the lock for every terminal failure.
	OnFailure func(sessionID string, err *Error)
}

type Orchestrator struct {
	opts    Options
	logger  *slog.Logger
	tel     *instruments
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	session *session
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

func New(parent context.Context, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.TranscribeTimeout <= 0 {
		opts.TranscribeTimeout = defaultStageTimeout
	}
	if opts.FeedbackTimeout <= 0 {
		opts.FeedbackTimeout = defaultStageTimeout
	}
	logger = logger.With(slog.String("component", "pipeline"))
	ctx, cancel := context.WithCancel(parent)
	return &Orchestrator{
		opts:    opts,
		logger:  logger,
		tel:     newInstruments(logger),
		ctx:     ctx,
		cancel:  cancel,
		session: newSession("", StateIdle),
		subs:    make(map[int]chan Snapshot),
	}
}

// Modes reports which capture modes the host supports. Recording and upload
// both need a transcriber.
func (o *Orchestrator) Modes() map[Mode]bool {
	return map[Mode]bool{
		ModeLiveDictation: o.opts.Dictation.Available(),
		ModeRecordedAudio: o.opts.Recorder.Available() && o.opts.Transcriber != nil,
		ModeUploadedFile:  o.opts.Transcriber != nil,
	}
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.snapshot()
}

// Subscribe returns a channel receiving a snapshot after every change. Slow
// subscribers miss intermediate snapshots but never the latest one.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Snapshot, buffer)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

// StartDictation replaces the current session with a live dictation session.
func (o *Orchestrator) StartDictation() (Snapshot, error) {
	if !o.opts.Dictation.Available() {
		return o.unsupported(ModeLiveDictation)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.state == StateCapturing {
		return o.session.snapshot(), ErrBusy
	}

	s := newSession(ModeLiveDictation, StateCapturing)
	s.ctrl = dictation.NewControl()
	o.session = s
	o.tel.sessionStarted(s.mode)

	id := s.id
	listening, err := o.opts.Dictation.Start(o.ctx, s.ctrl, dictation.Handler{
		OnUtterance: func(text string) { o.appendUtterance(id, text) },
		OnError:     func(err error) { o.recognitionError(id, err) },
	})
	if err != nil {
		s.ctrl.Clear()
		return o.acquisitionFailed(s, err)
	}
	s.listening = listening
	o.logger.Info("dictation started", slog.String("session_id", id))
	o.publishLocked()
	return s.snapshot(), nil
}

// StartRecording replaces the current session with a device recording.
func (o *Orchestrator) StartRecording() (Snapshot, error) {
	if !o.opts.Recorder.Available() || o.opts.Transcriber == nil {
		return o.unsupported(ModeRecordedAudio)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.state == StateCapturing {
		return o.session.snapshot(), ErrBusy
	}

	s := newSession(ModeRecordedAudio, StateCapturing)
	o.session = s
	o.tel.sessionStarted(s.mode)

	id := s.id
	rec, err := o.opts.Recorder.Start(o.ctx, recorder.Handler{
		OnChunk: func(n int) { o.chunkArrived(id, n) },
		OnEnd:   func(err error) { o.recordingEnded(id, err) },
	})
	if err != nil {
		return o.acquisitionFailed(s, err)
	}
	s.recording = rec
	s.format = rec.Format()
	o.logger.Info("recording started", slog.String("session_id", id), slog.String("mime_type", s.format.MimeType))
	o.publishLocked()
	return s.snapshot(), nil
}

// Upload starts a session that transcribes an uploaded file. Non-audio files
// are rejected before any session state changes.
func (o *Orchestrator) Upload(name, contentType string, data []byte) (Snapshot, error) {
	if o.opts.Transcriber == nil {
		return o.unsupported(ModeUploadedFile)
	}
	blob, info, err := media.ProbeUpload(name, contentType, data)
	if err != nil {
		return o.Snapshot(), err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.state == StateCapturing {
		return o.session.snapshot(), ErrBusy
	}

	s := newSession(ModeUploadedFile, StateTranscribing)
	s.format = media.Format{MimeType: blob.ContentType, Extension: blob.Extension()}
	o.session = s
	o.tel.sessionStarted(s.mode)

	attrs := []any{
		slog.String("session_id", s.id),
		slog.String("file", blob.FileName),
		slog.String("content_type", info.ContentType),
		slog.Int("bytes", len(blob.Data)),
	}
	if info.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", info.Duration))
	}
	o.logger.Info("upload accepted", attrs...)

	o.dispatchTranscription(s, blob)
	o.publishLocked()
	return s.snapshot(), nil
}

// StopCapture ends the running capture. Dictation completes with the
// accumulated transcript; a recording is assembled and sent for transcription.
// Requests already dispatched are not cancelled.
func (o *Orchestrator) StopCapture() (Snapshot, error) {
	o.mu.Lock()
	s := o.session
	if s.state != StateCapturing || s.stopping {
		snap := s.snapshot()
		o.mu.Unlock()
		return snap, ErrNotCapturing
	}
	s.stopping = true
	if s.ctrl != nil {
		s.ctrl.Clear()
	}
	listening, rec := s.listening, s.recording
	o.mu.Unlock()

	// Adapters deliver their final callbacks while stopping, so the lock must
	// be free here.
	var blob media.Blob
	switch {
	case listening != nil:
		if err := listening.Stop(); err != nil {
			o.logger.Warn("dictation did not stop cleanly", slog.String("session_id", s.id), slogError(err))
		}
	case rec != nil:
		var err error
		blob, err = rec.Stop("recording")
		if err != nil {
			o.logger.Warn("recording stop failed", slog.String("session_id", s.id), slogError(err))
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != s {
		return o.session.snapshot(), nil
	}
	s.stopping = false
	s.listening = nil
	s.recording = nil
	s.progress = ""
	// Recognition errors only describe the capture in progress.
	s.errMsg = nil

	if s.mode == ModeLiveDictation {
		s.state = StateComplete
		s.touch()
		o.logger.Info("dictation stopped", slog.String("session_id", s.id), slog.Int("chars", len(s.transcript)))
		o.publishLocked()
		return s.snapshot(), nil
	}

	if len(blob.Data) == 0 {
		e := &Error{Kind: KindTranscriptionFailure, Err: ErrNoAudio}
		o.failLocked(s, e)
		return s.snapshot(), e
	}
	s.state = StateTranscribing
	o.dispatchTranscription(s, blob)
	o.publishLocked()
	return s.snapshot(), nil
}

// recordingEnded runs on the recorder's goroutine when the input stream ends
// without a stop. The device is already released; the collected audio is
// picked up once the recorder has finished delivering it.
func (o *Orchestrator) recordingEnded(id string, cause error) {
	o.mu.Lock()
	s := o.session
	if s.id != id || s.state != StateCapturing || s.stopping || s.recording == nil {
		o.mu.Unlock()
		return
	}
	s.stopping = true
	rec := s.recording
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		blob, _ := rec.Stop("recording")

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.session != s {
			return
		}
		s.stopping = false
		s.recording = nil
		s.progress = ""
		if len(blob.Data) == 0 {
			o.failLocked(s, &Error{Kind: KindDeviceUnavailable, Err: cause})
			return
		}
		o.logger.Warn("input stream ended early, transcribing collected audio",
			slog.String("session_id", s.id), slog.Int("bytes", len(blob.Data)), slogError(cause))
		s.state = StateTranscribing
		o.dispatchTranscription(s, blob)
		o.publishLocked()
	}()
}

// SetTranscript replaces the transcript while nothing is outstanding.
func (o *Orchestrator) SetTranscript(text string) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.busy() {
		return s.snapshot(), ErrBusy
	}
	s.transcript = text
	s.touch()
	o.publishLocked()
	return s.snapshot(), nil
}

// RequestFeedback sends the current transcript for critique. It is rejected
// while any stage is outstanding and does nothing for an empty transcript.
func (o *Orchestrator) RequestFeedback() (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.busy() {
		return s.snapshot(), ErrBusy
	}
	if strings.TrimSpace(s.transcript) == "" {
		return s.snapshot(), nil
	}
	s.response = nil
	s.placeholder = false
	s.errMsg = nil
	s.errKind = ""
	s.progress = progressLoading
	o.dispatchFeedback(s)
	o.publishLocked()
	return s.snapshot(), nil
}

// Wait blocks until every dispatched request has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close stops any capture, cancels outstanding requests and closes
// subscriber channels.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	s := o.session
	if s.ctrl != nil {
		s.ctrl.Clear()
	}
	listening, rec := s.listening, s.recording
	s.listening, s.recording = nil, nil
	o.mu.Unlock()

	if listening != nil {
		_ = listening.Stop()
	}
	if rec != nil {
		rec.Abort()
	}
	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}

func (o *Orchestrator) unsupported(mode Mode) (Snapshot, error) {
	e := &Error{Kind: KindUnsupportedCapability, Err: fmt.Errorf("%w: %s", ErrUnsupportedCapability, mode)}
	o.tel.failed(e.Kind)
	o.logger.Warn("capture mode unavailable", slog.String("mode", string(mode)))
	return o.Snapshot(), e
}

// acquisitionFailed returns the session to Idle with nothing retained.
func (o *Orchestrator) acquisitionFailed(s *session, err error) (Snapshot, error) {
	e := acquisitionError(err)
	s.state = StateIdle
	s.chunks = 0
	s.recording = nil
	s.listening = nil
	s.setError(e)
	o.tel.failed(e.Kind)
	o.logger.Warn("capture acquisition failed", slog.String("session_id", s.id), slog.String("kind", string(e.Kind)), slogError(err))
	o.publishLocked()
	o.reportFailure(s.id, e)
	return s.snapshot(), e
}

func (o *Orchestrator) appendUtterance(id, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.id != id || s.state != StateCapturing {
		return
	}
	s.transcript = dictation.AppendUtterance(s.transcript, text)
	s.touch()
	o.publishLocked()
}

func (o *Orchestrator) recognitionError(id string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.id != id || s.state != StateCapturing {
		return
	}
	msg := err.Error()
	s.errMsg = &msg
	s.touch()
	o.publishLocked()
}

func (o *Orchestrator) chunkArrived(id string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.id != id || s.state != StateCapturing {
		return
	}
	s.chunks = n
	s.touch()
	o.publishLocked()
}

// dispatchTranscription must be called with the lock held.
func (o *Orchestrator) dispatchTranscription(s *session, blob media.Blob) {
	s.transcribing = true
	s.progress = progressTranscribing
	s.touch()
	id := s.id

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, o.opts.TranscribeTimeout)
		defer cancel()
		ctx, span := o.tel.tracer.Start(ctx, "pipeline.transcribe", trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("audio.content_type", blob.ContentType),
			attribute.Int("audio.bytes", len(blob.Data)),
		))
		started := time.Now()
		text, err := o.opts.Transcriber.Transcribe(ctx, blob)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrNoTranscript
		}
		o.tel.observe(ctx, "transcribe", started, err)
		endSpan(span, err)
		o.completeTranscription(id, text, err)
	}()
}

func (o *Orchestrator) completeTranscription(id, text string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.id != id {
		o.logger.Debug("dropping transcription for replaced session", slog.String("session_id", id))
		return
	}
	s.transcribing = false
	if err != nil {
		o.failLocked(s, &Error{Kind: KindTranscriptionFailure, Err: err})
		return
	}
	s.transcript = text
	o.logger.Info("transcription complete", slog.String("session_id", id), slog.Int("chars", len(text)))
	s.progress = progressSending
	o.dispatchFeedback(s)
	o.publishLocked()
}

// dispatchFeedback must be called with the lock held.
func (o *Orchestrator) dispatchFeedback(s *session) {
	s.requesting = true
	s.state = StateAwaitingFeedback
	s.touch()
	id, transcript := s.id, s.transcript

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, o.opts.FeedbackTimeout)
		defer cancel()
		ctx, span := o.tel.tracer.Start(ctx, "pipeline.feedback", trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.Int("transcript.chars", len(transcript)),
		))
		started := time.Now()
		var (
			res feedback.Result
			err error
		)
		if o.opts.Feedback == nil {
			err = errors.New("feedback backend not configured")
		} else {
			res, err = o.opts.Feedback.Critique(ctx, transcript)
		}
		o.tel.observe(ctx, "feedback", started, err)
		endSpan(span, err)
		o.completeFeedback(id, res, err)
	}()
}

func (o *Orchestrator) completeFeedback(id string, res feedback.Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	if s.id != id {
		o.logger.Debug("dropping feedback for replaced session", slog.String("session_id", id))
		return
	}
	s.requesting = false
	if err != nil {
		o.failLocked(s, &Error{Kind: KindFeedbackFailure, Err: err})
		return
	}
	text := res.Text
	s.response = &text
	s.placeholder = res.Placeholder
	s.state = StateComplete
	s.progress = ""
	s.touch()
	o.logger.Info("feedback received", slog.String("session_id", id), slog.Bool("placeholder", res.Placeholder))
	o.publishLocked()
}

// failLocked moves the session to Error. No stage is retried.
func (o *Orchestrator) failLocked(s *session, e *Error) {
	s.state = StateError
	s.progress = ""
	s.transcribing = false
	s.requesting = false
	s.setError(e)
	o.tel.failed(e.Kind)
	o.logger.Warn("session failed", slog.String("session_id", s.id), slog.String("kind", string(e.Kind)), slogError(e.Err))
	o.publishLocked()
	o.reportFailure(s.id, e)
}

func (o *Orchestrator) reportFailure(id string, e *Error) {
	if o.opts.OnFailure == nil {
		return
	}
	go o.opts.OnFailure(id, e)
}

func (o *Orchestrator) publishLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.session.snapshot()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Full: drop the oldest so the latest state always arrives.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
