package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-pitch/internal/dictation"
	"github.com/loqalabs/loqa-pitch/internal/media"
	"github.com/loqalabs/loqa-pitch/internal/recorder"
)

type State string

const (
	StateIdle             State = "idle"
	StateCapturing        State = "capturing"
	StateTranscribing     State = "transcribing"
	StateAwaitingFeedback State = "awaiting_feedback"
	StateComplete         State = "complete"
	StateError            State = "error"
)

type Mode string

const (
	ModeLiveDictation Mode = "live_dictation"
	ModeRecordedAudio Mode = "recorded_audio"
	ModeUploadedFile  Mode = "uploaded_file"
)

const (
	progressTranscribing = "Transcribing audio file..."
	progressSending      = "Transcript generated. Sending to model..."
	progressLoading      = "Loading..."
)

// Snapshot is a read-only view of the current session.
type Snapshot struct {
	SessionID    string    `json:"session_id"`
	State        State     `json:"state"`
	Mode         Mode      `json:"mode,omitempty"`
	Transcript   string    `json:"transcript"`
	Response     *string   `json:"response,omitempty"`
	Placeholder  bool      `json:"placeholder,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	ErrorKind    Kind      `json:"error_kind,omitempty"`
	Progress     string    `json:"progress,omitempty"`
	AudioChunks  int       `json:"audio_chunks"`
	MimeType     string    `json:"mime_type,omitempty"`
	Extension    string    `json:"extension,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type session struct {
	id          string
	mode        Mode
	state       State
	transcript  string
	response    *string
	placeholder bool
	errMsg      *string
	errKind     Kind
	progress    string
	chunks      int
	format      media.Format
	startedAt   time.Time
	updatedAt   time.Time

	ctrl      *dictation.Control
	listening *dictation.Listening
	recording *recorder.Recording
	stopping  bool

	transcribing bool
	requesting   bool
}

func newSession(mode Mode, state State) *session {
	now := time.Now().UTC()
	return &session{
		id:        uuid.NewString(),
		mode:      mode,
		state:     state,
		startedAt: now,
		updatedAt: now,
	}
}

// busy reports whether a capture or request is outstanding.
func (s *session) busy() bool {
	switch s.state {
	case StateCapturing, StateTranscribing, StateAwaitingFeedback:
		return true
	}
	return s.transcribing || s.requesting
}

func (s *session) touch() { s.updatedAt = time.Now().UTC() }

func (s *session) setError(e *Error) {
	msg := e.Message()
	s.errMsg = &msg
	s.errKind = e.Kind
	s.touch()
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Mode:        s.mode,
		Transcript:  s.transcript,
		Placeholder: s.placeholder,
		ErrorKind:   s.errKind,
		Progress:    s.progress,
		AudioChunks: s.chunks,
		MimeType:    s.format.MimeType,
		Extension:   s.format.Extension,
		StartedAt:   s.startedAt,
		UpdatedAt:   s.updatedAt,
	}
	if s.response != nil {
		r := *s.response
		snap.Response = &r
	}
	if s.errMsg != nil {
		m := *s.errMsg
		snap.ErrorMessage = &m
	}
	return snap
}
