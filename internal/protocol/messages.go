package protocol

import "time"

// SessionState is broadcast on every pipeline state change.
type SessionState struct {
	SessionID    string    `json:"session_id"`
	State        string    `json:"state"`
	Mode         string    `json:"mode,omitempty"`
	Progress     string    `json:"progress,omitempty"`
	AudioChunks  int       `json:"audio_chunks"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Transcript is published once per session when its transcript is settled.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Mode      string    `json:"mode"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Feedback carries the critique returned for a session.
type Feedback struct {
	SessionID   string    `json:"session_id"`
	Text        string    `json:"text"`
	Placeholder bool      `json:"placeholder,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Capability describes one capture mode offered by the host.
type Capability struct {
	Name       string            `json:"name"`
	Available  bool              `json:"available"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CapabilityAnnounce lists the host's capture modes.
type CapabilityAnnounce struct {
	NodeID       string       `json:"node_id"`
	Capabilities []Capability `json:"capabilities"`
	Timestamp    time.Time    `json:"timestamp"`
}

const (
	SubjectSessionState       = "pitch.session.state"
	SubjectTranscriptFinal    = "pitch.transcript.final"
	SubjectFeedbackFinal      = "pitch.feedback.final"
	SubjectCapabilityAnnounce = "pitch.capabilities.announce"
)
