package pipeline

import (
	"errors"

	"github.com/loqalabs/loqa-pitch/internal/recorder"
)

// Kind classifies a session failure.
type Kind string

const (
	KindUnsupportedCapability Kind = "unsupported_capability"
	KindPermissionDenied      Kind = "permission_denied"
	KindDeviceUnavailable     Kind = "device_unavailable"
	KindTranscriptionFailure  Kind = "transcription_failure"
	KindFeedbackFailure       Kind = "feedback_failure"
)

var (
	ErrBusy                  = errors.New("a request is already in progress")
	ErrUnsupportedCapability = errors.New("capture mode not supported on this host")
	ErrNotCapturing          = errors.New("no capture in progress")
	ErrNoTranscript          = errors.New("No transcript returned.")
	ErrNoAudio               = errors.New("No audio was captured.")
)

// Error is a terminal failure of the current session.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *Error) Message() string { return e.Err.Error() }

func acquisitionError(err error) *Error {
	if errors.Is(err, recorder.ErrPermissionDenied) {
		return &Error{Kind: KindPermissionDenied, Err: err}
	}
	return &Error{Kind: KindDeviceUnavailable, Err: err}
}
