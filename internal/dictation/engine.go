// Package dictation turns a bounded-utterance recognition engine into an
// unbounded live dictation session.
package dictation

import (
	"context"
	"strings"
	"sync/atomic"
)

// Settings configures a single recognition. Engines report only final
// results to the transcript.
type Settings struct {
	Language        string
	MaxAlternatives int
}

// Event is emitted by a running recognition.
type Event struct {
	Text  string
	Final bool
	Err   error
}

// Recognition is one bounded listening pass. The events channel is closed when
// the engine ends the pass, which it does on its own after an utterance.
type Recognition interface {
	Events() <-chan Event
	// Stop asks the engine to finalize pending audio and end. Safe to call twice.
	Stop()
}

// Engine abstracts on-device recognizers.
type Engine interface {
	Start(ctx context.Context, settings Settings) (Recognition, error)
}

// Control is the session-scoped "still capturing" flag shared between the
// orchestrator and a listening loop.
type Control struct {
	capturing atomic.Bool
}

func NewControl() *Control {
	c := &Control{}
	c.capturing.Store(true)
	return c
}

func (c *Control) Active() bool { return c != nil && c.capturing.Load() }

func (c *Control) Clear() {
	if c != nil {
		c.capturing.Store(false)
	}
}

// AppendUtterance joins a recognized utterance onto the accumulated transcript.
func AppendUtterance(transcript, utterance string) string {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return transcript
	}
	if transcript == "" {
		return utterance
	}
	return transcript + " " + utterance
}
