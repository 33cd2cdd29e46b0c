package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopTimeout is returned when the engine does not end after a stop request.
var ErrStopTimeout = errors.New("dictation engine did not stop in time")

const startRetryFloor = 100 * time.Millisecond

// Handler receives recognition output for one listening session.
type Handler struct {
	OnUtterance func(text string)
	OnError     func(err error)
}

// Adapter restarts its engine on every natural end while the session's
// control flag stays set.
type Adapter struct {
	engine       Engine
	settings     Settings
	errorBackoff time.Duration
	stopTimeout  time.Duration
	logger       *slog.Logger
}

type Options struct {
	Settings     Settings
	ErrorBackoff time.Duration
	StopTimeout  time.Duration
}

func NewAdapter(engine Engine, opts Options, logger *slog.Logger) *Adapter {
	if opts.Settings.MaxAlternatives <= 0 {
		opts.Settings.MaxAlternatives = 1
	}
	if opts.Settings.Language == "" {
		opts.Settings.Language = "en-US"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 3 * time.Second
	}
	return &Adapter{
		engine:       engine,
		settings:     opts.Settings,
		errorBackoff: opts.ErrorBackoff,
		stopTimeout:  opts.StopTimeout,
		logger:       logger.With(slog.String("component", "dictation")),
	}
}

// Available reports whether the host provides live dictation.
func (a *Adapter) Available() bool {
	return a != nil && a.engine != nil
}

// Listening is a running restart loop.
type Listening struct {
	adapter  *Adapter
	ctrl     *Control
	handler  Handler
	mu       sync.Mutex
	current  Recognition
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	restarts atomic.Int64
}

// Start opens the first recognition and keeps listening until ctrl is cleared.
func (a *Adapter) Start(ctx context.Context, ctrl *Control, h Handler) (*Listening, error) {
	if !a.Available() {
		return nil, errors.New("dictation engine not available")
	}
	rec, err := a.engine.Start(ctx, a.settings)
	if err != nil {
		return nil, fmt.Errorf("start recognition: %w", err)
	}
	l := &Listening{
		adapter: a,
		ctrl:    ctrl,
		handler: h,
		current: rec,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run(ctx, rec)
	return l, nil
}

// Restarts returns how many times the engine was re-armed after ending.
func (l *Listening) Restarts() int {
	return int(l.restarts.Load())
}

// Done is closed once the loop has finalized.
func (l *Listening) Done() <-chan struct{} {
	return l.done
}

// Stop clears the capturing flag, asks the current recognition to finalize and
// waits for the loop to exit.
func (l *Listening) Stop() error {
	l.ctrl.Clear()
	l.stopOnce.Do(func() { close(l.stopped) })
	l.mu.Lock()
	if l.current != nil {
		l.current.Stop()
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-time.After(l.adapter.stopTimeout):
		return ErrStopTimeout
	}
}

func (l *Listening) run(ctx context.Context, rec Recognition) {
	defer close(l.done)
	for {
		errored := l.drain(rec)
		if !l.ctrl.Active() || ctx.Err() != nil {
			return
		}
		if errored && !l.pause(ctx, l.adapter.errorBackoff) {
			return
		}

		next, err := l.adapter.engine.Start(ctx, l.adapter.settings)
		for err != nil {
			l.report(fmt.Errorf("restart recognition: %w", err))
			if !l.ctrl.Active() || !l.pause(ctx, max(l.adapter.errorBackoff, startRetryFloor)) {
				return
			}
			next, err = l.adapter.engine.Start(ctx, l.adapter.settings)
		}

		l.mu.Lock()
		l.current = next
		l.mu.Unlock()
		l.restarts.Add(1)
		if !l.ctrl.Active() {
			next.Stop()
		}
		rec = next
	}
}

// drain consumes one recognition until the engine ends it.
func (l *Listening) drain(rec Recognition) (errored bool) {
	for ev := range rec.Events() {
		if ev.Err != nil {
			errored = true
			l.report(ev.Err)
			continue
		}
		if !ev.Final || ev.Text == "" {
			continue
		}
		if l.handler.OnUtterance != nil {
			l.handler.OnUtterance(ev.Text)
		}
	}
	return errored
}

func (l *Listening) report(err error) {
	l.adapter.logger.Warn("speech recognition error", slogError(err))
	if l.handler.OnError != nil {
		l.handler.OnError(err)
	}
}

// pause waits d unless the session stops first.
func (l *Listening) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return l.ctrl.Active()
	case <-l.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
