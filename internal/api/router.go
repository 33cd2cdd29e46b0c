// Package api exposes the pitch pipeline over HTTP and websockets.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/loqalabs/loqa-pitch/internal/pipeline"
	"github.com/loqalabs/loqa-pitch/internal/protocol"
)

const defaultMaxUploadBytes = 64 << 20

// Pipeline is the session surface the API drives; *pipeline.Orchestrator
// satisfies it.
type Pipeline interface {
	Snapshot() pipeline.Snapshot
	Subscribe(buffer int) (<-chan pipeline.Snapshot, func())
	StartDictation() (pipeline.Snapshot, error)
	StartRecording() (pipeline.Snapshot, error)
	StopCapture() (pipeline.Snapshot, error)
	Upload(name, contentType string, data []byte) (pipeline.Snapshot, error)
	SetTranscript(text string) (pipeline.Snapshot, error)
	RequestFeedback() (pipeline.Snapshot, error)
}

// Capabilities lists host capture modes; *capability.Registry satisfies it.
type Capabilities interface {
	Capabilities() []protocol.Capability
}

type Options struct {
	Pipeline       Pipeline
	Capabilities   Capabilities
	Metrics        http.Handler
	Ready          func() bool
	MaxUploadBytes int64
	PingInterval   time.Duration
}

type server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewRouter(opts Options, logger *slog.Logger) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	s := &server{
		opts:   opts,
		logger: logger.With(slog.String("component", "api")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(allowCrossOrigin)
		r.Get("/capabilities", s.handleCapabilities)
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Get("/events", s.handleEvents)
			r.Post("/dictation/start", s.handleStartDictation)
			r.Post("/recording/start", s.handleStartRecording)
			r.Post("/stop", s.handleStop)
			r.Post("/upload", s.handleUpload)
			r.Put("/transcript", s.handleSetTranscript)
			r.Post("/feedback", s.handleFeedback)
		})
	})
	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// allowCrossOrigin lets browser front ends on other origins drive the API.
func allowCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Ready == nil || s.opts.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
